package handler

import (
	"time"

	"github.com/xtxerr/satmon/internal/manager"
	"github.com/xtxerr/satmon/internal/query"
	"github.com/xtxerr/satmon/internal/storage/types"
	"github.com/xtxerr/satmon/internal/store"
)

// JSON representations of the domain types.

type satelliteView struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	LaunchDate  time.Time         `json:"launch_date"`
	Status      string            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	ActivatedAt *time.Time        `json:"activated_at,omitempty"`
	DisabledAt  *time.Time        `json:"disabled_at,omitempty"`
	Version     int               `json:"version"`
}

func newSatelliteView(s *store.Satellite) satelliteView {
	return satelliteView{
		ID:          s.ID,
		Name:        s.Name,
		LaunchDate:  s.LaunchDate,
		Status:      string(s.Status),
		Metadata:    s.Metadata,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		ActivatedAt: s.ActivatedAt,
		DisabledAt:  s.DisabledAt,
		Version:     s.Version,
	}
}

type unitView struct {
	ID          string    `json:"id"`
	SatelliteID string    `json:"satellite_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     int       `json:"version"`
}

func newUnitView(u *store.Unit) unitView {
	return unitView{
		ID:          u.ID,
		SatelliteID: u.SatelliteID,
		Name:        u.Name,
		Description: u.Description,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		Version:     u.Version,
	}
}

type parameterView struct {
	ID          string    `json:"id"`
	UnitID      string    `json:"unit_id"`
	SatelliteID string    `json:"satellite_id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	UOM         string    `json:"uom"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     int       `json:"version"`
}

func newParameterView(p *store.Parameter) parameterView {
	return parameterView{
		ID:          p.ID,
		UnitID:      p.UnitID,
		SatelliteID: p.SatelliteID,
		Name:        p.Name,
		Type:        string(p.Type),
		UOM:         p.UOM,
		Min:         p.Min,
		Max:         p.Max,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		Version:     p.Version,
	}
}

func newParameterViews(ps []*store.Parameter) []parameterView {
	out := make([]parameterView, len(ps))
	for i, p := range ps {
		out[i] = newParameterView(p)
	}
	return out
}

type pageView[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func newPageView[S, T any](p manager.Page[S], conv func(S) T) pageView[T] {
	items := make([]T, len(p.Items))
	for i, it := range p.Items {
		items[i] = conv(it)
	}
	return pageView[T]{Items: items, Total: p.Total, Page: p.Page, PageSize: p.PageSize}
}

// =============================================================================
// Hierarchy
// =============================================================================

type unitTreeView struct {
	unitView
	Parameters []parameterView `json:"parameters"`
}

type satelliteTreeView struct {
	satelliteView
	Units []unitTreeView `json:"units"`
}

func newSatelliteTreeView(t *manager.SatelliteTree) satelliteTreeView {
	v := satelliteTreeView{
		satelliteView: newSatelliteView(t.Satellite),
		Units:         make([]unitTreeView, len(t.Units)),
	}
	for i, ut := range t.Units {
		v.Units[i] = unitTreeView{
			unitView:   newUnitView(ut.Unit),
			Parameters: newParameterViews(ut.Parameters),
		}
	}
	return v
}

// =============================================================================
// Telemetry
// =============================================================================

type pointView struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type seriesView struct {
	ParameterID string      `json:"parameter_id"`
	Name        string      `json:"name"`
	UnitID      string      `json:"unit_id"`
	SatelliteID string      `json:"satellite_id"`
	Type        string      `json:"type"`
	UOM         string      `json:"uom"`
	Points      []pointView `json:"points"`
	Truncated   bool        `json:"truncated,omitempty"`
}

func newSeriesView(s query.SeriesResult) seriesView {
	v := seriesView{
		ParameterID: s.ParameterID,
		Name:        s.Name,
		UnitID:      s.UnitID,
		SatelliteID: s.SatelliteID,
		Type:        string(s.Type),
		UOM:         s.UOM,
		Points:      make([]pointView, len(s.Points)),
		Truncated:   s.Truncated,
	}
	for i, p := range s.Points {
		v.Points[i] = pointView{Timestamp: p.Time().UTC(), Value: p.Value}
	}
	return v
}

type bucketView struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Count int64     `json:"count"`
	Min   float64   `json:"min"`
	Max   float64   `json:"max"`
	Avg   float64   `json:"avg"`
	Sum   float64   `json:"sum"`
	P50   *float64  `json:"p50,omitempty"`
	P90   *float64  `json:"p90,omitempty"`
	P95   *float64  `json:"p95,omitempty"`
	P99   *float64  `json:"p99,omitempty"`
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`
}

func newBucketView(a types.AggregateResult) bucketView {
	return bucketView{
		Start: a.BucketStartTime().UTC(),
		End:   a.BucketEndTime().UTC(),
		Count: a.Count,
		Min:   a.Min,
		Max:   a.Max,
		Avg:   a.Avg,
		Sum:   a.Sum,
		P50:   a.P50,
		P90:   a.P90,
		P95:   a.P95,
		P99:   a.P99,
		First: time.UnixMilli(a.FirstTs).UTC(),
		Last:  time.UnixMilli(a.LastTs).UTC(),
	}
}

type aggregateView struct {
	ParameterID string       `json:"parameter_id"`
	Name        string       `json:"name"`
	UnitID      string       `json:"unit_id"`
	SatelliteID string       `json:"satellite_id"`
	UOM         string       `json:"uom"`
	Bucket      string       `json:"bucket"`
	Buckets     []bucketView `json:"buckets"`
}

func newAggregateView(s query.AggregateSeries) aggregateView {
	v := aggregateView{
		ParameterID: s.ParameterID,
		Name:        s.Name,
		UnitID:      s.UnitID,
		SatelliteID: s.SatelliteID,
		UOM:         s.UOM,
		Bucket:      s.Bucket.String(),
		Buckets:     make([]bucketView, len(s.Buckets)),
	}
	for i, b := range s.Buckets {
		v.Buckets[i] = newBucketView(b)
	}
	return v
}

// =============================================================================
// Status
// =============================================================================

type parameterStatusView struct {
	ParameterID string     `json:"parameter_id"`
	Name        string     `json:"name"`
	UnitID      string     `json:"unit_id"`
	UnitName    string     `json:"unit_name"`
	Type        string     `json:"type"`
	UOM         string     `json:"uom"`
	Min         float64    `json:"min"`
	Max         float64    `json:"max"`
	PointCount  int        `json:"point_count"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	LastValue   *float64   `json:"last_value,omitempty"`
	Accepted    int64      `json:"accepted"`
	Rejected    int64      `json:"rejected"`
	LastError   string     `json:"last_error,omitempty"`
}

type statusView struct {
	Satellite      satelliteView         `json:"satellite"`
	Operational    string                `json:"operational"`
	UnitCount      int                   `json:"unit_count"`
	ParameterCount int                   `json:"parameter_count"`
	TotalPoints    int                   `json:"total_points"`
	LastSeen       *time.Time            `json:"last_seen,omitempty"`
	Parameters     []parameterStatusView `json:"parameters"`
}

func newStatusView(s *query.SatelliteStatus) statusView {
	v := statusView{
		Satellite:      newSatelliteView(s.Satellite),
		Operational:    string(s.Operational),
		UnitCount:      s.UnitCount,
		ParameterCount: s.ParameterCount,
		TotalPoints:    s.TotalPoints,
		LastSeen:       s.LastSeen,
		Parameters:     make([]parameterStatusView, len(s.Parameters)),
	}
	for i, p := range s.Parameters {
		v.Parameters[i] = parameterStatusView{
			ParameterID: p.ParameterID,
			Name:        p.Name,
			UnitID:      p.UnitID,
			UnitName:    p.UnitName,
			Type:        string(p.Type),
			UOM:         p.UOM,
			Min:         p.Min,
			Max:         p.Max,
			PointCount:  p.PointCount,
			LastSeen:    p.LastSeen,
			LastValue:   p.LastValue,
			Accepted:    p.Accepted,
			Rejected:    p.Rejected,
			LastError:   p.LastError,
		}
	}
	return v
}
