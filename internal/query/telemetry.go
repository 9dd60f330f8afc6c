package query

import (
	"context"
	"fmt"
	"time"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/manager"
	"github.com/xtxerr/satmon/internal/storage/aggregate"
	"github.com/xtxerr/satmon/internal/storage/types"
	"github.com/xtxerr/satmon/internal/store"
	"github.com/xtxerr/satmon/internal/validation"
)

// MaxAggregateBuckets caps the number of buckets per series in one
// aggregate query.
const MaxAggregateBuckets = 10_000

// TelemetryFilter selects series and a time window. At least one of
// SatelliteID, UnitID or ParameterIDs must be set; when several are set
// every id must belong to the others. Start and End are inclusive; nil is
// open.
type TelemetryFilter struct {
	SatelliteID  string
	UnitID       string
	ParameterIDs []string
	Start        *time.Time
	End          *time.Time

	// Limit caps the points per series, keeping the most recent ones.
	// Zero means no limit.
	Limit int
}

// SeriesResult is the telemetry of one parameter.
type SeriesResult struct {
	ParameterID string
	Name        string
	UnitID      string
	SatelliteID string
	Type        store.ParameterType
	UOM         string
	Points      []types.DataPoint
	Truncated   bool
}

// AggregateSeries is the bucketed telemetry of one parameter.
type AggregateSeries struct {
	ParameterID string
	Name        string
	UnitID      string
	SatelliteID string
	UOM         string
	Bucket      time.Duration
	Buckets     []types.AggregateResult
}

// Telemetry returns the points of every selected parameter, grouped by
// parameter. The window is validated before any id is looked up; ids are
// resolved before any data is read. A window without data yields series
// with no points.
func (e *Engine) Telemetry(ctx context.Context, f TelemetryFilter) ([]SeriesResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params, start, end, err := e.resolve(f)
	if err != nil {
		e.record(0, err)
		return nil, err
	}

	out := make([]SeriesResult, 0, len(params))
	total := 0
	for _, p := range params {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		points, err := e.queryWindow(p.ID, start, end)
		if err != nil {
			err = seriesNotFound(p.ID, err)
			e.record(total, err)
			return nil, err
		}

		res := SeriesResult{
			ParameterID: p.ID,
			Name:        p.Name,
			UnitID:      p.UnitID,
			SatelliteID: p.SatelliteID,
			Type:        p.Type,
			UOM:         p.UOM,
			Points:      points,
		}
		if f.Limit > 0 && len(points) > f.Limit {
			res.Points = points[len(points)-f.Limit:]
			res.Truncated = true
		}
		total += len(res.Points)
		out = append(out, res)
	}

	e.record(total, nil)
	return out, nil
}

// Aggregate returns per-bucket statistics for every selected parameter.
// Buckets are aligned to the Unix epoch; empty buckets are omitted.
func (e *Engine) Aggregate(ctx context.Context, f TelemetryFilter, bucket time.Duration) ([]AggregateSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validation.ValidateWindow(f.Start, f.End); err != nil {
		e.record(0, err)
		return nil, err
	}
	if bucket < time.Millisecond {
		err := errors.NewInvalidValue("bucket", bucket, "must be at least 1ms")
		e.record(0, err)
		return nil, err
	}
	if f.Start != nil && f.End != nil {
		if n := f.End.Sub(*f.Start) / bucket; n > MaxAggregateBuckets {
			err := errors.NewInvalidValue("bucket", bucket,
				fmt.Sprintf("window spans %d buckets, maximum is %d", n, MaxAggregateBuckets))
			e.record(0, err)
			return nil, err
		}
	}

	f.Limit = 0
	series, err := e.Telemetry(ctx, f)
	if err != nil {
		return nil, err
	}

	out := make([]AggregateSeries, 0, len(series))
	for _, s := range series {
		out = append(out, AggregateSeries{
			ParameterID: s.ParameterID,
			Name:        s.Name,
			UnitID:      s.UnitID,
			SatelliteID: s.SatelliteID,
			UOM:         s.UOM,
			Bucket:      bucket,
			Buckets:     aggregate.Buckets(s.Points, bucket, aggregate.DefaultAccuracy),
		})
	}
	return out, nil
}

// resolve validates the filter and returns the selected parameters in
// hierarchy order together with the window in unix milliseconds.
func (e *Engine) resolve(f TelemetryFilter) ([]*store.Parameter, *int64, *int64, error) {
	if err := validation.ValidateWindow(f.Start, f.End); err != nil {
		return nil, nil, nil, err
	}
	if f.SatelliteID == "" && f.UnitID == "" && len(f.ParameterIDs) == 0 {
		return nil, nil, nil, errors.NewMissingField("satellite_id, unit_id or parameter_id")
	}
	if f.Limit < 0 {
		return nil, nil, nil, errors.NewInvalidValue("limit", f.Limit, "must not be negative")
	}

	params, err := e.resolveIDs(f)
	if err != nil {
		return nil, nil, nil, err
	}

	var start, end *int64
	if f.Start != nil {
		ms := validation.CeilMilli(*f.Start)
		start = &ms
	}
	if f.End != nil {
		ms := f.End.UnixMilli()
		end = &ms
	}
	return params, start, end, nil
}

// queryWindow reads one series. A window that lies inside a single
// millisecond can round to start > end; it holds no points.
func (e *Engine) queryWindow(id string, start, end *int64) ([]types.DataPoint, error) {
	if start != nil && end != nil && *start > *end {
		if _, err := e.series.Count(id); err != nil {
			return nil, err
		}
		return []types.DataPoint{}, nil
	}
	return e.series.Query(id, start, end)
}

func (e *Engine) resolveIDs(f TelemetryFilter) ([]*store.Parameter, error) {
	var (
		tree *manager.SatelliteTree
		unit *manager.UnitTree
		err  error
	)

	if f.SatelliteID != "" {
		if tree, err = e.catalog.Tree(f.SatelliteID); err != nil {
			return nil, err
		}
	}

	if f.UnitID != "" {
		var sat *store.Satellite
		sat, unit, err = e.catalog.ResolveUnit(f.UnitID)
		if err != nil {
			return nil, err
		}
		if f.SatelliteID != "" && sat.ID != f.SatelliteID {
			return nil, fmt.Errorf("unit '%s' does not belong to satellite '%s': %w",
				f.UnitID, f.SatelliteID, errors.ErrUnitNotFound)
		}
	}

	if len(f.ParameterIDs) > 0 {
		params := make([]*store.Parameter, 0, len(f.ParameterIDs))
		seen := make(map[string]struct{}, len(f.ParameterIDs))
		for _, id := range f.ParameterIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			path, err := e.catalog.ResolveParameter(id)
			if err != nil {
				return nil, err
			}
			p := path.Parameter
			if f.UnitID != "" && p.UnitID != f.UnitID {
				return nil, fmt.Errorf("parameter '%s' does not belong to unit '%s': %w",
					id, f.UnitID, errors.ErrParameterNotFound)
			}
			if f.SatelliteID != "" && p.SatelliteID != f.SatelliteID {
				return nil, fmt.Errorf("parameter '%s' does not belong to satellite '%s': %w",
					id, f.SatelliteID, errors.ErrParameterNotFound)
			}
			params = append(params, p)
		}
		return params, nil
	}

	if unit != nil {
		return unit.Parameters, nil
	}

	var params []*store.Parameter
	for _, ut := range tree.Units {
		params = append(params, ut.Parameters...)
	}
	return params, nil
}
