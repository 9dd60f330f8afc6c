package query

import (
	"context"
	"time"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/manager"
	"github.com/xtxerr/satmon/internal/store"
)

// OperationalState summarizes whether a satellite is delivering telemetry.
type OperationalState string

const (
	StatePending  OperationalState = "pending"
	StateDisabled OperationalState = "disabled"
	StateNoData   OperationalState = "no_data"
	StateNominal  OperationalState = "nominal"
	StateStale    OperationalState = "stale"
)

// ParameterStatus is the telemetry summary of one parameter.
type ParameterStatus struct {
	ParameterID string
	Name        string
	UnitID      string
	UnitName    string
	Type        store.ParameterType
	UOM         string
	Min         float64
	Max         float64

	PointCount int
	LastSeen   *time.Time
	LastValue  *float64

	Accepted  int64
	Rejected  int64
	LastError string
}

// SatelliteStatus is the status summary of one satellite.
type SatelliteStatus struct {
	Satellite      *store.Satellite
	Operational    OperationalState
	UnitCount      int
	ParameterCount int
	TotalPoints    int
	LastSeen       *time.Time
	Parameters     []ParameterStatus
}

// SatelliteStatus summarizes a satellite: unit and parameter counts, the
// last point of every parameter and the overall operational state.
// Concurrent calls for the same satellite share one evaluation.
func (e *Engine) SatelliteStatus(ctx context.Context, satelliteID string) (*SatelliteStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err, shared := e.status.Do(satelliteID, func() (any, error) {
		return e.satelliteStatus(satelliteID)
	})
	if shared {
		e.coalesced.Add(1)
	}
	e.record(0, err)
	if err != nil {
		return nil, err
	}
	return v.(*SatelliteStatus), nil
}

func (e *Engine) satelliteStatus(satelliteID string) (*SatelliteStatus, error) {
	tree, err := e.catalog.Tree(satelliteID)
	if err != nil {
		return nil, err
	}

	st := &SatelliteStatus{
		Satellite: tree.Satellite,
		UnitCount: len(tree.Units),
	}

	for _, ut := range tree.Units {
		for _, p := range ut.Parameters {
			ps, err := e.parameterStatus(ut, p)
			if errors.IsNotFound(err) {
				// Deleted after the tree snapshot.
				continue
			}
			if err != nil {
				return nil, err
			}
			st.Parameters = append(st.Parameters, ps)
			st.TotalPoints += ps.PointCount
			if ps.LastSeen != nil && (st.LastSeen == nil || ps.LastSeen.After(*st.LastSeen)) {
				st.LastSeen = ps.LastSeen
			}
		}
	}
	st.ParameterCount = len(st.Parameters)
	st.Operational = e.operationalState(tree.Satellite, st.LastSeen)

	log.Debug("status computed",
		"satellite_id", satelliteID,
		"parameters", st.ParameterCount,
		"state", st.Operational)
	return st, nil
}

func (e *Engine) parameterStatus(ut manager.UnitTree, p *store.Parameter) (ParameterStatus, error) {
	ps := ParameterStatus{
		ParameterID: p.ID,
		Name:        p.Name,
		UnitID:      ut.Unit.ID,
		UnitName:    ut.Unit.Name,
		Type:        p.Type,
		UOM:         p.UOM,
		Min:         p.Min,
		Max:         p.Max,
	}

	n, err := e.series.Count(p.ID)
	if err != nil {
		return ps, seriesNotFound(p.ID, err)
	}
	ps.PointCount = n

	latest, ok, err := e.series.Latest(p.ID)
	if err != nil {
		return ps, seriesNotFound(p.ID, err)
	}
	if ok {
		ts := latest.Time().UTC()
		v := latest.Value
		ps.LastSeen = &ts
		ps.LastValue = &v
	}

	if e.ingest != nil {
		if s := e.ingest.GetIfExists(p.ID); s != nil {
			snap := s.Snapshot()
			ps.Accepted = snap.Accepted
			ps.Rejected = snap.Rejected
			ps.LastError = snap.LastError
		}
	}
	return ps, nil
}

func (e *Engine) operationalState(sat *store.Satellite, lastSeen *time.Time) OperationalState {
	switch sat.Status {
	case store.StatusPending:
		return StatePending
	case store.StatusDisabled:
		return StateDisabled
	}
	if lastSeen == nil {
		return StateNoData
	}
	if e.now().Sub(*lastSeen) > e.staleAfter {
		return StateStale
	}
	return StateNominal
}
