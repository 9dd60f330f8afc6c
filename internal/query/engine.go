// Package query composes the catalog and the telemetry store into the read
// operations exposed by the API: satellite status summaries, filtered
// telemetry, bucketed aggregates and the paginated hierarchy.
//
// Every call is a pure read over its explicit arguments. Nothing is cached
// between calls and no cursor state is kept.
package query

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/logging"
	"github.com/xtxerr/satmon/internal/manager"
	"github.com/xtxerr/satmon/internal/storage/types"
	"github.com/xtxerr/satmon/internal/store"
)

var log = logging.Component("query")

// DefaultStaleAfter is how long an active satellite may go without telemetry
// before its status is reported stale.
const DefaultStaleAfter = 5 * time.Minute

// Catalog is the metadata the engine reads. *manager.Manager implements it.
type Catalog interface {
	Tree(satelliteID string) (*manager.SatelliteTree, error)
	Trees(opts manager.ListOptions) manager.Page[*manager.SatelliteTree]
	ResolveUnit(unitID string) (*store.Satellite, *manager.UnitTree, error)
	ResolveParameter(id string) (*manager.ParameterPath, error)
}

// SeriesReader is the telemetry the engine reads. *series.Store implements it.
type SeriesReader interface {
	Query(parameterID string, start, end *int64) ([]types.DataPoint, error)
	Latest(parameterID string) (types.DataPoint, bool, error)
	Count(parameterID string) (int, error)
}

// IngestStatsReader exposes per-parameter ingest counters.
// *manager.StatsManager implements it.
type IngestStatsReader interface {
	GetIfExists(parameterID string) *manager.IngestStats
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted int64
	PointsReturned  int64
	Errors          int64
	Coalesced       int64
}

// Engine answers read queries.
//
// Engine is safe for concurrent use.
type Engine struct {
	catalog    Catalog
	series     SeriesReader
	ingest     IngestStatsReader
	now        func() time.Time
	staleAfter time.Duration

	status singleflight.Group

	queries   atomic.Int64
	points    atomic.Int64
	failures  atomic.Int64
	coalesced atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithIngestStats includes ingest counters in status summaries.
func WithIngestStats(r IngestStatsReader) Option {
	return func(e *Engine) {
		e.ingest = r
	}
}

// WithClock overrides the clock used for staleness.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithStaleAfter sets the staleness threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.staleAfter = d
		}
	}
}

// New creates a query engine.
func New(catalog Catalog, series SeriesReader, opts ...Option) *Engine {
	e := &Engine{
		catalog:    catalog,
		series:     series,
		now:        time.Now,
		staleAfter: DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats returns query statistics.
func (e *Engine) Stats() Stats {
	return Stats{
		QueriesExecuted: e.queries.Load(),
		PointsReturned:  e.points.Load(),
		Errors:          e.failures.Load(),
		Coalesced:       e.coalesced.Load(),
	}
}

func (e *Engine) record(points int, err error) {
	e.queries.Add(1)
	e.points.Add(int64(points))
	if err != nil && !errors.IsNotFound(err) && !errors.Is(err, errors.ErrInvalidRange) {
		e.failures.Add(1)
	}
}

// seriesNotFound maps a missing series to a missing parameter. The series
// of a parameter disappears only when the parameter is deleted.
func seriesNotFound(parameterID string, err error) error {
	if errors.Is(err, errors.ErrSeriesNotFound) {
		return errors.NewNotFound("parameter", parameterID)
	}
	return err
}

// =============================================================================
// Hierarchy
// =============================================================================

// HierarchyOptions selects a page of satellite trees, or one satellite.
type HierarchyOptions struct {
	SatelliteID     string
	IncludeDisabled bool
	Page            int
	PageSize        int
}

// Hierarchy returns satellites with their units and parameters.
func (e *Engine) Hierarchy(ctx context.Context, opts HierarchyOptions) (manager.Page[*manager.SatelliteTree], error) {
	if err := ctx.Err(); err != nil {
		return manager.Page[*manager.SatelliteTree]{}, err
	}

	if opts.SatelliteID != "" {
		tree, err := e.catalog.Tree(opts.SatelliteID)
		e.record(0, err)
		if err != nil {
			return manager.Page[*manager.SatelliteTree]{}, err
		}
		return manager.Page[*manager.SatelliteTree]{
			Items:    []*manager.SatelliteTree{tree},
			Total:    1,
			Page:     1,
			PageSize: 1,
		}, nil
	}

	page := e.catalog.Trees(manager.ListOptions{
		IncludeDisabled: opts.IncludeDisabled,
		Page:            opts.Page,
		PageSize:        opts.PageSize,
	})
	e.record(0, nil)
	return page, nil
}
