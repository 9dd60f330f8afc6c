// Package manager implements the satellite directory and the unit and
// parameter registries on top of one shared in-memory catalog.
//
// The catalog is a strict tree of owning-id references: satellites own
// units, units own parameters, and every parameter owns one series in the
// telemetry store. One RWMutex guards the catalog; it is held exclusively
// only for structural mutations. When a Persister is configured every
// mutation is written through before it becomes visible in memory.
package manager

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/logging"
	"github.com/xtxerr/satmon/internal/storage/series"
	"github.com/xtxerr/satmon/internal/storage/types"
	"github.com/xtxerr/satmon/internal/store"
)

var log = logging.Component("manager")

// Persister receives every catalog mutation before it is applied in memory.
// *store.Store implements it.
type Persister interface {
	SaveSatellite(s *store.Satellite) error
	SaveUnit(u *store.Unit) error
	DeleteUnit(id string) error
	SaveParameter(p *store.Parameter) error
	DeleteParameter(id string) error
}

type nopPersister struct{}

func (nopPersister) SaveSatellite(*store.Satellite) error { return nil }
func (nopPersister) SaveUnit(*store.Unit) error           { return nil }
func (nopPersister) DeleteUnit(string) error              { return nil }
func (nopPersister) SaveParameter(*store.Parameter) error { return nil }
func (nopPersister) DeleteParameter(string) error         { return nil }

// catalog is the shared state of all three registries.
type catalog struct {
	mu sync.RWMutex

	satellites   map[string]*store.Satellite
	satByName    map[string]string
	units        map[string]*store.Unit
	unitsBySat   map[string]map[string]struct{}
	params       map[string]*store.Parameter
	paramsByUnit map[string]map[string]struct{}
}

func newCatalog() *catalog {
	return &catalog{
		satellites:   make(map[string]*store.Satellite),
		satByName:    make(map[string]string),
		units:        make(map[string]*store.Unit),
		unitsBySat:   make(map[string]map[string]struct{}),
		params:       make(map[string]*store.Parameter),
		paramsByUnit: make(map[string]map[string]struct{}),
	}
}

func addChild(index map[string]map[string]struct{}, parent, child string) {
	set, ok := index[parent]
	if !ok {
		set = make(map[string]struct{})
		index[parent] = set
	}
	set[child] = struct{}{}
}

func removeChild(index map[string]map[string]struct{}, parent, child string) {
	if set, ok := index[parent]; ok {
		delete(set, child)
		if len(set) == 0 {
			delete(index, parent)
		}
	}
}

// Manager bundles the registries. All three share one catalog and one
// telemetry store.
type Manager struct {
	Satellites *SatelliteManager
	Units      *UnitManager
	Parameters *ParameterManager

	cat     *catalog
	series  *series.Store
	stats   *StatsManager
	persist Persister
	now     func() time.Time
	newID   func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithPersister writes every catalog mutation through p.
func WithPersister(p Persister) Option {
	return func(m *Manager) {
		if p != nil {
			m.persist = p
		}
	}
}

// WithClock overrides the clock used for entity timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator overrides entity id generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newID = fn
	}
}

// New creates a Manager over the given telemetry store.
func New(s *series.Store, opts ...Option) *Manager {
	m := &Manager{
		cat:     newCatalog(),
		series:  s,
		stats:   NewStatsManager(),
		persist: nopPersister{},
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.Satellites = &SatelliteManager{m: m}
	m.Units = &UnitManager{m: m}
	m.Parameters = &ParameterManager{m: m}
	return m
}

// Series returns the telemetry store owned by the catalog.
func (m *Manager) Series() *series.Store {
	return m.series
}

// Stats returns the per-parameter ingest statistics.
func (m *Manager) Stats() *StatsManager {
	return m.stats
}

func (m *Manager) timestamp() time.Time {
	return m.now().UTC()
}

// =============================================================================
// Startup
// =============================================================================

// Load rebuilds the catalog from a persisted snapshot and registers a series
// for every parameter. Units or parameters whose parent is missing are
// logged and skipped.
func (m *Manager) Load(snap *store.Catalog) error {
	c := m.cat
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range snap.Satellites {
		if _, dup := c.satByName[s.Name]; dup {
			return fmt.Errorf("load satellite %s: %w", s.ID, errors.NewDuplicateName("satellite", s.Name, ""))
		}
		c.satellites[s.ID] = s.Clone()
		c.satByName[s.Name] = s.ID
	}

	for _, u := range snap.Units {
		if _, ok := c.satellites[u.SatelliteID]; !ok {
			log.Error("orphaned unit in catalog", "unit_id", u.ID, "satellite_id", u.SatelliteID)
			continue
		}
		c.units[u.ID] = u.Clone()
		addChild(c.unitsBySat, u.SatelliteID, u.ID)
	}

	for _, p := range snap.Parameters {
		u, ok := c.units[p.UnitID]
		if !ok {
			log.Error("orphaned parameter in catalog", "parameter_id", p.ID, "unit_id", p.UnitID)
			continue
		}
		if err := m.series.Register(p.ID, p.Range()); err != nil {
			return fmt.Errorf("register series %s: %w", p.ID, err)
		}
		cp := p.Clone()
		cp.SatelliteID = u.SatelliteID
		c.params[p.ID] = cp
		addChild(c.paramsByUnit, p.UnitID, p.ID)
	}

	log.Info("catalog loaded",
		"satellites", len(c.satellites),
		"units", len(c.units),
		"parameters", len(c.params))
	return nil
}

// =============================================================================
// Telemetry ingest
// =============================================================================

// Ingest appends one point to a parameter's series. Points for parameters of
// disabled satellites are rejected with SatelliteDisabled, and those of
// satellites not yet activated with SatellitePending.
func (m *Manager) Ingest(parameterID string, timestampMs int64, value float64) (types.DataPoint, error) {
	p := types.DataPoint{ParameterID: parameterID, TimestampMs: timestampMs, Value: value}
	if err := m.IngestBatch(parameterID, []types.DataPoint{p}); err != nil {
		return types.DataPoint{}, err
	}
	return p, nil
}

// IngestBatch appends points to a parameter's series atomically.
func (m *Manager) IngestBatch(parameterID string, points []types.DataPoint) error {
	c := m.cat
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.params[parameterID]
	if !ok {
		return errors.NewNotFound("parameter", parameterID)
	}
	sat, err := m.parentSatelliteLocked(p)
	if err != nil {
		return err
	}
	switch sat.Status {
	case store.StatusDisabled:
		return errors.NewSatelliteDisabled(sat.ID)
	case store.StatusPending:
		return errors.NewSatellitePending(sat.ID)
	}

	// Holding the read lock keeps the parameter from being deleted or
	// retyped while its series is written.
	err = m.series.AppendBatch(parameterID, points)
	m.stats.Get(parameterID).Record(len(points), err, m.timestamp())
	return err
}

// Latest returns the most recent point of a parameter's series.
func (m *Manager) Latest(parameterID string) (types.DataPoint, bool, error) {
	p, ok, err := m.series.Latest(parameterID)
	if errors.Is(err, errors.ErrSeriesNotFound) {
		return p, ok, errors.NewNotFound("parameter", parameterID)
	}
	return p, ok, err
}

// =============================================================================
// Consistent reads
// =============================================================================

// ParameterPath is a parameter together with its owning unit and satellite.
type ParameterPath struct {
	Satellite *store.Satellite
	Unit      *store.Unit
	Parameter *store.Parameter
}

// ResolveParameter returns the full ownership path of a parameter.
func (m *Manager) ResolveParameter(id string) (*ParameterPath, error) {
	c := m.cat
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.params[id]
	if !ok {
		return nil, errors.NewNotFound("parameter", id)
	}
	u, ok := c.units[p.UnitID]
	if !ok {
		log.Error("orphaned parameter", "parameter_id", p.ID, "unit_id", p.UnitID)
		return nil, fmt.Errorf("parameter %s references missing unit %s: %w", p.ID, p.UnitID, errors.ErrInternal)
	}
	sat, err := m.parentSatelliteLocked(p)
	if err != nil {
		return nil, err
	}
	return &ParameterPath{Satellite: sat.Clone(), Unit: u.Clone(), Parameter: p.Clone()}, nil
}

// UnitTree is a unit with its parameters.
type UnitTree struct {
	Unit       *store.Unit
	Parameters []*store.Parameter
}

// SatelliteTree is a satellite with its units and their parameters.
type SatelliteTree struct {
	Satellite *store.Satellite
	Units     []UnitTree
}

// ParameterIDs returns the ids of every parameter in the tree.
func (t *SatelliteTree) ParameterIDs() []string {
	var ids []string
	for _, u := range t.Units {
		for _, p := range u.Parameters {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// ResolveUnit returns a unit with its parameters and its owning satellite.
func (m *Manager) ResolveUnit(unitID string) (*store.Satellite, *UnitTree, error) {
	c := m.cat
	c.mu.RLock()
	defer c.mu.RUnlock()

	u, ok := c.units[unitID]
	if !ok {
		return nil, nil, errors.NewNotFound("unit", unitID)
	}
	sat, ok := c.satellites[u.SatelliteID]
	if !ok {
		log.Error("orphaned unit", "unit_id", u.ID, "satellite_id", u.SatelliteID)
		return nil, nil, fmt.Errorf("unit %s references missing satellite %s: %w", u.ID, u.SatelliteID, errors.ErrInternal)
	}
	return sat.Clone(), &UnitTree{
		Unit:       u.Clone(),
		Parameters: cloneParams(sortedParams(c, c.paramsByUnit[u.ID])),
	}, nil
}

// Tree returns a consistent snapshot of one satellite's hierarchy.
func (m *Manager) Tree(satelliteID string) (*SatelliteTree, error) {
	c := m.cat
	c.mu.RLock()
	defer c.mu.RUnlock()

	sat, ok := c.satellites[satelliteID]
	if !ok {
		return nil, errors.NewNotFound("satellite", satelliteID)
	}
	return m.treeLocked(sat), nil
}

func (m *Manager) treeLocked(sat *store.Satellite) *SatelliteTree {
	c := m.cat
	tree := &SatelliteTree{Satellite: sat.Clone()}
	for _, u := range sortedUnits(c, c.unitsBySat[sat.ID]) {
		tree.Units = append(tree.Units, UnitTree{
			Unit:       u.Clone(),
			Parameters: cloneParams(sortedParams(c, c.paramsByUnit[u.ID])),
		})
	}
	return tree
}

// ActiveParameters returns every parameter whose satellite is active.
func (m *Manager) ActiveParameters() []*store.Parameter {
	c := m.cat
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*store.Parameter
	for _, p := range c.params {
		if sat, ok := c.satellites[p.SatelliteID]; ok && sat.Status == store.StatusActive {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts returns the catalog sizes.
func (m *Manager) Counts() (satellites, units, parameters int) {
	c := m.cat
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.satellites), len(c.units), len(c.params)
}

// parentSatelliteLocked returns the satellite owning p. A missing satellite
// means the catalog tree is broken.
func (m *Manager) parentSatelliteLocked(p *store.Parameter) (*store.Satellite, error) {
	sat, ok := m.cat.satellites[p.SatelliteID]
	if !ok {
		log.Error("orphaned parameter", "parameter_id", p.ID, "satellite_id", p.SatelliteID)
		return nil, fmt.Errorf("parameter %s references missing satellite %s: %w",
			p.ID, p.SatelliteID, errors.ErrInternal)
	}
	return sat, nil
}

// =============================================================================
// Ordering helpers
// =============================================================================

func sortedUnits(c *catalog, ids map[string]struct{}) []*store.Unit {
	out := make([]*store.Unit, 0, len(ids))
	for id := range ids {
		if u, ok := c.units[id]; ok {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedParams(c *catalog, ids map[string]struct{}) []*store.Parameter {
	out := make([]*store.Parameter, 0, len(ids))
	for id := range ids {
		if p, ok := c.params[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func cloneParams(in []*store.Parameter) []*store.Parameter {
	out := make([]*store.Parameter, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}
