package manager

import (
	"maps"
	"sort"
	"time"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/store"
	"github.com/xtxerr/satmon/internal/validation"
)

// SatelliteManager is the satellite directory.
//
// State machine:
//
//	pending --Activate--> active --Disable--> disabled --Reenable--> active
//
// No transition removes a record.
type SatelliteManager struct {
	m *Manager
}

// SatelliteUpdate holds the optional fields of a satellite update.
// Nil fields are left unchanged; a non-nil Metadata replaces the map.
type SatelliteUpdate struct {
	Name       *string
	LaunchDate *time.Time
	Metadata   map[string]string
}

// ListOptions controls paginated listings. Page is 1-based.
type ListOptions struct {
	IncludeDisabled bool
	Page            int
	PageSize        int
}

// Page is one page of a listing.
type Page[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
}

// Register creates a satellite in the pending state.
func (sm *SatelliteManager) Register(name string, launchDate time.Time, metadata map[string]string) (*store.Satellite, error) {
	if err := validation.ValidateEntityName(name); err != nil {
		return nil, err
	}

	c := sm.m.cat
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.satByName[name]; dup {
		return nil, errors.NewDuplicateName("satellite", name, "")
	}

	now := sm.m.timestamp()
	sat := &store.Satellite{
		ID:         sm.m.newID(),
		Name:       name,
		LaunchDate: launchDate.UTC(),
		Status:     store.StatusPending,
		Metadata:   maps.Clone(metadata),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}

	if err := sm.m.persist.SaveSatellite(sat); err != nil {
		return nil, err
	}

	c.satellites[sat.ID] = sat
	c.satByName[sat.Name] = sat.ID

	log.Info("satellite registered", "satellite_id", sat.ID, "name", sat.Name)
	return sat.Clone(), nil
}

// Get returns a satellite by id, whatever its status.
func (sm *SatelliteManager) Get(id string) (*store.Satellite, error) {
	c := sm.m.cat
	c.mu.RLock()
	defer c.mu.RUnlock()

	sat, ok := c.satellites[id]
	if !ok {
		return nil, errors.NewNotFound("satellite", id)
	}
	return sat.Clone(), nil
}

// GetByName returns the satellite with the given name.
func (sm *SatelliteManager) GetByName(name string) (*store.Satellite, error) {
	c := sm.m.cat
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.satByName[name]
	if !ok {
		return nil, errors.NewNotFound("satellite", name)
	}
	return c.satellites[id].Clone(), nil
}

// Activate moves a pending satellite to active. Activation happens exactly
// once: active or disabled satellites fail with InvalidTransition.
func (sm *SatelliteManager) Activate(id string) (*store.Satellite, error) {
	return sm.transition(id, "activate", store.StatusPending, store.StatusActive)
}

// Disable moves an active satellite to disabled. The record and its
// telemetry remain readable.
func (sm *SatelliteManager) Disable(id string) (*store.Satellite, error) {
	return sm.transition(id, "disable", store.StatusActive, store.StatusDisabled)
}

// Reenable moves a disabled satellite back to active.
func (sm *SatelliteManager) Reenable(id string) (*store.Satellite, error) {
	return sm.transition(id, "re-enable", store.StatusDisabled, store.StatusActive)
}

func (sm *SatelliteManager) transition(id, action string, from, to store.SatelliteStatus) (*store.Satellite, error) {
	c := sm.m.cat
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.satellites[id]
	if !ok {
		return nil, errors.NewNotFound("satellite", id)
	}
	if cur.Status != from {
		return nil, errors.NewInvalidTransition("satellite", id, string(cur.Status), action)
	}

	now := sm.m.timestamp()
	next := cur.Clone()
	next.Status = to
	next.UpdatedAt = now
	next.Version++
	switch to {
	case store.StatusActive:
		if next.ActivatedAt == nil {
			next.ActivatedAt = &now
		}
		next.DisabledAt = nil
	case store.StatusDisabled:
		next.DisabledAt = &now
	}

	if err := sm.m.persist.SaveSatellite(next); err != nil {
		return nil, err
	}
	c.satellites[id] = next

	log.Info("satellite state changed", "satellite_id", id, "from", from, "to", to)
	return next.Clone(), nil
}

// Update changes descriptive fields. Disabled satellites are frozen.
func (sm *SatelliteManager) Update(id string, upd SatelliteUpdate) (*store.Satellite, error) {
	if upd.Name != nil {
		if err := validation.ValidateEntityName(*upd.Name); err != nil {
			return nil, err
		}
	}

	c := sm.m.cat
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.satellites[id]
	if !ok {
		return nil, errors.NewNotFound("satellite", id)
	}
	if cur.Status == store.StatusDisabled {
		return nil, errors.NewSatelliteDisabled(id)
	}

	next := cur.Clone()
	if upd.Name != nil && *upd.Name != cur.Name {
		if _, dup := c.satByName[*upd.Name]; dup {
			return nil, errors.NewDuplicateName("satellite", *upd.Name, "")
		}
		next.Name = *upd.Name
	}
	if upd.LaunchDate != nil {
		next.LaunchDate = upd.LaunchDate.UTC()
	}
	if upd.Metadata != nil {
		next.Metadata = maps.Clone(upd.Metadata)
	}
	next.UpdatedAt = sm.m.timestamp()
	next.Version++

	if err := sm.m.persist.SaveSatellite(next); err != nil {
		return nil, err
	}

	if next.Name != cur.Name {
		delete(c.satByName, cur.Name)
		c.satByName[next.Name] = id
	}
	c.satellites[id] = next
	return next.Clone(), nil
}

// List returns one page of satellites ordered by creation time. Disabled
// satellites are excluded unless opts.IncludeDisabled is set.
func (sm *SatelliteManager) List(opts ListOptions) Page[*store.Satellite] {
	page, size := validation.NormalizePage(opts.Page, opts.PageSize)

	c := sm.m.cat
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := sm.m.listSatellitesLocked(opts.IncludeDisabled)
	lo, hi := validation.PageBounds(len(all), page, size)

	items := make([]*store.Satellite, 0, hi-lo)
	for _, sat := range all[lo:hi] {
		items = append(items, sat.Clone())
	}

	return Page[*store.Satellite]{
		Items:    items,
		Total:    len(all),
		Page:     page,
		PageSize: size,
	}
}

// Trees returns one page of satellite hierarchies under a single catalog read.
func (m *Manager) Trees(opts ListOptions) Page[*SatelliteTree] {
	page, size := validation.NormalizePage(opts.Page, opts.PageSize)

	c := m.cat
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := m.listSatellitesLocked(opts.IncludeDisabled)
	lo, hi := validation.PageBounds(len(all), page, size)

	items := make([]*SatelliteTree, 0, hi-lo)
	for _, sat := range all[lo:hi] {
		items = append(items, m.treeLocked(sat))
	}

	return Page[*SatelliteTree]{
		Items:    items,
		Total:    len(all),
		Page:     page,
		PageSize: size,
	}
}

func (m *Manager) listSatellitesLocked(includeDisabled bool) []*store.Satellite {
	all := make([]*store.Satellite, 0, len(m.cat.satellites))
	for _, sat := range m.cat.satellites {
		if sat.Status == store.StatusDisabled && !includeDisabled {
			continue
		}
		all = append(all, sat)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].Name < all[j].Name
	})
	return all
}
