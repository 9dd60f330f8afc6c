package manager

import (
	"sort"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/store"
	"github.com/xtxerr/satmon/internal/validation"
)

// UnitManager is the unit registry. Unit names are unique per satellite.
type UnitManager struct {
	m *Manager
}

// UnitUpdate holds the optional fields of a unit update.
type UnitUpdate struct {
	Name        *string
	Description *string
}

// Create adds a unit to a satellite. The satellite must exist and must not
// be disabled; pending satellites accept units.
func (um *UnitManager) Create(satelliteID, name, description string) (*store.Unit, error) {
	if err := validation.ValidateEntityName(name); err != nil {
		return nil, err
	}

	c := um.m.cat
	c.mu.Lock()
	defer c.mu.Unlock()

	sat, err := um.m.mutableSatelliteLocked(satelliteID)
	if err != nil {
		return nil, err
	}
	if um.nameTakenLocked(sat.ID, name, "") {
		return nil, errors.NewDuplicateName("unit", name, "satellite "+sat.ID)
	}

	now := um.m.timestamp()
	u := &store.Unit{
		ID:          um.m.newID(),
		SatelliteID: sat.ID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}

	if err := um.m.persist.SaveUnit(u); err != nil {
		return nil, err
	}
	c.units[u.ID] = u
	addChild(c.unitsBySat, sat.ID, u.ID)

	log.Info("unit created", "unit_id", u.ID, "satellite_id", sat.ID, "name", name)
	return u.Clone(), nil
}

// Get returns a unit by id.
func (um *UnitManager) Get(id string) (*store.Unit, error) {
	c := um.m.cat
	c.mu.RLock()
	defer c.mu.RUnlock()

	u, ok := c.units[id]
	if !ok {
		return nil, errors.NewNotFound("unit", id)
	}
	return u.Clone(), nil
}

// Update renames a unit or changes its description.
func (um *UnitManager) Update(id string, upd UnitUpdate) (*store.Unit, error) {
	if upd.Name != nil {
		if err := validation.ValidateEntityName(*upd.Name); err != nil {
			return nil, err
		}
	}

	c := um.m.cat
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.units[id]
	if !ok {
		return nil, errors.NewNotFound("unit", id)
	}
	if _, err := um.m.mutableSatelliteLocked(cur.SatelliteID); err != nil {
		return nil, err
	}

	next := cur.Clone()
	if upd.Name != nil && *upd.Name != cur.Name {
		if um.nameTakenLocked(cur.SatelliteID, *upd.Name, id) {
			return nil, errors.NewDuplicateName("unit", *upd.Name, "satellite "+cur.SatelliteID)
		}
		next.Name = *upd.Name
	}
	if upd.Description != nil {
		next.Description = *upd.Description
	}
	next.UpdatedAt = um.m.timestamp()
	next.Version++

	if err := um.m.persist.SaveUnit(next); err != nil {
		return nil, err
	}
	c.units[id] = next
	return next.Clone(), nil
}

// Delete removes a unit and cascades to its parameters and their series.
// It returns the ids of the deleted parameters.
func (um *UnitManager) Delete(id string) ([]string, error) {
	c := um.m.cat
	c.mu.Lock()
	defer c.mu.Unlock()

	u, ok := c.units[id]
	if !ok {
		return nil, errors.NewNotFound("unit", id)
	}
	if _, err := um.m.mutableSatelliteLocked(u.SatelliteID); err != nil {
		return nil, err
	}

	if err := um.m.persist.DeleteUnit(id); err != nil {
		return nil, err
	}

	deleted := make([]string, 0, len(c.paramsByUnit[id]))
	for pid := range c.paramsByUnit[id] {
		delete(c.params, pid)
		um.m.series.Drop(pid)
		um.m.stats.Remove(pid)
		deleted = append(deleted, pid)
	}
	sort.Strings(deleted)
	delete(c.paramsByUnit, id)
	delete(c.units, id)
	removeChild(c.unitsBySat, u.SatelliteID, id)

	log.Info("unit deleted", "unit_id", id, "satellite_id", u.SatelliteID, "parameters", len(deleted))
	return deleted, nil
}

// ListBySatellite returns the units of a satellite in creation order.
func (um *UnitManager) ListBySatellite(satelliteID string) ([]*store.Unit, error) {
	c := um.m.cat
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.satellites[satelliteID]; !ok {
		return nil, errors.NewNotFound("satellite", satelliteID)
	}

	units := sortedUnits(c, c.unitsBySat[satelliteID])
	out := make([]*store.Unit, len(units))
	for i, u := range units {
		out[i] = u.Clone()
	}
	return out, nil
}

func (um *UnitManager) nameTakenLocked(satelliteID, name, exceptID string) bool {
	c := um.m.cat
	for uid := range c.unitsBySat[satelliteID] {
		if uid != exceptID && c.units[uid].Name == name {
			return true
		}
	}
	return false
}

// mutableSatelliteLocked returns the satellite if its structure may change.
func (m *Manager) mutableSatelliteLocked(satelliteID string) (*store.Satellite, error) {
	sat, ok := m.cat.satellites[satelliteID]
	if !ok {
		return nil, errors.NewNotFound("satellite", satelliteID)
	}
	if sat.Status == store.StatusDisabled {
		return nil, errors.NewSatelliteDisabled(satelliteID)
	}
	return sat, nil
}
