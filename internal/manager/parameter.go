package manager

import (
	"fmt"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/store"
	"github.com/xtxerr/satmon/internal/validation"
)

// ParameterManager is the parameter registry. Parameter names are unique per
// unit and every parameter owns one series in the telemetry store.
type ParameterManager struct {
	m *Manager
}

// ParameterUpdate holds the optional fields of a parameter update.
// Changing Type re-derives the valid range and is only allowed while the
// parameter has no telemetry.
type ParameterUpdate struct {
	Name *string
	Type *store.ParameterType
	UOM  *string
}

// Define creates a parameter under a unit. The valid range comes from the
// type; an empty uom defaults to the type's unit.
func (pm *ParameterManager) Define(unitID, name string, typ store.ParameterType, uom string) (*store.Parameter, error) {
	if err := validation.ValidateParameterName(name); err != nil {
		return nil, err
	}
	spec, err := store.LookupType(typ)
	if err != nil {
		return nil, err
	}
	if uom == "" {
		uom = spec.UOM
	}

	c := pm.m.cat
	c.mu.Lock()
	defer c.mu.Unlock()

	u, ok := c.units[unitID]
	if !ok {
		return nil, errors.NewNotFound("unit", unitID)
	}
	if _, err := pm.m.mutableSatelliteLocked(u.SatelliteID); err != nil {
		return nil, err
	}
	if pm.nameTakenLocked(unitID, name, "") {
		return nil, errors.NewDuplicateName("parameter", name, "unit "+unitID)
	}

	now := pm.m.timestamp()
	p := &store.Parameter{
		ID:          pm.m.newID(),
		UnitID:      unitID,
		SatelliteID: u.SatelliteID,
		Name:        name,
		Type:        spec.Type,
		UOM:         uom,
		Min:         spec.Min,
		Max:         spec.Max,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}

	if err := pm.m.persist.SaveParameter(p); err != nil {
		return nil, err
	}
	if err := pm.m.series.Register(p.ID, p.Range()); err != nil {
		if derr := pm.m.persist.DeleteParameter(p.ID); derr != nil {
			log.Error("rollback of parameter row failed", "parameter_id", p.ID, "error", derr)
		}
		return nil, err
	}
	c.params[p.ID] = p
	addChild(c.paramsByUnit, unitID, p.ID)

	log.Info("parameter defined", "parameter_id", p.ID, "unit_id", unitID, "name", name, "type", p.Type)
	return p.Clone(), nil
}

// Get returns a parameter by id.
func (pm *ParameterManager) Get(id string) (*store.Parameter, error) {
	c := pm.m.cat
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.params[id]
	if !ok {
		return nil, errors.NewNotFound("parameter", id)
	}
	return p.Clone(), nil
}

// Update renames a parameter, changes its unit of measurement or its type.
func (pm *ParameterManager) Update(id string, upd ParameterUpdate) (*store.Parameter, error) {
	if upd.Name != nil {
		if err := validation.ValidateParameterName(*upd.Name); err != nil {
			return nil, err
		}
	}
	var spec *store.TypeSpec
	if upd.Type != nil {
		s, err := store.LookupType(*upd.Type)
		if err != nil {
			return nil, err
		}
		spec = &s
	}

	c := pm.m.cat
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.params[id]
	if !ok {
		return nil, errors.NewNotFound("parameter", id)
	}
	if _, err := pm.m.mutableSatelliteLocked(cur.SatelliteID); err != nil {
		return nil, err
	}

	next := cur.Clone()
	if upd.Name != nil && *upd.Name != cur.Name {
		if pm.nameTakenLocked(cur.UnitID, *upd.Name, id) {
			return nil, errors.NewDuplicateName("parameter", *upd.Name, "unit "+cur.UnitID)
		}
		next.Name = *upd.Name
	}

	retyped := spec != nil && spec.Type != cur.Type
	if retyped {
		n, err := pm.m.series.Count(id)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, fmt.Errorf("parameter '%s' has %d points, cannot change type: %w", id, n, errors.ErrInUse)
		}
		next.Type = spec.Type
		next.Min = spec.Min
		next.Max = spec.Max
		if upd.UOM == nil && cur.UOM == pm.defaultUOM(cur.Type) {
			next.UOM = spec.UOM
		}
	}
	if upd.UOM != nil {
		next.UOM = *upd.UOM
		if next.UOM == "" {
			next.UOM = pm.defaultUOM(next.Type)
		}
	}
	next.UpdatedAt = pm.m.timestamp()
	next.Version++

	if err := pm.m.persist.SaveParameter(next); err != nil {
		return nil, err
	}
	if retyped {
		// Empty series, checked above under the catalog lock.
		if err := pm.m.series.Register(id, next.Range()); err != nil {
			return nil, err
		}
	}
	c.params[id] = next
	return next.Clone(), nil
}

// Delete removes a parameter and drops its series.
func (pm *ParameterManager) Delete(id string) error {
	c := pm.m.cat
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.params[id]
	if !ok {
		return errors.NewNotFound("parameter", id)
	}
	if _, err := pm.m.mutableSatelliteLocked(p.SatelliteID); err != nil {
		return err
	}

	if err := pm.m.persist.DeleteParameter(id); err != nil {
		return err
	}
	delete(c.params, id)
	removeChild(c.paramsByUnit, p.UnitID, id)
	pm.m.series.Drop(id)
	pm.m.stats.Remove(id)

	log.Info("parameter deleted", "parameter_id", id, "unit_id", p.UnitID)
	return nil
}

// ListByUnit returns the parameters of a unit in creation order.
func (pm *ParameterManager) ListByUnit(unitID string) ([]*store.Parameter, error) {
	c := pm.m.cat
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.units[unitID]; !ok {
		return nil, errors.NewNotFound("unit", unitID)
	}
	return cloneParams(sortedParams(c, c.paramsByUnit[unitID])), nil
}

func (pm *ParameterManager) nameTakenLocked(unitID, name, exceptID string) bool {
	c := pm.m.cat
	for pid := range c.paramsByUnit[unitID] {
		if pid != exceptID && c.params[pid].Name == name {
			return true
		}
	}
	return false
}

func (pm *ParameterManager) defaultUOM(t store.ParameterType) string {
	spec, err := store.LookupType(t)
	if err != nil {
		return ""
	}
	return spec.UOM
}
