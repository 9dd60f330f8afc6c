package store

import (
	"fmt"
	"maps"
	"time"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/storage/types"
)

// =============================================================================
// Satellite
// =============================================================================

// SatelliteStatus is the lifecycle state of a satellite.
type SatelliteStatus string

const (
	StatusPending  SatelliteStatus = "pending"
	StatusActive   SatelliteStatus = "active"
	StatusDisabled SatelliteStatus = "disabled"
)

// Valid reports whether s is a known status.
func (s SatelliteStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusDisabled:
		return true
	}
	return false
}

// ParseSatelliteStatus parses a status name.
func ParseSatelliteStatus(name string) (SatelliteStatus, error) {
	s := SatelliteStatus(name)
	if !s.Valid() {
		return "", errors.NewInvalidValue("status", name, "expected pending, active or disabled")
	}
	return s, nil
}

// Satellite is the top-level monitored asset. Satellites are never deleted.
type Satellite struct {
	ID          string
	Name        string
	LaunchDate  time.Time
	Status      SatelliteStatus
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ActivatedAt *time.Time
	DisabledAt  *time.Time
	Version     int
}

// Clone returns a deep copy safe to hand out of the catalog lock.
func (s *Satellite) Clone() *Satellite {
	c := *s
	c.Metadata = maps.Clone(s.Metadata)
	if s.ActivatedAt != nil {
		t := *s.ActivatedAt
		c.ActivatedAt = &t
	}
	if s.DisabledAt != nil {
		t := *s.DisabledAt
		c.DisabledAt = &t
	}
	return &c
}

// =============================================================================
// Unit
// =============================================================================

// Unit is a named subsystem of a satellite, e.g. "Power System".
type Unit struct {
	ID          string
	SatelliteID string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int
}

// Clone returns a copy of the unit.
func (u *Unit) Clone() *Unit {
	c := *u
	return &c
}

// =============================================================================
// Parameter
// =============================================================================

// Parameter is a single typed, ranged sensor channel of a unit.
// SatelliteID is denormalised from the owning unit.
type Parameter struct {
	ID          string
	UnitID      string
	SatelliteID string
	Name        string
	Type        ParameterType
	UOM         string
	Min         float64
	Max         float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int
}

// Range returns the valid value range of the parameter.
func (p *Parameter) Range() types.Range {
	return types.Range{Min: p.Min, Max: p.Max}
}

// Clone returns a copy of the parameter.
func (p *Parameter) Clone() *Parameter {
	c := *p
	return &c
}

// String identifies the parameter in logs.
func (p *Parameter) String() string {
	return fmt.Sprintf("%s(%s, %s)", p.Name, p.ID, p.Type)
}
