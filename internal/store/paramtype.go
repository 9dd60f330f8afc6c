package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/storage/types"
)

// ParameterType is the declared kind of a parameter.
type ParameterType string

// Built-in parameter types.
const (
	TypeVoltage        ParameterType = "voltage"
	TypeTemperature    ParameterType = "temperature"
	TypePressure       ParameterType = "pressure"
	TypeBatteryLevel   ParameterType = "battery_level"
	TypeSignalStrength ParameterType = "signal_strength"
	TypeCurrent        ParameterType = "current"
)

// TypeSpec binds a parameter type to its unit of measurement and valid range.
type TypeSpec struct {
	Type ParameterType
	UOM  string
	Min  float64
	Max  float64
}

// Range returns the valid range of the type.
func (t TypeSpec) Range() types.Range {
	return types.Range{Min: t.Min, Max: t.Max}
}

var typeTable = struct {
	sync.RWMutex
	specs map[ParameterType]TypeSpec
}{
	specs: map[ParameterType]TypeSpec{
		TypeVoltage:        {Type: TypeVoltage, UOM: "V", Min: 11.5, Max: 13.0},
		TypeTemperature:    {Type: TypeTemperature, UOM: "°C", Min: -20, Max: 50},
		TypePressure:       {Type: TypePressure, UOM: "bar", Min: 0.8, Max: 1.2},
		TypeBatteryLevel:   {Type: TypeBatteryLevel, UOM: "%", Min: 0, Max: 100},
		TypeSignalStrength: {Type: TypeSignalStrength, UOM: "dBm", Min: -90, Max: -40},
		TypeCurrent:        {Type: TypeCurrent, UOM: "A", Min: 0, Max: 10},
	},
}

// LookupType returns the spec of a parameter type. Unknown types fail with
// ErrInvalidParameterType naming the allowed types.
func LookupType(t ParameterType) (TypeSpec, error) {
	typeTable.RLock()
	spec, ok := typeTable.specs[t]
	typeTable.RUnlock()

	if !ok {
		names := make([]string, 0)
		for _, s := range Types() {
			names = append(names, string(s.Type))
		}
		return TypeSpec{}, fmt.Errorf("unknown type '%s', allowed: %s: %w",
			t, strings.Join(names, ", "), errors.ErrInvalidParameterType)
	}
	return spec, nil
}

// RegisterType adds a parameter type to the table. Existing types cannot
// be redefined because stored series were validated against them.
func RegisterType(spec TypeSpec) error {
	if spec.Type == "" {
		return errors.NewMissingField("type")
	}
	if err := spec.Range().Validate(); err != nil {
		return err
	}

	typeTable.Lock()
	defer typeTable.Unlock()

	if _, exists := typeTable.specs[spec.Type]; exists {
		return fmt.Errorf("parameter type '%s' already defined: %w", spec.Type, errors.ErrInvalidParameterType)
	}
	typeTable.specs[spec.Type] = spec
	return nil
}

// Types returns all parameter types sorted by name.
func Types() []TypeSpec {
	typeTable.RLock()
	out := make([]TypeSpec, 0, len(typeTable.specs))
	for _, s := range typeTable.specs {
		out = append(out, s)
	}
	typeTable.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
