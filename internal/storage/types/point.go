package types

import (
	"fmt"
	"math"
	"time"

	"github.com/xtxerr/satmon/internal/errors"
)

// DataPoint is a single measurement of one parameter.
// Points are immutable once appended to a series.
type DataPoint struct {
	ParameterID string  // Owning parameter
	TimestampMs int64   // Unix timestamp in milliseconds
	Value       float64 // Measured value
}

// Time returns the timestamp as a time.Time.
func (p DataPoint) Time() time.Time {
	return time.UnixMilli(p.TimestampMs)
}

// Range holds the inclusive value bounds of a parameter.
type Range struct {
	Min float64
	Max float64
}

// Validate checks that the bounds are finite and ordered.
func (r Range) Validate() error {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) {
		return errors.NewValidation("range", "bounds must be finite")
	}
	if r.Min > r.Max {
		return errors.NewValidation("range", fmt.Sprintf("min %g greater than max %g", r.Min, r.Max))
	}
	return nil
}

// Contains reports whether v lies within [Min, Max].
func (r Range) Contains(v float64) bool {
	return !math.IsNaN(v) && v >= r.Min && v <= r.Max
}

// Span returns Max - Min.
func (r Range) Span() float64 {
	return r.Max - r.Min
}

// Mid returns the midpoint of the range.
func (r Range) Mid() float64 {
	return r.Min + r.Span()/2
}

// Clamp limits v to [Min, Max].
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}
