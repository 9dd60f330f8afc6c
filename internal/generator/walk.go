// Package generator produces synthetic telemetry for parameters.
//
// Values follow a bounded random walk: the walk starts at the midpoint of
// the parameter's valid range, every step adds a uniform perturbation of at
// most StepFraction of the range span, and the result is clamped to the
// range. The walk is fully determined by the seed and the parameter id.
package generator

import (
	"hash/fnv"
	"math/rand/v2"

	"github.com/xtxerr/satmon/internal/storage/types"
)

// Walker is a bounded random walk over one value range.
//
// Walker is not safe for concurrent use.
type Walker struct {
	bounds  types.Range
	maxStep float64
	rng     *rand.Rand
	cur     float64
}

// NewWalker returns a walk over bounds seeded from (seed, key). The key is
// normally the parameter id so that parameters sharing a type still get
// independent series.
func NewWalker(bounds types.Range, stepFraction float64, seed uint64, key string) *Walker {
	return &Walker{
		bounds:  bounds,
		maxStep: stepFraction * bounds.Span(),
		rng:     rand.New(rand.NewPCG(seed, keyHash(key))),
		cur:     bounds.Mid(),
	}
}

// Value returns the current position without advancing.
func (w *Walker) Value() float64 {
	return w.cur
}

// MaxStep returns the largest distance between two consecutive values.
func (w *Walker) MaxStep() float64 {
	return w.maxStep
}

// Resume moves the walk to v, clamped to the bounds. The live feed uses it to
// continue from a parameter's latest stored value.
func (w *Walker) Resume(v float64) {
	w.cur = w.bounds.Clamp(v)
}

// Next advances the walk one step and returns the new value.
func (w *Walker) Next() float64 {
	delta := (w.rng.Float64()*2 - 1) * w.maxStep
	w.cur = w.bounds.Clamp(w.cur + delta)
	return w.cur
}

// Walk returns n values of the walk seeded from (seed, key). The first value
// is the midpoint of bounds.
func Walk(bounds types.Range, stepFraction float64, seed uint64, key string, n int) []float64 {
	if n <= 0 {
		return nil
	}
	w := NewWalker(bounds, stepFraction, seed, key)
	out := make([]float64, n)
	out[0] = w.Value()
	for i := 1; i < n; i++ {
		out[i] = w.Next()
	}
	return out
}

func keyHash(key string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return h.Sum64()
}
