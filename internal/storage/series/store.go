// Package series implements the in-memory telemetry store: one append-only,
// time-ordered series of numeric points per parameter.
//
// The store knows nothing about satellites or units. A series is created by
// Register with the value bounds of its parameter and removed by Drop when
// the parameter is deleted. Accepted appends are optionally written to a
// Journal before they become visible to readers.
package series

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/logging"
	"github.com/xtxerr/satmon/internal/storage/types"
)

var log = logging.Component("series")

// Journal persists accepted points. *wal.Writer implements it.
type Journal interface {
	Write(points []types.DataPoint) error
}

// Store holds every registered series.
//
// Lock order: Store.mu is only held to look up or (un)register a series;
// appends and reads take the per-series lock. Appends to different
// parameters never contend in memory, though a shared Journal serializes
// its own writes.
type Store struct {
	mu     sync.RWMutex
	series map[string]*series

	journal Journal

	appended atomic.Int64
	rejected atomic.Int64
}

type series struct {
	mu     sync.RWMutex
	bounds types.Range
	points []types.DataPoint
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Series   int
	Points   int64
	Appended int64
	Rejected int64
}

// Option configures a Store.
type Option func(*Store)

// WithJournal makes every accepted append durable in j before it is visible.
func WithJournal(j Journal) Option {
	return func(s *Store) {
		s.journal = j
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		series: make(map[string]*series),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an empty series for parameterID with the given bounds.
// Registering an existing series updates its bounds only while it is empty.
func (s *Store) Register(parameterID string, bounds types.Range) error {
	if parameterID == "" {
		return errors.NewMissingField("parameter_id")
	}
	if err := bounds.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.series[parameterID]; ok {
		existing.mu.Lock()
		defer existing.mu.Unlock()
		if len(existing.points) > 0 && existing.bounds != bounds {
			return fmt.Errorf("series '%s' holds %d points, cannot change bounds: %w",
				parameterID, len(existing.points), errors.ErrInUse)
		}
		existing.bounds = bounds
		return nil
	}

	s.series[parameterID] = &series{bounds: bounds}
	return nil
}

// Drop removes a series and its points. It reports whether the series existed.
func (s *Store) Drop(parameterID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.series[parameterID]; !ok {
		return false
	}
	delete(s.series, parameterID)
	return true
}

// Has reports whether a series is registered.
func (s *Store) Has(parameterID string) bool {
	_, ok := s.lookup(parameterID)
	return ok
}

// Bounds returns the value bounds of a series.
func (s *Store) Bounds(parameterID string) (types.Range, error) {
	ser, ok := s.lookup(parameterID)
	if !ok {
		return types.Range{}, errors.NewNotFound("series", parameterID)
	}
	ser.mu.RLock()
	defer ser.mu.RUnlock()
	return ser.bounds, nil
}

func (s *Store) lookup(parameterID string) (*series, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ser, ok := s.series[parameterID]
	return ser, ok
}

// Append adds one point to the end of a series.
//
// Errors: NotFound for an unknown series, OutOfRange when value lies outside
// the series bounds, InvalidRange when timestampMs is older than the last
// point of the series.
func (s *Store) Append(parameterID string, timestampMs int64, value float64) (types.DataPoint, error) {
	p := types.DataPoint{ParameterID: parameterID, TimestampMs: timestampMs, Value: value}
	if err := s.AppendBatch(parameterID, []types.DataPoint{p}); err != nil {
		return types.DataPoint{}, err
	}
	return p, nil
}

// AppendBatch validates all points, then appends them atomically: either the
// whole batch becomes visible or none of it does. Points must be in
// chronological order and not older than the current last point.
func (s *Store) AppendBatch(parameterID string, points []types.DataPoint) error {
	if len(points) == 0 {
		return nil
	}

	ser, ok := s.lookup(parameterID)
	if !ok {
		s.rejected.Add(int64(len(points)))
		return errors.NewNotFound("series", parameterID)
	}

	ser.mu.Lock()
	defer ser.mu.Unlock()

	last := int64(0)
	hasLast := len(ser.points) > 0
	if hasLast {
		last = ser.points[len(ser.points)-1].TimestampMs
	}

	batch := make([]types.DataPoint, len(points))
	for i, p := range points {
		if !ser.bounds.Contains(p.Value) {
			s.rejected.Add(int64(len(points)))
			return errors.NewOutOfRange(parameterID, p.Value, ser.bounds.Min, ser.bounds.Max)
		}
		if hasLast && p.TimestampMs < last {
			s.rejected.Add(int64(len(points)))
			return errors.NewInvalidRange(fmt.Sprintf(
				"parameter '%s' timestamp %d older than last point %d", parameterID, p.TimestampMs, last))
		}
		p.ParameterID = parameterID
		batch[i] = p
		last = p.TimestampMs
		hasLast = true
	}

	if s.journal != nil {
		if err := s.journal.Write(batch); err != nil {
			s.rejected.Add(int64(len(points)))
			log.Error("journal write failed", "parameter_id", parameterID, "points", len(batch), "error", err)
			return fmt.Errorf("%w: %v", errors.ErrJournal, err)
		}
	}

	ser.points = append(ser.points, batch...)
	s.appended.Add(int64(len(batch)))
	return nil
}

// Restore appends points read back from a journal without re-journaling
// them. Points for unknown series or violating the series invariants are
// skipped and counted.
func (s *Store) Restore(points []types.DataPoint) (skipped int) {
	for _, p := range points {
		ser, ok := s.lookup(p.ParameterID)
		if !ok {
			skipped++
			continue
		}

		ser.mu.Lock()
		n := len(ser.points)
		if !ser.bounds.Contains(p.Value) || (n > 0 && p.TimestampMs < ser.points[n-1].TimestampMs) {
			skipped++
		} else {
			ser.points = append(ser.points, p)
		}
		ser.mu.Unlock()
	}
	return skipped
}

// Query returns the points of a series with start <= ts <= end in
// chronological order. Nil bounds are open. The result is a copy owned by
// the caller. start > end fails with InvalidRange before any lookup.
func (s *Store) Query(parameterID string, start, end *int64) ([]types.DataPoint, error) {
	if start != nil && end != nil && *start > *end {
		return nil, errors.NewInvalidRange(fmt.Sprintf("start %d after end %d", *start, *end))
	}

	ser, ok := s.lookup(parameterID)
	if !ok {
		return nil, errors.NewNotFound("series", parameterID)
	}

	ser.mu.RLock()
	defer ser.mu.RUnlock()

	lo, hi := 0, len(ser.points)
	if start != nil {
		lo = sort.Search(len(ser.points), func(i int) bool {
			return ser.points[i].TimestampMs >= *start
		})
	}
	if end != nil {
		hi = sort.Search(len(ser.points), func(i int) bool {
			return ser.points[i].TimestampMs > *end
		})
	}
	if lo >= hi {
		return []types.DataPoint{}, nil
	}

	out := make([]types.DataPoint, hi-lo)
	copy(out, ser.points[lo:hi])
	return out, nil
}

// Latest returns the most recent point of a series. ok is false for an
// empty series.
func (s *Store) Latest(parameterID string) (p types.DataPoint, ok bool, err error) {
	ser, found := s.lookup(parameterID)
	if !found {
		return types.DataPoint{}, false, errors.NewNotFound("series", parameterID)
	}

	ser.mu.RLock()
	defer ser.mu.RUnlock()

	if len(ser.points) == 0 {
		return types.DataPoint{}, false, nil
	}
	return ser.points[len(ser.points)-1], true, nil
}

// Count returns the number of points in a series.
func (s *Store) Count(parameterID string) (int, error) {
	ser, ok := s.lookup(parameterID)
	if !ok {
		return 0, errors.NewNotFound("series", parameterID)
	}

	ser.mu.RLock()
	defer ser.mu.RUnlock()
	return len(ser.points), nil
}

// Stats returns store-wide counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	all := make([]*series, 0, len(s.series))
	for _, ser := range s.series {
		all = append(all, ser)
	}
	s.mu.RUnlock()

	st := Stats{
		Series:   len(all),
		Appended: s.appended.Load(),
		Rejected: s.rejected.Load(),
	}
	for _, ser := range all {
		ser.mu.RLock()
		st.Points += int64(len(ser.points))
		ser.mu.RUnlock()
	}
	return st
}
