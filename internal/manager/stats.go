package manager

import (
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// Ingest Statistics
// =============================================================================

// IngestStats tracks write outcomes for one parameter across every ingest
// path (REST, MQTT, live feed, backfill).
//
// Counters use atomic operations; the last rejection is protected by mu.
type IngestStats struct {
	ParameterID string

	Accepted atomic.Int64
	Rejected atomic.Int64

	mu           sync.RWMutex
	lastError    string
	lastRejectAt *time.Time
}

// IngestSnapshot is a point-in-time copy of IngestStats.
type IngestSnapshot struct {
	Accepted     int64
	Rejected     int64
	LastError    string
	LastRejectAt *time.Time
}

// Record records the outcome of writing n points.
func (s *IngestStats) Record(n int, err error, at time.Time) {
	if err == nil {
		s.Accepted.Add(int64(n))
		return
	}

	s.Rejected.Add(int64(n))
	s.mu.Lock()
	s.lastError = err.Error()
	s.lastRejectAt = &at
	s.mu.Unlock()
}

// Snapshot returns the current counters.
func (s *IngestStats) Snapshot() IngestSnapshot {
	snap := IngestSnapshot{
		Accepted: s.Accepted.Load(),
		Rejected: s.Rejected.Load(),
	}

	s.mu.RLock()
	snap.LastError = s.lastError
	if s.lastRejectAt != nil {
		t := *s.lastRejectAt
		snap.LastRejectAt = &t
	}
	s.mu.RUnlock()

	return snap
}

// =============================================================================
// Stats Manager
// =============================================================================

// StatsManager holds IngestStats per parameter. It is safe for concurrent use.
type StatsManager struct {
	mu    sync.RWMutex
	stats map[string]*IngestStats
}

// NewStatsManager creates a new stats manager.
func NewStatsManager() *StatsManager {
	return &StatsManager{
		stats: make(map[string]*IngestStats),
	}
}

// Get returns the statistics of a parameter, creating them if needed.
func (m *StatsManager) Get(parameterID string) *IngestStats {
	// Fast path: read lock
	m.mu.RLock()
	stats, ok := m.stats[parameterID]
	m.mu.RUnlock()

	if ok {
		return stats
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if stats, ok := m.stats[parameterID]; ok {
		return stats
	}

	stats = &IngestStats{ParameterID: parameterID}
	m.stats[parameterID] = stats
	return stats
}

// GetIfExists returns the statistics of a parameter if they exist.
func (m *StatsManager) GetIfExists(parameterID string) *IngestStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats[parameterID]
}

// Remove drops the statistics of a parameter.
func (m *StatsManager) Remove(parameterID string) {
	m.mu.Lock()
	delete(m.stats, parameterID)
	m.mu.Unlock()
}

// Aggregate returns the counters summed over all parameters.
func (m *StatsManager) Aggregate() (accepted, rejected int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, stats := range m.stats {
		accepted += stats.Accepted.Load()
		rejected += stats.Rejected.Load()
	}
	return
}
