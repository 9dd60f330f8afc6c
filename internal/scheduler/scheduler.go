// Package scheduler provides heap-based tick scheduling for the live
// telemetry feed.
//
// The scheduler uses a min-heap to track when each parameter is due for its
// next tick. Workers execute ticks concurrently and results are sent to a
// channel for processing.
//
// Key features:
//   - O(log n) add/remove/update operations
//   - Jitter on the first tick to spread load
//   - Backpressure handling when workers are busy
//   - Graceful shutdown with drain timeout
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/satmon/config"
	"github.com/xtxerr/satmon/internal/logging"
)

var log = logging.Component("scheduler")

// =============================================================================
// Types
// =============================================================================

// TickResult is the outcome of one tick.
type TickResult struct {
	ParameterID string
	TimestampMs int64
	Value       float64
	Success     bool
	Skipped     bool
	Error       string
}

// TickItem is an entry in the scheduler heap.
type TickItem struct {
	ParameterID string
	NextTickMs  int64 // Unix ms when the next tick is due
	IntervalMs  int64
	Running     bool
	deleted     bool
	index       int
}

// =============================================================================
// Heap Implementation
// =============================================================================

// TickHeap implements heap.Interface for TickItems.
type TickHeap []*TickItem

func (h TickHeap) Len() int { return len(h) }

func (h TickHeap) Less(i, j int) bool {
	return h[i].NextTickMs < h[j].NextTickMs
}

func (h TickHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *TickHeap) Push(x any) {
	item := x.(*TickItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *TickHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Peek returns the top item without removing it.
func (h TickHeap) Peek() *TickItem {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// =============================================================================
// Scheduler Configuration
// =============================================================================

// BackpressureDelayMs is the delay applied when the job queue is full.
const BackpressureDelayMs = 1000

// Config holds scheduler configuration.
type Config struct {
	// Workers is the number of concurrent tick workers.
	Workers int

	// QueueSize is the job queue capacity.
	QueueSize int

	// ResultsSize is the results channel capacity.
	ResultsSize int

	// TickInterval is how often the scheduler checks for due items.
	TickInterval time.Duration

	// DrainTimeout is how long to wait for in-flight ticks during shutdown.
	DrainTimeout time.Duration

	// JobTimeout bounds a single tick.
	JobTimeout time.Duration
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		Workers:      config.DefaultLiveWorkers,
		QueueSize:    config.DefaultLiveQueueSize,
		ResultsSize:  config.DefaultLiveQueueSize,
		TickInterval: config.DefaultSchedulerTickInterval,
		DrainTimeout: time.Duration(config.DefaultDrainTimeoutSec) * time.Second,
		JobTimeout:   30 * time.Second,
	}
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.Workers <= 0 {
		out.Workers = def.Workers
	}
	if out.QueueSize <= 0 {
		out.QueueSize = def.QueueSize
	}
	if out.ResultsSize <= 0 {
		out.ResultsSize = def.ResultsSize
	}
	if out.TickInterval <= 0 {
		out.TickInterval = def.TickInterval
	}
	if out.DrainTimeout <= 0 {
		out.DrainTimeout = def.DrainTimeout
	}
	if out.JobTimeout <= 0 {
		out.JobTimeout = def.JobTimeout
	}
	return &out
}

// =============================================================================
// Scheduler
// =============================================================================

// TickFunc produces one tick for a parameter.
type TickFunc func(ctx context.Context, parameterID string) TickResult

// Scheduler manages tick scheduling using a min-heap.
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	mu      sync.Mutex
	heap    TickHeap
	heapIdx map[string]*TickItem

	jobs    chan string
	results chan TickResult

	tickFunc TickFunc

	shutdown chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	activeWorkers atomic.Int32

	wakeup chan struct{}

	workers      int
	tickInterval time.Duration
	drainTimeout time.Duration
	jobTimeout   time.Duration

	backpressure atomic.Int64
	ticksQueued  atomic.Int64
}

// New creates a new Scheduler.
func New(cfg *Config) *Scheduler {
	cfg = cfg.withDefaults()

	return &Scheduler{
		heap:         make(TickHeap, 0),
		heapIdx:      make(map[string]*TickItem),
		jobs:         make(chan string, cfg.QueueSize),
		results:      make(chan TickResult, cfg.ResultsSize),
		shutdown:     make(chan struct{}),
		wakeup:       make(chan struct{}, 1),
		workers:      cfg.Workers,
		tickInterval: cfg.TickInterval,
		drainTimeout: cfg.DrainTimeout,
		jobTimeout:   cfg.JobTimeout,
	}
}

// SetTickFunc sets the function executed for every due item. It must be
// called before Start.
func (s *Scheduler) SetTickFunc(fn TickFunc) {
	s.tickFunc = fn
}

// Results returns the results channel. It is closed by Stop once all
// workers have exited.
func (s *Scheduler) Results() <-chan TickResult {
	return s.results
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start starts the workers and the schedule loop.
func (s *Scheduler) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(context.Background())
	}

	s.wg.Add(1)
	go s.scheduleLoop()

	log.Info("scheduler started", "workers", s.workers)
}

// Stop stops the scheduler gracefully, waiting for in-flight ticks.
func (s *Scheduler) Stop() {
	s.StopWithContext(context.Background())
}

// StopWithContext stops the scheduler. The configured drain timeout is the
// upper bound on waiting for in-flight ticks.
func (s *Scheduler) StopWithContext(ctx context.Context) {
	s.stopOnce.Do(func() {
		log.Info("scheduler stopping")
		close(s.shutdown)

		drainCtx, cancel := context.WithTimeout(ctx, s.drainTimeout)
		defer cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			close(s.results)
			log.Info("scheduler stopped gracefully")
		case <-drainCtx.Done():
			// Workers still running own the results channel; leave it open.
			log.Warn("scheduler drain timeout", "active_workers", s.activeWorkers.Load())
		}
	})
}

// =============================================================================
// Item Management
// =============================================================================

// Add schedules a parameter. The first tick is delayed by a random jitter
// up to one interval.
func (s *Scheduler) Add(parameterID string, interval time.Duration) {
	intervalMs := max(interval.Milliseconds(), 1)
	jitter := rand.Int64N(intervalMs)

	s.mu.Lock()
	defer s.mu.Unlock()

	if item, ok := s.heapIdx[parameterID]; ok && !item.deleted {
		return
	}

	item := &TickItem{
		ParameterID: parameterID,
		NextTickMs:  time.Now().UnixMilli() + jitter,
		IntervalMs:  intervalMs,
	}

	heap.Push(&s.heap, item)
	s.heapIdx[parameterID] = item
	s.signalWakeup()

	log.Debug("parameter scheduled", "parameter_id", parameterID, "interval_ms", intervalMs)
}

// Remove unschedules a parameter. An item that is currently running is
// marked deleted and cleaned up when its tick completes.
func (s *Scheduler) Remove(parameterID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.heapIdx[parameterID]
	if !ok {
		return
	}

	item.deleted = true
	if !item.Running {
		if item.index >= 0 {
			heap.Remove(&s.heap, item.index)
		}
		delete(s.heapIdx, parameterID)
	}

	log.Debug("parameter unscheduled", "parameter_id", parameterID, "was_running", item.Running)
}

// UpdateInterval changes the tick interval of a scheduled parameter. It takes
// effect after the next tick.
func (s *Scheduler) UpdateInterval(parameterID string, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.heapIdx[parameterID]
	if !ok {
		return
	}
	item.IntervalMs = max(interval.Milliseconds(), 1)
}

// Contains reports whether the parameter is scheduled.
func (s *Scheduler) Contains(parameterID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.heapIdx[parameterID]
	return ok && !item.deleted
}

// =============================================================================
// Schedule Loop
// =============================================================================

func (s *Scheduler) scheduleLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processDueItems()
		case <-s.wakeup:
			s.processDueItems()
		case <-s.shutdown:
			return
		}
	}
}

func (s *Scheduler) processDueItems() {
	now := time.Now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	for s.heap.Len() > 0 {
		if s.heap.Peek().NextTickMs > now {
			break
		}

		item := heap.Pop(&s.heap).(*TickItem)
		if item.deleted {
			delete(s.heapIdx, item.ParameterID)
			continue
		}

		item.Running = true

		select {
		case s.jobs <- item.ParameterID:
			s.ticksQueued.Add(1)
		default:
			// Queue full, retry later.
			item.NextTickMs = now + BackpressureDelayMs
			item.Running = false
			heap.Push(&s.heap, item)
			s.backpressure.Add(1)
		}
	}
}

// MarkComplete reschedules a parameter after its tick finished.
func (s *Scheduler) MarkComplete(parameterID string) {
	now := time.Now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.heapIdx[parameterID]
	if !ok {
		return
	}

	if item.deleted {
		delete(s.heapIdx, parameterID)
		return
	}

	item.NextTickMs = now + item.IntervalMs
	item.Running = false

	if item.index < 0 {
		heap.Push(&s.heap, item)
	} else {
		heap.Fix(&s.heap, item.index)
	}

	s.signalWakeup()
}

// =============================================================================
// Worker
// =============================================================================

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case id := <-s.jobs:
			result := s.executeWithRecovery(ctx, id)
			s.MarkComplete(id)

			select {
			case s.results <- result:
			case <-s.shutdown:
				return
			}

		case <-s.shutdown:
			return
		}
	}
}

func (s *Scheduler) executeWithRecovery(ctx context.Context, parameterID string) (result TickResult) {
	s.activeWorkers.Add(1)

	defer func() {
		s.activeWorkers.Add(-1)

		if r := recover(); r != nil {
			log.Error("panic in tick", "parameter_id", parameterID, "panic", r)
			result = TickResult{
				ParameterID: parameterID,
				TimestampMs: time.Now().UnixMilli(),
				Error:       fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	if s.tickFunc == nil {
		return TickResult{
			ParameterID: parameterID,
			TimestampMs: time.Now().UnixMilli(),
			Error:       "no tick function configured",
		}
	}
	return s.tickFunc(jobCtx, parameterID)
}

// =============================================================================
// Utility Methods
// =============================================================================

func (s *Scheduler) signalWakeup() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	HeapSize     int
	QueueUsed    int
	Active       int
	Queued       int64
	Backpressure int64
}

// Stats returns scheduler statistics.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	heapSize := s.heap.Len()
	s.mu.Unlock()

	return Stats{
		HeapSize:     heapSize,
		QueueUsed:    len(s.jobs),
		Active:       int(s.activeWorkers.Load()),
		Queued:       s.ticksQueued.Load(),
		Backpressure: s.backpressure.Load(),
	}
}

// Scheduled returns the ids of all scheduled parameters.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.heapIdx))
	for id, item := range s.heapIdx {
		if !item.deleted {
			ids = append(ids, id)
		}
	}
	return ids
}

// NextTick returns when a parameter is next due.
func (s *Scheduler) NextTick(parameterID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.heapIdx[parameterID]
	if !ok || item.deleted {
		return time.Time{}, false
	}
	return time.UnixMilli(item.NextTickMs), true
}

// Count returns the number of scheduled parameters.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, item := range s.heapIdx {
		if !item.deleted {
			count++
		}
	}
	return count
}
