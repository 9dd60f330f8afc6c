package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/generator"
	"github.com/xtxerr/satmon/internal/storage/types"
	"github.com/xtxerr/satmon/internal/store"
)

// Source is the catalog and ingest path the live feed drives.
// *manager.Manager implements it.
type Source interface {
	ActiveParameters() []*store.Parameter
	Latest(parameterID string) (types.DataPoint, bool, error)
	Ingest(parameterID string, timestampMs int64, value float64) (types.DataPoint, error)
}

// FeedConfig configures the live feed.
type FeedConfig struct {
	// Interval between two points of one parameter.
	Interval time.Duration

	// ReconcileInterval is how often the schedule is synced with the set of
	// active parameters.
	ReconcileInterval time.Duration

	Scheduler *Config
}

type feedState struct {
	bounds types.Range
	walk   *generator.Walker
	primed bool
}

// Feed appends a new generated point for every parameter of every active
// satellite once per interval. Each walk continues from the parameter's
// latest stored value.
type Feed struct {
	src   Source
	gen   *generator.Generator
	sched *Scheduler
	cfg   FeedConfig
	now   func() time.Time

	mu     sync.Mutex
	states map[string]*feedState

	stop chan struct{}
	done sync.WaitGroup
	once sync.Once
}

// NewFeed creates a live feed. Zero intervals fall back to the generator's
// interval.
func NewFeed(src Source, gen *generator.Generator, cfg FeedConfig) *Feed {
	if cfg.Interval <= 0 {
		cfg.Interval = gen.Config().Interval
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = cfg.Interval
	}

	f := &Feed{
		src:    src,
		gen:    gen,
		sched:  New(cfg.Scheduler),
		cfg:    cfg,
		now:    time.Now,
		states: make(map[string]*feedState),
		stop:   make(chan struct{}),
	}
	f.sched.SetTickFunc(f.tick)
	return f
}

// Scheduler returns the underlying scheduler.
func (f *Feed) Scheduler() *Scheduler {
	return f.sched
}

// Start schedules all active parameters and starts the feed.
func (f *Feed) Start() {
	f.sched.Start()
	added, _ := f.Reconcile()

	f.done.Add(2)
	go f.reconcileLoop()
	go f.drainResults()

	log.Info("live feed started", "parameters", added, "interval", f.cfg.Interval)
}

// Stop stops the feed and waits for in-flight ticks.
func (f *Feed) Stop(ctx context.Context) {
	f.once.Do(func() {
		close(f.stop)
		f.sched.StopWithContext(ctx)
		f.done.Wait()
		log.Info("live feed stopped")
	})
}

// Reconcile schedules parameters that became active and unschedules those
// that were deleted or whose satellite is no longer active.
func (f *Feed) Reconcile() (added, removed int) {
	active := f.src.ActiveParameters()
	want := make(map[string]*store.Parameter, len(active))
	for _, p := range active {
		want[p.ID] = p
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for id := range f.states {
		if _, ok := want[id]; !ok {
			f.sched.Remove(id)
			delete(f.states, id)
			removed++
		}
	}

	for id, p := range want {
		st, ok := f.states[id]
		if ok && st.bounds == p.Range() {
			continue
		}
		f.states[id] = &feedState{bounds: p.Range(), walk: f.gen.Walker(p)}
		if !ok {
			f.sched.Add(id, f.cfg.Interval)
			added++
		}
	}

	if added > 0 || removed > 0 {
		log.Debug("live feed reconciled", "added", added, "removed", removed, "scheduled", len(f.states))
	}
	return added, removed
}

func (f *Feed) reconcileLoop() {
	defer f.done.Done()

	ticker := time.NewTicker(f.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.Reconcile()
		case <-f.stop:
			return
		}
	}
}

func (f *Feed) drainResults() {
	defer f.done.Done()

	results := f.sched.Results()
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return
			}
			if r.Error != "" {
				log.Debug("live tick failed", "parameter_id", r.ParameterID, "error", r.Error)
			}
		case <-f.stop:
			return
		}
	}
}

// tick produces and appends the next point of one parameter.
func (f *Feed) tick(ctx context.Context, parameterID string) TickResult {
	ts := f.now().UnixMilli()
	res := TickResult{ParameterID: parameterID, TimestampMs: ts}

	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}

	f.mu.Lock()
	st, ok := f.states[parameterID]
	f.mu.Unlock()
	if !ok {
		res.Skipped = true
		return res
	}

	latest, has, err := f.src.Latest(parameterID)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if has && latest.TimestampMs >= ts {
		res.Skipped = true
		return res
	}

	// The walker is only touched by this parameter's tick, and the scheduler
	// never runs two ticks of one parameter at once.
	if has && !st.primed {
		st.walk.Resume(latest.Value)
	}
	st.primed = true
	v := st.walk.Next()

	if _, err := f.src.Ingest(parameterID, ts, v); err != nil {
		res.Error = err.Error()
		if errors.IsNotFound(err) || errors.Is(err, errors.ErrSatelliteDisabled) {
			f.sched.Remove(parameterID)
			f.mu.Lock()
			delete(f.states, parameterID)
			f.mu.Unlock()
		}
		return res
	}

	res.Value = v
	res.Success = true
	return res
}
