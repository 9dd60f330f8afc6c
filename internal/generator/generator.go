package generator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/xtxerr/satmon/config"
	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/logging"
	"github.com/xtxerr/satmon/internal/storage/types"
	"github.com/xtxerr/satmon/internal/store"
)

var log = logging.Component("generator")

// =============================================================================
// Configuration
// =============================================================================

// Config holds generator settings.
type Config struct {
	// Seed seeds every walk. Two generators with the same seed produce the
	// same series for the same parameter and window.
	Seed uint64

	// StepFraction bounds one step as a fraction of the value span.
	StepFraction float64

	// Interval is the spacing between points.
	Interval time.Duration

	// Window is the length of the default historical window.
	Window time.Duration

	// Workers bounds concurrent per-parameter backfills.
	Workers int
}

// DefaultConfig returns the default generator configuration.
func DefaultConfig() Config {
	return Config{
		Seed:         config.DefaultGeneratorSeed,
		StepFraction: config.DefaultStepFraction,
		Interval:     config.DefaultGeneratorInterval,
		Window:       config.DefaultGeneratorWindow,
		Workers:      config.DefaultBackfillWorkers,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	errs := errors.NewValidationErrors()
	if c.StepFraction <= 0 || c.StepFraction > 1 || math.IsNaN(c.StepFraction) {
		errs.AddField("generator.step_fraction", fmt.Sprintf("must be in (0, 1], got %g", c.StepFraction))
	}
	if c.Interval < time.Millisecond || c.Interval%time.Millisecond != 0 {
		errs.AddField("generator.interval", "must be a positive whole number of milliseconds")
	}
	if c.Window < c.Interval {
		errs.AddField("generator.window", "must be at least one interval")
	}
	if c.Workers <= 0 {
		errs.AddField("generator.backfill_workers", "must be positive")
	}
	return errs.Err()
}

// =============================================================================
// Window
// =============================================================================

// Window is a half-open time range [Start, End) sampled every Interval.
type Window struct {
	Start    time.Time
	End      time.Time
	Interval time.Duration
}

// Validate checks that the window is well formed.
func (w Window) Validate() error {
	if w.Start.After(w.End) {
		return errors.NewInvalidRange(fmt.Sprintf("window start %s is after end %s",
			w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339)))
	}
	if w.Interval < time.Millisecond || w.Interval%time.Millisecond != 0 {
		return errors.NewInvalidValue("interval", w.Interval, "must be a positive whole number of milliseconds")
	}
	return nil
}

// Count returns the number of points in the window.
func (w Window) Count() int {
	if w.Interval <= 0 || !w.End.After(w.Start) {
		return 0
	}
	span := w.End.Sub(w.Start)
	n := int(span / w.Interval)
	if span%w.Interval != 0 {
		n++
	}
	return n
}

// =============================================================================
// Producer
// =============================================================================

// SeriesProducer is a source of telemetry for one parameter over a window.
// The generator is one implementation; recorded telemetry could be another.
type SeriesProducer interface {
	Produce(ctx context.Context, p *store.Parameter, w Window) ([]types.DataPoint, error)
}

// Generator produces bounded random-walk series.
//
// Generator is safe for concurrent use.
type Generator struct {
	cfg Config
	now func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the clock used for the default window.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// New creates a Generator. Zero config fields take their defaults.
func New(cfg Config, opts ...Option) *Generator {
	def := DefaultConfig()
	if cfg.StepFraction <= 0 {
		cfg.StepFraction = def.StepFraction
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}

	g := &Generator{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Config returns the effective configuration.
func (g *Generator) Config() Config {
	return g.cfg
}

// DefaultWindow returns the configured window ending now, truncated to the
// interval so repeated calls within one interval agree.
func (g *Generator) DefaultWindow() Window {
	end := g.now().UTC().Truncate(g.cfg.Interval)
	return Window{
		Start:    end.Add(-g.cfg.Window),
		End:      end,
		Interval: g.cfg.Interval,
	}
}

// Walker returns the walk the generator uses for p.
func (g *Generator) Walker(p *store.Parameter) *Walker {
	return NewWalker(p.Range(), g.cfg.StepFraction, g.cfg.Seed, p.ID)
}

// Produce returns the series of p over w: one point at Start + i*Interval
// for every i with Start + i*Interval < End, in chronological order.
func (g *Generator) Produce(ctx context.Context, p *store.Parameter, w Window) ([]types.DataPoint, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := p.Range().Validate(); err != nil {
		return nil, err
	}

	n := w.Count()
	points := make([]types.DataPoint, 0, n)
	walk := g.Walker(p)
	start := w.Start.UnixMilli()
	step := w.Interval.Milliseconds()

	for i := 0; i < n; i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		v := walk.Value()
		if i > 0 {
			v = walk.Next()
		}
		points = append(points, types.DataPoint{
			ParameterID: p.ID,
			TimestampMs: start + int64(i)*step,
			Value:       v,
		})
	}
	return points, nil
}
