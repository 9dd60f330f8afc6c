package generator

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/manager"
	"github.com/xtxerr/satmon/internal/storage/series"
	"github.com/xtxerr/satmon/internal/storage/types"
	"github.com/xtxerr/satmon/internal/store"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func voltageParam(id string) *store.Parameter {
	return &store.Parameter{ID: id, Name: id, Type: store.TypeVoltage, UOM: "V", Min: 11.5, Max: 13.0}
}

func TestWalk_Deterministic(t *testing.T) {
	r := types.Range{Min: 11.5, Max: 13.0}

	a := Walk(r, 0.02, 7, "param-1", 5000)
	b := Walk(r, 0.02, 7, "param-1", 5000)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("walks diverge at %d: %v != %v", i, a[i], b[i])
		}
	}

	c := Walk(r, 0.02, 8, "param-1", 5000)
	d := Walk(r, 0.02, 7, "param-2", 5000)
	if equalSeries(a, c) {
		t.Error("different seeds produced the same walk")
	}
	if equalSeries(a, d) {
		t.Error("different keys produced the same walk")
	}
}

func TestWalk_StepBoundAndRange(t *testing.T) {
	tests := []struct {
		name     string
		r        types.Range
		fraction float64
	}{
		{"voltage", types.Range{Min: 11.5, Max: 13.0}, 0.02},
		{"temperature", types.Range{Min: -20, Max: 50}, 0.02},
		{"signal", types.Range{Min: -90, Max: -40}, 0.05},
		{"wide steps", types.Range{Min: 0, Max: 1}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vals := Walk(tt.r, tt.fraction, 42, tt.name, 10000)
			if vals[0] != tt.r.Mid() {
				t.Errorf("walk starts at %v, want midpoint %v", vals[0], tt.r.Mid())
			}
			bound := tt.fraction*tt.r.Span() + 1e-12
			for i, v := range vals {
				if !tt.r.Contains(v) {
					t.Fatalf("value %d = %v outside %+v", i, v, tt.r)
				}
				if i > 0 && math.Abs(v-vals[i-1]) > bound {
					t.Fatalf("step %d = %v exceeds bound %v", i, math.Abs(v-vals[i-1]), bound)
				}
			}
		})
	}
}

func TestWalker_Resume(t *testing.T) {
	w := NewWalker(types.Range{Min: 0, Max: 100}, 0.02, 1, "k")
	w.Resume(250)
	if w.Value() != 100 {
		t.Errorf("Resume clamps: got %v, want 100", w.Value())
	}
	w.Resume(40)
	if next := w.Next(); math.Abs(next-40) > w.MaxStep() {
		t.Errorf("Next after Resume(40) = %v, more than one step away", next)
	}
}

func TestWalk_Empty(t *testing.T) {
	if got := Walk(types.Range{Min: 0, Max: 1}, 0.02, 1, "k", 0); got != nil {
		t.Errorf("Walk(n=0) = %v, want nil", got)
	}
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name string
		w    Window
		want int
	}{
		{"24h at 10s", Window{testNow.Add(-24 * time.Hour), testNow, 10 * time.Second}, 8640},
		{"partial interval", Window{testNow, testNow.Add(25 * time.Second), 10 * time.Second}, 3},
		{"empty", Window{testNow, testNow, 10 * time.Second}, 0},
		{"reversed", Window{testNow, testNow.Add(-time.Hour), 10 * time.Second}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.Count(); got != tt.want {
				t.Errorf("Count() = %d, want %d", got, tt.want)
			}
		})
	}

	err := Window{testNow, testNow.Add(-time.Second), time.Second}.Validate()
	if !errors.Is(err, errors.ErrInvalidRange) {
		t.Errorf("reversed window: got %v, want ErrInvalidRange", err)
	}
	for _, interval := range []time.Duration{0, -time.Second, 500 * time.Microsecond, 1500 * time.Microsecond} {
		err := Window{testNow.Add(-time.Second), testNow, interval}.Validate()
		if !errors.Is(err, errors.ErrInvalidConfig) {
			t.Errorf("interval %v: got %v, want rejection", interval, err)
		}
	}
	if err := (Window{testNow.Add(-time.Second), testNow, time.Millisecond}).Validate(); err != nil {
		t.Errorf("1ms interval rejected: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := DefaultConfig()
	bad.StepFraction = 2
	bad.Workers = 0
	err := bad.Validate()
	var verrs *errors.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs.Errors) != 2 {
		t.Errorf("expected 2 validation errors, got %v", err)
	}

	sub := DefaultConfig()
	sub.Interval = 500 * time.Microsecond
	if err := sub.Validate(); err == nil {
		t.Error("sub-millisecond interval accepted")
	}
}

func TestProduce(t *testing.T) {
	g := New(DefaultConfig(), WithClock(func() time.Time { return testNow }))
	p := voltageParam("battery_voltage")
	w := g.DefaultWindow()

	if !w.End.Equal(testNow) || w.End.Sub(w.Start) != 24*time.Hour {
		t.Fatalf("unexpected default window %+v", w)
	}

	points, err := g.Produce(context.Background(), p, w)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if len(points) != 8640 {
		t.Fatalf("len = %d, want 8640", len(points))
	}
	if points[0].TimestampMs != w.Start.UnixMilli() {
		t.Errorf("first point at %d, want window start %d", points[0].TimestampMs, w.Start.UnixMilli())
	}
	if last := points[len(points)-1].TimestampMs; last != testNow.Add(-10*time.Second).UnixMilli() {
		t.Errorf("last point at %d, want end - interval", last)
	}
	for i := 1; i < len(points); i++ {
		if points[i].TimestampMs-points[i-1].TimestampMs != 10_000 {
			t.Fatalf("gap at %d: %d ms", i, points[i].TimestampMs-points[i-1].TimestampMs)
		}
	}

	again, _ := g.Produce(context.Background(), p, w)
	for i := range points {
		if points[i] != again[i] {
			t.Fatalf("second run differs at %d", i)
		}
	}
}

func TestProduce_Errors(t *testing.T) {
	g := New(DefaultConfig())
	p := voltageParam("v")

	_, err := g.Produce(context.Background(), p, Window{testNow, testNow.Add(-time.Hour), time.Second})
	if !errors.Is(err, errors.ErrInvalidRange) {
		t.Errorf("reversed window: got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Produce(ctx, p, g.DefaultWindow())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("canceled context: got %v", err)
	}
}

// =============================================================================
// Backfill
// =============================================================================

func TestBackfill_IntellaSat(t *testing.T) {
	m := manager.New(series.New())

	sat, err := m.Satellites.Register("Intella-Sat-1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if sat.Status != store.StatusPending {
		t.Fatalf("new satellite is %s, want pending", sat.Status)
	}
	if _, err := m.Satellites.Activate(sat.ID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	unit, err := m.Units.Create(sat.ID, "Power System", "")
	if err != nil {
		t.Fatalf("Create unit: %v", err)
	}
	p, err := m.Parameters.Define(unit.ID, "battery_voltage", store.TypeVoltage, "")
	if err != nil {
		t.Fatalf("Define: %v", err)
	}

	g := New(DefaultConfig(), WithClock(func() time.Time { return testNow }))
	w := g.DefaultWindow()

	res, err := Backfill(context.Background(), g, m, []*store.Parameter{p}, w, 4)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if res.Points != 8640 || res.PerParam[p.ID] != 8640 {
		t.Fatalf("backfill wrote %d points, want 8640", res.Points)
	}

	start := w.End.Add(-time.Hour).UnixMilli()
	end := w.End.UnixMilli()
	lastHour, err := m.Series().Query(p.ID, &start, &end)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(lastHour) != 360 {
		t.Fatalf("last hour has %d points, want 360", len(lastHour))
	}
	for i, pt := range lastHour {
		if pt.Value < 11.5 || pt.Value > 13.0 {
			t.Errorf("point %d value %v outside [11.5, 13.0]", i, pt.Value)
		}
		if i > 0 && pt.TimestampMs <= lastHour[i-1].TimestampMs {
			t.Errorf("point %d not after previous", i)
		}
	}
}

func TestBackfill_Idempotent(t *testing.T) {
	m := manager.New(series.New())
	sat, _ := m.Satellites.Register("S", time.Time{}, nil)
	m.Satellites.Activate(sat.ID)
	unit, _ := m.Units.Create(sat.ID, "Power", "")
	var params []*store.Parameter
	for _, name := range []string{"a", "b", "c"} {
		p, err := m.Parameters.Define(unit.ID, name, store.TypeTemperature, "")
		if err != nil {
			t.Fatalf("Define: %v", err)
		}
		params = append(params, p)
	}

	g := New(Config{Seed: 3, Window: time.Hour}, WithClock(func() time.Time { return testNow }))
	w := g.DefaultWindow()

	first, err := Backfill(context.Background(), g, m, params, w, 2)
	if err != nil {
		t.Fatalf("first Backfill: %v", err)
	}
	if first.Parameters != 3 || first.Points != 3*360 {
		t.Fatalf("first run: %+v", first)
	}

	second, err := Backfill(context.Background(), g, m, params, w, 2)
	if err != nil {
		t.Fatalf("second Backfill: %v", err)
	}
	if second.Points != 0 || second.Skipped != 3*360 {
		t.Errorf("second run: %+v", second)
	}
}

func TestBackfill_DisabledSatellite(t *testing.T) {
	m := manager.New(series.New())
	sat, _ := m.Satellites.Register("S", time.Time{}, nil)
	unit, _ := m.Units.Create(sat.ID, "Power", "")
	p, _ := m.Parameters.Define(unit.ID, "v", store.TypeVoltage, "")
	m.Satellites.Activate(sat.ID)
	m.Satellites.Disable(sat.ID)

	g := New(Config{Window: time.Minute}, WithClock(func() time.Time { return testNow }))
	_, err := Backfill(context.Background(), g, m, []*store.Parameter{p}, g.DefaultWindow(), 1)
	if !errors.Is(err, errors.ErrSatelliteDisabled) {
		t.Errorf("got %v, want ErrSatelliteDisabled", err)
	}
}

func TestBackfill_PendingSatellite(t *testing.T) {
	m := manager.New(series.New())
	sat, _ := m.Satellites.Register("S", time.Time{}, nil)
	unit, _ := m.Units.Create(sat.ID, "Power", "")
	p, _ := m.Parameters.Define(unit.ID, "v", store.TypeVoltage, "")

	g := New(Config{Window: time.Minute}, WithClock(func() time.Time { return testNow }))
	_, err := Backfill(context.Background(), g, m, []*store.Parameter{p}, g.DefaultWindow(), 1)
	if !errors.Is(err, errors.ErrSatellitePending) {
		t.Errorf("got %v, want ErrSatellitePending", err)
	}
	if n, _ := m.Series().Count(p.ID); n != 0 {
		t.Errorf("pending satellite stored %d points", n)
	}
}

type countingProducer struct {
	inner  SeriesProducer
	active atomic.Int32
	peak   atomic.Int32
}

func (c *countingProducer) Produce(ctx context.Context, p *store.Parameter, w Window) ([]types.DataPoint, error) {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return c.inner.Produce(ctx, p, w)
}

func TestBackfill_BoundedWorkers(t *testing.T) {
	m := manager.New(series.New())
	sat, _ := m.Satellites.Register("S", time.Time{}, nil)
	m.Satellites.Activate(sat.ID)
	unit, _ := m.Units.Create(sat.ID, "Power", "")
	var params []*store.Parameter
	for i := 0; i < 12; i++ {
		p, err := m.Parameters.Define(unit.ID, string(rune('a'+i)), store.TypeBatteryLevel, "")
		if err != nil {
			t.Fatalf("Define: %v", err)
		}
		params = append(params, p)
	}

	g := New(Config{Window: time.Minute}, WithClock(func() time.Time { return testNow }))
	prod := &countingProducer{inner: g}

	res, err := Backfill(context.Background(), prod, m, params, g.DefaultWindow(), 3)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if res.Parameters != 12 {
		t.Errorf("parameters = %d, want 12", res.Parameters)
	}
	if peak := prod.peak.Load(); peak > 3 {
		t.Errorf("peak concurrency %d exceeds 3 workers", peak)
	}
}

func equalSeries(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
