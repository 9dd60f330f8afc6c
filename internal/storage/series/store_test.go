package series

import (
	"fmt"
	"sync"
	"testing"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/storage/types"
	testutil "github.com/xtxerr/satmon/internal/testing"
)

var voltage = types.Range{Min: 11.5, Max: 13.0}

func ptr(v int64) *int64 { return &v }

func newStoreWithSeries(t *testing.T, ids ...string) *Store {
	t.Helper()
	s := New()
	for _, id := range ids {
		if err := s.Register(id, voltage); err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
	}
	return s
}

func TestAppend(t *testing.T) {
	s := newStoreWithSeries(t, "v1")

	p, err := s.Append("v1", 1000, 12.1)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if p.ParameterID != "v1" || p.TimestampMs != 1000 || p.Value != 12.1 {
		t.Errorf("unexpected point %+v", p)
	}

	latest, ok, err := s.Latest("v1")
	if err != nil || !ok {
		t.Fatalf("Latest: ok=%v err=%v", ok, err)
	}
	if latest != p {
		t.Errorf("Latest = %+v, want %+v", latest, p)
	}
}

func TestAppend_Errors(t *testing.T) {
	tests := []struct {
		name    string
		param   string
		ts      int64
		value   float64
		wantErr error
	}{
		{"unknown series", "missing", 2000, 12, errors.ErrSeriesNotFound},
		{"below min", "v1", 2000, 11.49, errors.ErrOutOfRange},
		{"above max", "v1", 2000, 13.01, errors.ErrOutOfRange},
		{"older than last", "v1", 500, 12, errors.ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStoreWithSeries(t, "v1")
			if _, err := s.Append("v1", 1000, 12.0); err != nil {
				t.Fatalf("seed append: %v", err)
			}

			_, err := s.Append(tt.param, tt.ts, tt.value)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}

			if n, _ := s.Count("v1"); n != 1 {
				t.Errorf("rejected append changed series: count=%d", n)
			}
		})
	}
}

func TestAppend_OutOfRangeNamesBounds(t *testing.T) {
	s := newStoreWithSeries(t, "v1")

	_, err := s.Append("v1", 1, 14)
	if err == nil {
		t.Fatal("expected error")
	}
	want := "parameter 'v1' value 14 outside [11.5, 13]: value out of range"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestAppend_BoundsInclusive(t *testing.T) {
	s := newStoreWithSeries(t, "v1")

	if _, err := s.Append("v1", 1, 11.5); err != nil {
		t.Errorf("min bound rejected: %v", err)
	}
	if _, err := s.Append("v1", 2, 13.0); err != nil {
		t.Errorf("max bound rejected: %v", err)
	}
	if _, err := s.Append("v1", 2, 12.0); err != nil {
		t.Errorf("equal timestamp rejected: %v", err)
	}
}

func TestAppendBatch_Atomic(t *testing.T) {
	s := newStoreWithSeries(t, "v1")

	batch := []types.DataPoint{
		{TimestampMs: 1, Value: 12},
		{TimestampMs: 2, Value: 12.5},
		{TimestampMs: 3, Value: 20},
	}
	if err := s.AppendBatch("v1", batch); !errors.Is(err, errors.ErrOutOfRange) {
		t.Fatalf("got %v, want ErrOutOfRange", err)
	}
	if n, _ := s.Count("v1"); n != 0 {
		t.Errorf("partial batch visible: count=%d", n)
	}

	unordered := []types.DataPoint{
		{TimestampMs: 5, Value: 12},
		{TimestampMs: 4, Value: 12},
	}
	if err := s.AppendBatch("v1", unordered); !errors.Is(err, errors.ErrInvalidRange) {
		t.Fatalf("got %v, want ErrInvalidRange", err)
	}

	batch[2].Value = 12.9
	if err := s.AppendBatch("v1", batch); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	points, _ := s.Query("v1", nil, nil)
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	for _, p := range points {
		if p.ParameterID != "v1" {
			t.Errorf("point not stamped with parameter id: %+v", p)
		}
	}
}

func TestQuery(t *testing.T) {
	s := newStoreWithSeries(t, "v1")
	for i := int64(0); i < 10; i++ {
		if _, err := s.Append("v1", i*10, 12); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	tests := []struct {
		name       string
		start, end *int64
		want       []int64
	}{
		{"all", nil, nil, []int64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90}},
		{"inclusive bounds", ptr(20), ptr(40), []int64{20, 30, 40}},
		{"open start", nil, ptr(15), []int64{0, 10}},
		{"open end", ptr(85), nil, []int64{90}},
		{"between points", ptr(41), ptr(49), nil},
		{"point window", ptr(50), ptr(50), []int64{50}},
		{"after data", ptr(1000), ptr(2000), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query("v1", tt.start, tt.end)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if got == nil {
				t.Fatal("Query returned nil slice, want empty")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d points, want %d", len(got), len(tt.want))
			}
			for i, ts := range tt.want {
				if got[i].TimestampMs != ts {
					t.Errorf("point %d: ts=%d, want %d", i, got[i].TimestampMs, ts)
				}
			}
		})
	}
}

func TestQuery_InvalidRange(t *testing.T) {
	s := newStoreWithSeries(t, "v1")

	_, err := s.Query("v1", ptr(100), ptr(50))
	if !errors.Is(err, errors.ErrInvalidRange) {
		t.Fatalf("got %v, want ErrInvalidRange", err)
	}

	// The window is validated before the series lookup.
	_, err = s.Query("missing", ptr(100), ptr(50))
	if !errors.Is(err, errors.ErrInvalidRange) {
		t.Fatalf("got %v, want ErrInvalidRange", err)
	}

	_, err = s.Query("missing", nil, nil)
	if !errors.IsNotFound(err) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestQuery_ReturnsCopy(t *testing.T) {
	s := newStoreWithSeries(t, "v1")
	s.Append("v1", 1, 12)

	got, _ := s.Query("v1", nil, nil)
	got[0].Value = 99

	again, _ := s.Query("v1", nil, nil)
	if again[0].Value != 12 {
		t.Errorf("caller mutation leaked into store: %v", again[0].Value)
	}
}

func TestRegister(t *testing.T) {
	s := New()

	if err := s.Register("", voltage); err == nil {
		t.Error("expected error for empty id")
	}
	if err := s.Register("x", types.Range{Min: 2, Max: 1}); err == nil {
		t.Error("expected error for inverted range")
	}

	if err := s.Register("t1", types.Range{Min: -20, Max: 50}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Empty series may change bounds.
	if err := s.Register("t1", voltage); err != nil {
		t.Fatalf("re-Register empty: %v", err)
	}
	if b, _ := s.Bounds("t1"); b != voltage {
		t.Errorf("bounds = %+v, want %+v", b, voltage)
	}

	s.Append("t1", 1, 12)
	if err := s.Register("t1", types.Range{Min: 0, Max: 100}); !errors.Is(err, errors.ErrInUse) {
		t.Errorf("got %v, want ErrInUse", err)
	}
	if err := s.Register("t1", voltage); err != nil {
		t.Errorf("re-Register with same bounds: %v", err)
	}
}

func TestDrop(t *testing.T) {
	s := newStoreWithSeries(t, "v1")
	s.Append("v1", 1, 12)

	if !s.Drop("v1") {
		t.Fatal("Drop reported missing series")
	}
	if s.Drop("v1") {
		t.Error("second Drop reported existing series")
	}
	if s.Has("v1") {
		t.Error("series still registered")
	}
	if _, err := s.Count("v1"); !errors.IsNotFound(err) {
		t.Errorf("got %v, want not found", err)
	}
}

func TestLatest_Empty(t *testing.T) {
	s := newStoreWithSeries(t, "v1")

	_, ok, err := s.Latest("v1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if ok {
		t.Error("expected no latest point on empty series")
	}
}

type memJournal struct {
	mu     sync.Mutex
	points []types.DataPoint
	fail   error
}

func (j *memJournal) Write(points []types.DataPoint) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail != nil {
		return j.fail
	}
	j.points = append(j.points, points...)
	return nil
}

func TestJournal(t *testing.T) {
	j := &memJournal{}
	s := New(WithJournal(j))
	s.Register("v1", voltage)

	s.Append("v1", 1, 12)
	s.Append("v1", 2, 99) // rejected, never journaled

	if len(j.points) != 1 {
		t.Fatalf("expected 1 journaled point, got %d", len(j.points))
	}

	j.fail = fmt.Errorf("disk full")
	_, err := s.Append("v1", 3, 12)
	if !errors.Is(err, errors.ErrJournal) {
		t.Fatalf("got %v, want ErrJournal", err)
	}
	if n, _ := s.Count("v1"); n != 1 {
		t.Errorf("unjournaled point became visible: count=%d", n)
	}
}

func TestRestore(t *testing.T) {
	s := newStoreWithSeries(t, "v1")

	skipped := s.Restore([]types.DataPoint{
		{ParameterID: "v1", TimestampMs: 1, Value: 12},
		{ParameterID: "gone", TimestampMs: 1, Value: 12},
		{ParameterID: "v1", TimestampMs: 2, Value: 50},
		{ParameterID: "v1", TimestampMs: 3, Value: 12.5},
	})
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if n, _ := s.Count("v1"); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestStats(t *testing.T) {
	s := newStoreWithSeries(t, "a", "b")
	s.Append("a", 1, 12)
	s.Append("b", 1, 12)
	s.Append("b", 2, 12)
	s.Append("b", 3, 0)

	st := s.Stats()
	if st.Series != 2 || st.Points != 3 || st.Appended != 3 || st.Rejected != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestConcurrentAppendAndQuery(t *testing.T) {
	const params, perParam = 8, 500

	ids := make([]string, params)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i)
	}
	s := newStoreWithSeries(t, ids...)

	gt := testutil.NewGoroutineTest(t)
	for _, id := range ids {
		gt.Go(func() error {
			for i := 0; i < perParam; i++ {
				if _, err := s.Append(id, int64(i), 12); err != nil {
					return fmt.Errorf("%s append %d: %w", id, i, err)
				}
			}
			return nil
		})
		gt.Go(func() error {
			for i := 0; i < 50; i++ {
				points, err := s.Query(id, nil, nil)
				if err != nil {
					return err
				}
				for k := 1; k < len(points); k++ {
					if points[k].TimestampMs < points[k-1].TimestampMs {
						return fmt.Errorf("%s: unordered read", id)
					}
				}
			}
			return nil
		})
	}
	gt.Wait()

	if st := s.Stats(); st.Points != params*perParam {
		t.Errorf("points = %d, want %d", st.Points, params*perParam)
	}
}
