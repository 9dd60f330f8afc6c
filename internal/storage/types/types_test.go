package types

import (
	"math"
	"testing"
	"time"
)

func TestDataPointTime(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	p := DataPoint{ParameterID: "p1", TimestampMs: now.UnixMilli(), Value: 12.1}

	if !p.Time().Equal(now) {
		t.Errorf("expected %v, got %v", now, p.Time())
	}
}

func TestRangeValidate(t *testing.T) {
	tests := []struct {
		name    string
		r       Range
		wantErr bool
	}{
		{"voltage", Range{Min: 11.5, Max: 13.0}, false},
		{"negative", Range{Min: -90, Max: -40}, false},
		{"degenerate", Range{Min: 1, Max: 1}, false},
		{"inverted", Range{Min: 5, Max: 1}, true},
		{"nan", Range{Min: math.NaN(), Max: 1}, true},
		{"inf", Range{Min: 0, Max: math.Inf(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRangeContainsAndClamp(t *testing.T) {
	r := Range{Min: 11.5, Max: 13.0}

	tests := []struct {
		v        float64
		contains bool
		clamped  float64
	}{
		{11.5, true, 11.5},
		{13.0, true, 13.0},
		{12.25, true, 12.25},
		{11.49, false, 11.5},
		{13.01, false, 13.0},
	}

	for _, tt := range tests {
		if got := r.Contains(tt.v); got != tt.contains {
			t.Errorf("Contains(%v) = %v, want %v", tt.v, got, tt.contains)
		}
		if got := r.Clamp(tt.v); got != tt.clamped {
			t.Errorf("Clamp(%v) = %v, want %v", tt.v, got, tt.clamped)
		}
	}

	if r.Contains(math.NaN()) {
		t.Error("NaN must not be contained")
	}
	if r.Mid() != 12.25 {
		t.Errorf("Mid() = %v, want 12.25", r.Mid())
	}
	if r.Span() != 1.5 {
		t.Errorf("Span() = %v, want 1.5", r.Span())
	}
}

func TestAggregateResultPercentiles(t *testing.T) {
	a := AggregateResult{}

	if a.HasPercentiles() {
		t.Error("expected no percentiles")
	}

	a.SetPercentiles(50.0, 90.0, 95.0, 99.0)

	if !a.HasPercentiles() {
		t.Error("expected percentiles")
	}
	if *a.P50 != 50.0 || *a.P99 != 99.0 {
		t.Errorf("unexpected percentiles: p50=%v p99=%v", *a.P50, *a.P99)
	}
}

func TestAggregateResultBucket(t *testing.T) {
	a := AggregateResult{BucketStart: 600_000, BucketEnd: 900_000}

	if a.Width() != 5*time.Minute {
		t.Errorf("Width() = %v, want 5m", a.Width())
	}
	if !a.IsEmpty() {
		t.Error("expected empty bucket")
	}

	tests := []struct {
		ts   int64
		want bool
	}{
		{599_999, false},
		{600_000, true},
		{899_999, true},
		{900_000, false},
	}
	for _, tt := range tests {
		if got := a.Covers(tt.ts); got != tt.want {
			t.Errorf("Covers(%d) = %v, want %v", tt.ts, got, tt.want)
		}
	}
}
