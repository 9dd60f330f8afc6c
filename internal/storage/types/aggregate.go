package types

import "time"

// AggregateResult summarizes one parameter over one epoch-aligned bucket
// [BucketStart, BucketEnd). Times are Unix milliseconds.
type AggregateResult struct {
	ParameterID string
	BucketStart int64
	BucketEnd   int64

	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Avg   float64

	// Nil when the bucket had no sketch.
	P50 *float64
	P90 *float64
	P95 *float64
	P99 *float64

	// First and last sample times seen in the bucket.
	FirstTs int64
	LastTs  int64
}

func (a *AggregateResult) BucketStartTime() time.Time { return time.UnixMilli(a.BucketStart) }
func (a *AggregateResult) BucketEndTime() time.Time   { return time.UnixMilli(a.BucketEnd) }

// Width is the bucket size.
func (a *AggregateResult) Width() time.Duration {
	return time.Duration(a.BucketEnd-a.BucketStart) * time.Millisecond
}

// Covers reports whether ts falls inside the bucket.
func (a *AggregateResult) Covers(ts int64) bool {
	return ts >= a.BucketStart && ts < a.BucketEnd
}

func (a *AggregateResult) IsEmpty() bool        { return a.Count == 0 }
func (a *AggregateResult) HasPercentiles() bool { return a.P50 != nil }

// SetPercentiles stores p50, p90, p95 and p99 in that order.
func (a *AggregateResult) SetPercentiles(p50, p90, p95, p99 float64) {
	a.P50, a.P90, a.P95, a.P99 = &p50, &p90, &p95, &p99
}
