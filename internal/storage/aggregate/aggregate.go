// Package aggregate computes per-bucket statistics over telemetry series.
//
// Count, sum, min, max and average are exact. Percentiles come from a
// DDSketch with a configurable relative accuracy (1% by default).
package aggregate

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/satmon/internal/storage/types"
)

// DefaultAccuracy is the default relative accuracy of percentile sketches.
const DefaultAccuracy = 0.01

// StreamingAggregate maintains running statistics for one parameter in one
// time bucket.
type StreamingAggregate struct {
	mu sync.Mutex

	parameterID string

	bucketStart int64 // Unix milliseconds
	bucketEnd   int64 // Unix milliseconds, exclusive

	count   int64
	sum     float64
	min     float64
	max     float64
	firstTs int64
	lastTs  int64

	// nil if percentiles are disabled
	sketch   *ddsketch.DDSketch
	accuracy float64
}

// New creates an aggregate for the given bucket. accuracy <= 0 disables
// percentiles.
func New(parameterID string, bucketStart, bucketEnd int64, accuracy float64) *StreamingAggregate {
	agg := &StreamingAggregate{
		parameterID: parameterID,
		bucketStart: bucketStart,
		bucketEnd:   bucketEnd,
		min:         math.MaxFloat64,
		max:         -math.MaxFloat64,
		accuracy:    accuracy,
	}
	agg.sketch = newSketch(accuracy)
	return agg
}

func newSketch(accuracy float64) *ddsketch.DDSketch {
	if accuracy <= 0 {
		return nil
	}
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil
	}
	return sketch
}

// Add adds a value to the aggregate.
func (a *StreamingAggregate) Add(value float64, timestampMs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count == 0 || timestampMs < a.firstTs {
		a.firstTs = timestampMs
	}
	if a.count == 0 || timestampMs > a.lastTs {
		a.lastTs = timestampMs
	}

	a.count++
	a.sum += value
	a.min = math.Min(a.min, value)
	a.max = math.Max(a.max, value)

	if a.sketch != nil {
		_ = a.sketch.Add(value)
	}
}

// AddPoint adds a data point to the aggregate.
func (a *StreamingAggregate) AddPoint(p types.DataPoint) {
	a.Add(p.Value, p.TimestampMs)
}

// Count returns the number of points added.
func (a *StreamingAggregate) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// IsEmpty returns true if no points have been added.
func (a *StreamingAggregate) IsEmpty() bool {
	return a.Count() == 0
}

// Result returns the aggregation result.
func (a *StreamingAggregate) Result() types.AggregateResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := types.AggregateResult{
		ParameterID: a.parameterID,
		BucketStart: a.bucketStart,
		BucketEnd:   a.bucketEnd,
		Count:       a.count,
		Sum:         a.sum,
		FirstTs:     a.firstTs,
		LastTs:      a.lastTs,
	}

	if a.count > 0 {
		result.Avg = a.sum / float64(a.count)
		result.Min = a.min
		result.Max = a.max
	}

	if a.sketch != nil && a.count > 0 {
		p50, _ := a.sketch.GetValueAtQuantile(0.50)
		p90, _ := a.sketch.GetValueAtQuantile(0.90)
		p95, _ := a.sketch.GetValueAtQuantile(0.95)
		p99, _ := a.sketch.GetValueAtQuantile(0.99)
		result.SetPercentiles(p50, p90, p95, p99)
	}

	return result
}

// Reset empties the aggregate and moves it to a new bucket.
func (a *StreamingAggregate) Reset(bucketStart, bucketEnd int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.bucketStart = bucketStart
	a.bucketEnd = bucketEnd
	a.count = 0
	a.sum = 0
	a.min = math.MaxFloat64
	a.max = -math.MaxFloat64
	a.firstTs = 0
	a.lastTs = 0

	if a.sketch != nil {
		a.sketch.Clear()
	}
}

// Merge combines another aggregate for the same bucket into this one.
func (a *StreamingAggregate) Merge(other *StreamingAggregate) {
	if other == nil || other == a {
		return
	}

	other.mu.Lock()
	defer other.mu.Unlock()
	if other.count == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count == 0 || other.firstTs < a.firstTs {
		a.firstTs = other.firstTs
	}
	if a.count == 0 || other.lastTs > a.lastTs {
		a.lastTs = other.lastTs
	}

	a.count += other.count
	a.sum += other.sum
	a.min = math.Min(a.min, other.min)
	a.max = math.Max(a.max, other.max)

	if a.sketch != nil && other.sketch != nil {
		_ = a.sketch.MergeWith(other.sketch)
	}
}

// BucketStart returns the bucket start timestamp.
func (a *StreamingAggregate) BucketStart() int64 {
	return a.bucketStart
}

// BucketEnd returns the bucket end timestamp.
func (a *StreamingAggregate) BucketEnd() int64 {
	return a.bucketEnd
}

// ParameterID returns the parameter this aggregate belongs to.
func (a *StreamingAggregate) ParameterID() string {
	return a.parameterID
}

// BucketDuration returns the bucket duration.
func (a *StreamingAggregate) BucketDuration() time.Duration {
	return time.Duration(a.bucketEnd-a.bucketStart) * time.Millisecond
}

// BucketStartFor returns the start of the epoch-aligned bucket holding ts.
// Negative timestamps floor toward the earlier bucket.
func BucketStartFor(ts, bucketMs int64) int64 {
	start := ts - ts%bucketMs
	if ts%bucketMs < 0 {
		start -= bucketMs
	}
	return start
}

// Buckets groups points into epoch-aligned buckets of the given width and
// returns one result per non-empty bucket in ascending order. Points may be
// unsorted. A non-positive width yields no buckets.
func Buckets(points []types.DataPoint, bucket time.Duration, accuracy float64) []types.AggregateResult {
	width := bucket.Milliseconds()
	if width <= 0 || len(points) == 0 {
		return []types.AggregateResult{}
	}

	byStart := make(map[int64]*StreamingAggregate)
	for _, p := range points {
		start := BucketStartFor(p.TimestampMs, width)
		agg, ok := byStart[start]
		if !ok {
			agg = New(p.ParameterID, start, start+width, accuracy)
			byStart[start] = agg
		}
		agg.AddPoint(p)
	}

	starts := make([]int64, 0, len(byStart))
	for start := range byStart {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	out := make([]types.AggregateResult, 0, len(starts))
	for _, start := range starts {
		out = append(out, byStart[start].Result())
	}
	return out
}
