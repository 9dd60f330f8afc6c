package generator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/satmon/internal/storage/types"
	"github.com/xtxerr/satmon/internal/store"
)

// Sink receives generated points. *manager.Manager implements it, so
// backfilled data goes through the same checks as ingested data.
type Sink interface {
	IngestBatch(parameterID string, points []types.DataPoint) error
	Latest(parameterID string) (types.DataPoint, bool, error)
}

// BackfillResult reports what a backfill wrote.
type BackfillResult struct {
	Parameters int
	Points     int
	Skipped    int
	PerParam   map[string]int
	Duration   time.Duration
}

// Backfill produces every parameter's series over w and appends it to sink
// in chronological order. Points at or before a series' latest point are
// skipped, so running the same backfill twice writes nothing the second
// time. Parameters are processed concurrently, at most workers at a time;
// the first failure cancels the rest.
func Backfill(ctx context.Context, producer SeriesProducer, sink Sink, params []*store.Parameter, w Window, workers int) (*BackfillResult, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}

	started := time.Now()
	res := &BackfillResult{PerParam: make(map[string]int, len(params))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, p := range params {
		g.Go(func() error {
			written, skipped, err := backfillOne(gctx, producer, sink, p, w)
			if err != nil {
				return fmt.Errorf("backfill parameter %s: %w", p.ID, err)
			}
			mu.Lock()
			res.Parameters++
			res.Points += written
			res.Skipped += skipped
			res.PerParam[p.ID] = written
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Warn("backfill failed", "parameters", len(params), "error", err)
		return nil, err
	}

	res.Duration = time.Since(started)
	log.Info("backfill complete",
		"parameters", res.Parameters,
		"points", res.Points,
		"skipped", res.Skipped,
		"duration", res.Duration)
	return res, nil
}

func backfillOne(ctx context.Context, producer SeriesProducer, sink Sink, p *store.Parameter, w Window) (int, int, error) {
	points, err := producer.Produce(ctx, p, w)
	if err != nil {
		return 0, 0, err
	}

	latest, ok, err := sink.Latest(p.ID)
	if err != nil {
		return 0, 0, err
	}
	skipped := 0
	if ok {
		for skipped < len(points) && points[skipped].TimestampMs <= latest.TimestampMs {
			skipped++
		}
		points = points[skipped:]
	}

	if len(points) == 0 {
		return 0, skipped, nil
	}
	if err := sink.IngestBatch(p.ID, points); err != nil {
		return 0, skipped, err
	}
	return len(points), skipped, nil
}
