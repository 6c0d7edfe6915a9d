package workerpool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"ridereel/internal/services"
)

// Stats counts item outcomes for one Run.
type Stats struct {
	Total   int
	Done    int
	Skipped int
}

// Run calls fn for every index in [0, n) with at most limit calls in flight.
// onDone, when non-nil, is called after each item with the running count of
// finished items; it may be called concurrently.
func Run(ctx context.Context, limit, n int, fn func(ctx context.Context, i int) error, onDone func(finished int)) (Stats, error) {
	stats := Stats{Total: n}
	if n <= 0 {
		return stats, nil
	}
	if limit <= 0 {
		limit = 1
	}

	var done, skipped, finished atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := fn(gctx, i)
			if onDone != nil {
				onDone(int(finished.Add(1)))
			}
			switch {
			case err == nil:
				done.Add(1)
				return nil
			case services.IsPerItem(err):
				skipped.Add(1)
				return nil
			default:
				return err
			}
		})
	}
	err := g.Wait()
	stats.Done = int(done.Load())
	stats.Skipped = int(skipped.Load())
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return stats, err
}

// Progress receives item completion counts for a named phase. Implementations
// must tolerate concurrent calls.
type Progress func(phase string, done, total int)

// Report calls p when it is non-nil.
func (p Progress) Report(phase string, done, total int) {
	if p != nil {
		p(phase, done, total)
	}
}
