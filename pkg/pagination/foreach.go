package pagination

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the worker count used by ForEach when workers <= 0.
const DefaultWorkers = 4

// ForEach runs fn for every resource on a bounded worker pool. Each call is
// expected to run its own cursor chain. A failing resource does not stop the
// others; the returned slice holds each resource's error at its index.
// Resources not yet started when ctx is cancelled get ctx.Err().
func ForEach[T any](ctx context.Context, resources []T, workers int, fn func(ctx context.Context, index int, resource T) error) []error {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	start := time.Now()
	errs := make([]error, len(resources))
	var done, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(workers)

	for i, resource := range resources {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			if err := fn(ctx, i, resource); err != nil {
				errs[i] = err
				failed.Add(1)
				log.Warn().
					Err(err).
					Int("resource", i).
					Msg("Resource failed - continuing with the rest")
			}
			if n := done.Add(1); n%50 == 0 {
				log.Info().
					Int64("done", n).
					Int("total", len(resources)).
					Float64("progress_pct", float64(n)/float64(len(resources))*100).
					Msg("Resource progress")
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Debug().
		Int("resources", len(resources)).
		Int("workers", workers).
		Int64("failed", failed.Load()).
		Dur("duration", time.Since(start)).
		Msg("Worker pool complete")

	return errs
}
