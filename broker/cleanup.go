package broker

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/pulse/jobs"
)

// EnqueueCleanup submits every cleanup job registered in registry
// concurrently and returns the broker message ids by job name. It returns
// once the broker has accepted all of them; the first failure cancels the
// rest.
func EnqueueCleanup(ctx context.Context, enq Enqueuer, registry *jobs.Registry) (map[string]string, error) {
	var names []string
	for _, name := range jobs.CleanupJobNames {
		if registry.Has(name) {
			names = append(names, name)
		}
	}

	var (
		mu       sync.Mutex
		enqueued = make(map[string]string, len(names))
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			result, err := enq.Enqueue(ctx, jobs.Job{Name: name}, EnqueueOptions{})
			if err != nil {
				return errors.Wrapf(err, "enqueue %s", name)
			}
			mu.Lock()
			enqueued[name] = result.MessageID
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return enqueued, nil
}
