package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/logger"
)

var (
	// ErrUnknownJob marks deliveries naming a job no handler is registered
	// for. It is permanent: redelivering the same message cannot succeed.
	ErrUnknownJob = errors.New("unknown job")

	// ErrJobFailed marks handler failures. They are transient from the
	// dispatcher's point of view; the broker decides whether to redeliver.
	ErrJobFailed = errors.New("job failed")
)

// Dispatcher runs jobs through the handlers of a Registry.
type Dispatcher struct {
	registry *Registry
	logger   *zap.SugaredLogger
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = logger.ComponentLogger("jobs.dispatch")
	}
	return &Dispatcher{registry: registry, logger: log}
}

// Registry returns the registry the dispatcher resolves names against.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch resolves job.Name and runs its handler to completion.
//
// Errors wrap ErrUnknownJob when no handler exists (the handler is never
// called), or ErrJobFailed when the handler returned an error or panicked.
// The dispatcher never retries.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) (result any, err error) {
	handler, ok := d.registry.Lookup(job.Name)
	if !ok {
		return nil, errors.Mark(errors.Newf("unknown job: %s", job.Name), ErrUnknownJob)
	}

	ctx = logger.WithJobName(ctx, job.Name)
	log := logger.LoggerFromContext(ctx, d.logger)
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Mark(errors.Newf("job %s panicked: %v", job.Name, rec), ErrJobFailed)
			result = nil
		}
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			log.Errorw("Job failed", logger.FieldDurationMS, elapsed, logger.FieldError, fmt.Sprintf("%+v", err))
			return
		}
		log.Infow("Job completed", logger.FieldDurationMS, elapsed)
	}()

	result, err = handler(ctx, job.Payload)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "job %s", job.Name), ErrJobFailed)
	}
	return result, nil
}

// IsUnknownJob reports whether err came from dispatching an unregistered name.
func IsUnknownJob(err error) bool {
	return err != nil && errors.Is(err, ErrUnknownJob)
}
