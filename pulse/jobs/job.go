// Package jobs is the in-process side of background work: the registry of
// named handlers, the dispatcher that runs them for broker deliveries, and
// the built-in cleanup jobs.
//
// Handlers are registered once at process start, before the webhook
// receiver serves traffic. Delivery, retry and scheduling are owned by the
// external broker; this package only decides which handler runs and how
// the outcome is classified.
package jobs

import (
	"context"
	"encoding/json"
)

// Job is the unit the broker carries: a stable handler name plus an opaque
// payload that only the handler interprets.
type Job struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler runs a job. The payload may be nil. The returned result is
// echoed back to the broker as JSON.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// NewJob builds a Job, encoding payload as JSON. A nil payload is omitted.
func NewJob(name string, payload any) (Job, error) {
	job := Job{Name: name}
	if payload == nil {
		return job, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		job.Payload = raw
		return job, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, err
	}
	job.Payload = raw
	return job, nil
}
