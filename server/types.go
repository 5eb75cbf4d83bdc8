package server

import (
	"encoding/json"

	"github.com/teranos/courier/broker"
	"github.com/teranos/courier/pulse/schedule"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// OKResponse acknowledges a request that has no other output.
type OKResponse struct {
	OK bool `json:"ok"`
}

// WebhookResponse reports a completed job back to the broker.
type WebhookResponse struct {
	OK     bool   `json:"ok"`
	Name   string `json:"name"`
	Result any    `json:"result"`
}

// EnqueueRequest is the body of POST /api/jobs/enqueue.
type EnqueueRequest struct {
	Name    string                 `json:"name"`
	Payload json.RawMessage        `json:"payload,omitempty"`
	Options *broker.EnqueueOptions `json:"options,omitempty"`
}

// EnqueueResponse carries the broker's acknowledgement.
type EnqueueResponse struct {
	OK     bool                  `json:"ok"`
	Result *broker.PublishResult `json:"result"`
}

// CleanupResponse lists the broker message id of each cleanup job enqueued.
type CleanupResponse struct {
	OK       bool              `json:"ok"`
	Enqueued map[string]string `json:"enqueued"`
}

// JobsResponse lists the registered job names.
type JobsResponse struct {
	Jobs []string `json:"jobs"`
}

// CreateScheduleRequest is the body of POST /api/jobs/schedules.
type CreateScheduleRequest struct {
	Name    string          `json:"name"`
	Cron    string          `json:"cron"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Queue   string          `json:"queue,omitempty"`
	Retries *int            `json:"retries,omitempty"`
}

// ScheduleResponse returns a created schedule.
type ScheduleResponse struct {
	OK       bool               `json:"ok"`
	Schedule *schedule.Schedule `json:"schedule"`
}

// ListSchedulesResponse returns the schedules known to the broker.
type ListSchedulesResponse struct {
	Schedules []schedule.Schedule `json:"schedules"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string      `json:"status"`
	State  string      `json:"state"`
	Cache  CacheHealth `json:"cache"`
	Jobs   int         `json:"jobs"`
}

// CacheHealth reports whether the key-value store answered a ping.
type CacheHealth struct {
	OK bool `json:"ok"`
}
