package server

import (
	"net/http"
	"strings"

	"github.com/teranos/courier/broker"
	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/logger"
	"github.com/teranos/courier/pulse/jobs"
)

// HandleJobs handles GET /api/jobs: the names the webhook can dispatch.
func (s *Server) HandleJobs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	_ = writeJSON(w, http.StatusOK, JobsResponse{Jobs: s.deps.Dispatcher.Registry().Names()})
}

// HandleEnqueue handles POST /api/jobs/enqueue. Only the presence of a
// name is checked here; whether a handler exists is decided at delivery.
func (s *Server) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if s.deps.Enqueuer == nil {
		writeError(w, http.StatusServiceUnavailable, "broker not configured")
		return
	}

	var req EnqueueRequest
	if err := readJSON(w, r, s.cfg.MaxBodyBytes, &req); err != nil {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	var opts broker.EnqueueOptions
	if req.Options != nil {
		opts = *req.Options
	}

	result, err := s.deps.Enqueuer.Enqueue(r.Context(), jobs.Job{Name: req.Name, Payload: req.Payload}, opts)
	if err != nil {
		writeWrappedError(w, logger.LoggerFromContext(r.Context(), s.logger), err, "failed to enqueue job")
		return
	}
	_ = writeJSON(w, http.StatusOK, EnqueueResponse{OK: true, Result: result})
}

// HandleCleanup handles POST /api/jobs/cleanup. It enqueues every
// registered cleanup job concurrently and answers once the broker has
// accepted all of them; it does not wait for the jobs to run.
func (s *Server) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if s.deps.Enqueuer == nil {
		writeError(w, http.StatusServiceUnavailable, "broker not configured")
		return
	}

	enqueued, err := broker.EnqueueCleanup(r.Context(), s.deps.Enqueuer, s.deps.Dispatcher.Registry())
	if err != nil {
		writeWrappedError(w, logger.LoggerFromContext(r.Context(), s.logger),
			errors.Wrap(err, "enqueue cleanup jobs"), "failed to enqueue cleanup jobs")
		return
	}

	logger.LoggerFromContext(r.Context(), s.logger).Infow("Cleanup jobs enqueued", logger.FieldCount, len(enqueued))
	_ = writeJSON(w, http.StatusOK, CleanupResponse{OK: true, Enqueued: enqueued})
}
