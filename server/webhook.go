package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/teranos/courier/broker"
	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/logger"
	"github.com/teranos/courier/pulse/jobs"
)

// Headers the broker sets on deliveries, and the one it reads back.
const (
	HeaderMessageID         = "Upstash-Message-Id"
	HeaderRetried           = "Upstash-Retried"
	HeaderNonRetryableError = "Upstash-NonRetryable-Error"
)

// webhookBody is a delivery body. Name stays raw so a non-string name can
// be told apart from a missing one.
type webhookBody struct {
	Name    json.RawMessage `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// HandleJobsWebhook handles POST /jobs-webhook, the endpoint the broker
// invokes for both ad-hoc and scheduled jobs.
//
// The signature is checked against the raw body before anything is parsed.
// 2xx tells the broker the job is done; 5xx asks it to redeliver; 4xx
// responses are marked non-retryable except for signature failures, which
// may clear up once signing keys are rotated.
func (s *Server) HandleJobsWebhook(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	ctx := r.Context()
	log := logger.LoggerFromContext(ctx, s.logger).With(
		logger.FieldMessageID, r.Header.Get(HeaderMessageID),
		"retried", r.Header.Get(HeaderRetried))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warnw("Webhook body too large", "limit", s.cfg.MaxBodyBytes)
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		log.Warnw("Failed to read webhook body", logger.FieldError, err)
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := s.deps.Verifier.Verify(r.Header.Get(broker.HeaderSignature), body); err != nil {
		log.Warnw("Webhook signature rejected", logger.FieldError, err, logger.FieldRemote, r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	job, err := parseJob(body)
	if err != nil {
		log.Warnw("Malformed job delivery", logger.FieldError, err)
		writePermanentError(w, err.Error())
		return
	}

	result, err := s.deps.Dispatcher.Dispatch(ctx, job)
	switch {
	case err == nil:
		_ = writeJSON(w, http.StatusOK, WebhookResponse{OK: true, Name: job.Name, Result: result})
	case jobs.IsUnknownJob(err):
		log.Warnw("Delivery for unknown job", logger.FieldJobName, job.Name)
		writePermanentError(w, "unknown job: "+job.Name)
	default:
		// The dispatcher already logged the failure with its stack.
		writeError(w, http.StatusInternalServerError, "job failed")
	}
}

// parseJob decodes a delivery body. The name must be a non-empty string;
// the payload is passed through untouched.
func parseJob(body []byte) (jobs.Job, error) {
	var raw webhookBody
	if err := json.Unmarshal(body, &raw); err != nil {
		return jobs.Job{}, errors.NewInvalidRequestError("invalid job body")
	}

	var name string
	if len(raw.Name) == 0 || json.Unmarshal(raw.Name, &name) != nil || name == "" {
		return jobs.Job{}, errors.NewInvalidRequestError("job name is required")
	}

	job := jobs.Job{Name: name}
	if len(raw.Payload) > 0 && string(raw.Payload) != "null" {
		job.Payload = raw.Payload
	}
	return job, nil
}

// writePermanentError answers 400 and tells the broker not to redeliver.
func writePermanentError(w http.ResponseWriter, message string) {
	w.Header().Set(HeaderNonRetryableError, "true")
	writeError(w, http.StatusBadRequest, message)
}
