package server

import (
	"net/http"

	"github.com/teranos/courier/logger"
	"github.com/teranos/courier/pulse/schedule"
)

// HandleSchedules handles /api/jobs/schedules
// GET: list schedules
// POST: create a schedule
func (s *Server) HandleSchedules(w http.ResponseWriter, r *http.Request) {
	if s.deps.Schedules == nil {
		writeError(w, http.StatusServiceUnavailable, "broker not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleListSchedules(w, r)
	case http.MethodPost:
		s.handleCreateSchedule(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// HandleSchedule handles DELETE /api/jobs/schedules/{id}
func (s *Server) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) {
		return
	}
	if s.deps.Schedules == nil {
		writeError(w, http.StatusServiceUnavailable, "broker not configured")
		return
	}

	parts := extractPathParts(r.URL.Path, "/api/jobs/schedules/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "schedule id is required")
		return
	}
	if len(parts) > 1 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id := parts[0]

	log := logger.LoggerFromContext(r.Context(), s.logger)
	if err := s.deps.Schedules.Delete(r.Context(), id); err != nil {
		writeWrappedError(w, log, err, "failed to delete schedule")
		return
	}
	log.Infow("Schedule removed", logger.FieldScheduleID, id)
	_ = writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.deps.Schedules.List(r.Context())
	if err != nil {
		writeWrappedError(w, logger.LoggerFromContext(r.Context(), s.logger), err, "failed to list schedules")
		return
	}
	if schedules == nil {
		schedules = []schedule.Schedule{}
	}
	_ = writeJSON(w, http.StatusOK, ListSchedulesResponse{Schedules: schedules})
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := readJSON(w, r, s.cfg.MaxBodyBytes, &req); err != nil {
		return
	}

	created, err := s.deps.Schedules.Create(r.Context(), schedule.Schedule{
		Name:    req.Name,
		Cron:    req.Cron,
		Payload: req.Payload,
		Queue:   req.Queue,
		Retries: req.Retries,
	})
	if err != nil {
		writeWrappedError(w, logger.LoggerFromContext(r.Context(), s.logger), err, "failed to create schedule")
		return
	}
	_ = writeJSON(w, http.StatusOK, ScheduleResponse{OK: true, Schedule: created})
}
