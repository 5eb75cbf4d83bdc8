package server

import (
	"context"
	"net/http"
	"time"
)

// HandleHealth handles GET /health. The cache is best-effort, so an
// unreachable cache degrades the status without failing the check; a
// draining server answers 503 so load balancers stop routing to it.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	resp := HealthResponse{
		Status: "ok",
		State:  s.getState().String(),
		Jobs:   len(s.deps.Dispatcher.Registry().Names()),
	}

	if s.deps.Cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp.Cache.OK = s.deps.Cache.Ping(ctx)
		if !resp.Cache.OK {
			resp.Status = "degraded"
		}
	}

	status := http.StatusOK
	if st := s.getState(); st == ServerStateDraining || st == ServerStateStopped {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	_ = writeJSON(w, status, resp)
}
