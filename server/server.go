// Package server is the HTTP surface of courier: the webhook the broker
// delivers jobs to, the admin endpoints that enqueue jobs and manage
// schedules, and a health check.
package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/courier/broker"
	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/logger"
	"github.com/teranos/courier/pulse/jobs"
	"github.com/teranos/courier/pulse/schedule"
)

const (
	// DefaultMaxBodyBytes caps webhook and admin request bodies.
	DefaultMaxBodyBytes = 1 << 20

	// DefaultAdminRatePerMinute bounds admin requests across all callers.
	DefaultAdminRatePerMinute = 60

	// ShutdownTimeout bounds how long Stop waits for in-flight requests.
	ShutdownTimeout = 30 * time.Second
)

// ServerState is the lifecycle state reported by /health.
type ServerState int32

const (
	ServerStateStarting ServerState = iota
	ServerStateRunning
	ServerStateDraining
	ServerStateStopped
)

func (s ServerState) String() string {
	switch s {
	case ServerStateStarting:
		return "starting"
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SignatureVerifier authenticates broker deliveries.
type SignatureVerifier interface {
	Verify(signature string, body []byte) error
}

// ScheduleManager manages recurring jobs at the broker.
type ScheduleManager interface {
	Create(ctx context.Context, s schedule.Schedule) (*schedule.Schedule, error)
	List(ctx context.Context) ([]schedule.Schedule, error)
	Delete(ctx context.Context, id string) error
}

// Pinger reports key-value store reachability.
type Pinger interface {
	Ping(ctx context.Context) bool
}

// Config holds the HTTP-level settings.
type Config struct {
	// AdminToken guards /api/jobs/*. Empty leaves the admin API open.
	AdminToken string
	// AdminRatePerMinute bounds admin requests; zero uses the default,
	// negative disables the limit.
	AdminRatePerMinute int
	// MaxBodyBytes caps request bodies; zero uses the default.
	MaxBodyBytes int64
}

// Deps are the components the handlers drive. Dispatcher and Verifier are
// required; the admin routes answer 503 when their component is missing.
type Deps struct {
	Dispatcher *jobs.Dispatcher
	Verifier   SignatureVerifier
	Enqueuer   broker.Enqueuer
	Schedules  ScheduleManager
	Cache      Pinger
}

// Server serves the webhook, admin and health endpoints.
type Server struct {
	cfg     Config
	deps    Deps
	logger  *zap.SugaredLogger
	limiter *rate.Limiter
	state   atomic.Int32
	handler http.Handler

	mu   sync.Mutex
	http *http.Server
}

// New creates a server. A nil logger uses the "server" component logger.
func New(cfg Config, deps Deps, log *zap.SugaredLogger) (*Server, error) {
	if deps.Dispatcher == nil {
		return nil, errors.New("server requires a job dispatcher")
	}
	if deps.Verifier == nil {
		return nil, errors.WithHint(errors.New("server requires a signature verifier"),
			"set broker.current_signing_key and broker.next_signing_key")
	}
	if log == nil {
		log = logger.ComponentLogger("server")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.AdminRatePerMinute == 0 {
		cfg.AdminRatePerMinute = DefaultAdminRatePerMinute
	}

	s := &Server{cfg: cfg, deps: deps, logger: log}
	if cfg.AdminRatePerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(float64(cfg.AdminRatePerMinute)/60.0), cfg.AdminRatePerMinute)
	}
	if cfg.AdminToken == "" {
		log.Warnw("Admin API has no token configured; /api/jobs is open to any caller",
			"hint", "set server.admin_token or COURIER_SERVER_ADMIN_TOKEN")
	}
	s.handler = s.routes()
	return s, nil
}

// routes builds the handler tree.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/jobs-webhook", s.HandleJobsWebhook)
	mux.HandleFunc("/health", s.HandleHealth)

	mux.HandleFunc("/api/jobs", s.admin(s.HandleJobs))
	mux.HandleFunc("/api/jobs/enqueue", s.admin(s.HandleEnqueue))
	mux.HandleFunc("/api/jobs/cleanup", s.admin(s.HandleCleanup))
	mux.HandleFunc("/api/jobs/schedules", s.admin(s.HandleSchedules))
	mux.HandleFunc("/api/jobs/schedules/", s.admin(s.HandleSchedule))

	return s.withRequestID(s.withRecovery(s.withAccessLog(mux)))
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) getState() ServerState {
	return ServerState(s.state.Load())
}

func (s *Server) setState(st ServerState) {
	s.state.Store(int32(st))
	s.logger.Infow("Server state changed", "new_state", st.String())
}

// Start listens on port and serves until Stop is called. It returns
// nil after a clean shutdown.
func (s *Server) Start(port int) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return errors.Wrapf(err, "listen on port %d", port)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.setState(ServerStateRunning)
	s.logger.Infow("HTTP server listening", "addr", ln.Addr().String())

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve")
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)

	ctx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.setState(ServerStateStopped)
	if err != nil {
		return errors.Wrap(err, "shutdown")
	}
	s.logger.Infow("Server shutdown complete")
	return nil
}
