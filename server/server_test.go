package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/courier/broker"
	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/pulse/jobs"
	"github.com/teranos/courier/pulse/schedule"
)

const (
	testSigningKey = "sig_current"
	testNextKey    = "sig_next"
	testAdminToken = "admin-secret"
)

// fakeEnqueuer records submitted jobs.
type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []jobs.Job
	opts []broker.EnqueueOptions
	err  error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, job jobs.Job, opts broker.EnqueueOptions) (*broker.PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.jobs = append(f.jobs, job)
	f.opts = append(f.opts, opts)
	return &broker.PublishResult{MessageID: "msg_" + job.Name}, nil
}

func (f *fakeEnqueuer) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, j := range f.jobs {
		names = append(names, j.Name)
	}
	return names
}

// fakeScheduleAPI is the broker side of the schedule manager.
type fakeScheduleAPI struct {
	mu        sync.Mutex
	schedules []broker.Schedule
	err       error
}

func (f *fakeScheduleAPI) CreateSchedule(_ context.Context, req broker.ScheduleRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	id := "scd_" + req.Cron
	f.schedules = append(f.schedules, broker.Schedule{ScheduleID: id, Cron: req.Cron, Body: string(req.Body)})
	return id, nil
}

func (f *fakeScheduleAPI) ListSchedules(context.Context) ([]broker.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broker.Schedule(nil), f.schedules...), f.err
}

func (f *fakeScheduleAPI) DeleteSchedule(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.schedules {
		if s.ScheduleID == id {
			f.schedules = append(f.schedules[:i], f.schedules[i+1:]...)
			return nil
		}
	}
	return errors.NewNotFoundError("schedule %s not found", id)
}

type fakePinger struct{ ok bool }

func (p fakePinger) Ping(context.Context) bool { return p.ok }

type testEnv struct {
	server    *Server
	registry  *jobs.Registry
	enqueuer  *fakeEnqueuer
	schedules *fakeScheduleAPI
	calls     map[string]int
	mu        sync.Mutex
}

func (e *testEnv) called(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[name]
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()

	env := &testEnv{
		registry:  jobs.NewRegistry(log),
		enqueuer:  &fakeEnqueuer{},
		schedules: &fakeScheduleAPI{},
		calls:     map[string]int{},
	}
	track := func(name string) {
		env.mu.Lock()
		env.calls[name]++
		env.mu.Unlock()
	}
	env.registry.Register("echo", func(_ context.Context, payload json.RawMessage) (any, error) {
		track("echo")
		return payload, nil
	})
	env.registry.Register("boom", func(context.Context, json.RawMessage) (any, error) {
		track("boom")
		return nil, errors.New("database password is hunter2")
	})
	for _, name := range jobs.CleanupJobNames {
		env.registry.Register(name, func(context.Context, json.RawMessage) (any, error) {
			track(name)
			return jobs.DeleteResult{}, nil
		})
	}

	srv, err := New(cfg, Deps{
		Dispatcher: jobs.NewDispatcher(env.registry, log),
		Verifier:   broker.NewVerifier(testSigningKey, testNextKey, ""),
		Enqueuer:   env.enqueuer,
		Schedules:  schedule.NewManager(env.schedules, schedule.WithRegistry(env.registry), schedule.WithLogger(log)),
		Cache:      fakePinger{ok: true},
	}, log)
	require.NoError(t, err)
	env.server = srv
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func signedDelivery(t *testing.T, key, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/jobs-webhook", strings.NewReader(body))
	sig, err := broker.Sign(key, []byte(body), "http://example.com/jobs-webhook", time.Minute)
	require.NoError(t, err)
	req.Header.Set(broker.HeaderSignature, sig)
	return req
}

func adminRequest(method, path, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func jsonUnmarshal(rec *httptest.ResponseRecorder, v any) error {
	return json.Unmarshal(rec.Body.Bytes(), v)
}

func TestNewRequiresDispatcherAndVerifier(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	dispatcher := jobs.NewDispatcher(jobs.NewRegistry(log), log)

	_, err := New(Config{}, Deps{Verifier: broker.NewVerifier("k", "", "")}, log)
	assert.Error(t, err)

	_, err = New(Config{}, Deps{Dispatcher: dispatcher}, log)
	assert.Error(t, err)

	srv, err := New(Config{}, Deps{Dispatcher: dispatcher, Verifier: broker.NewVerifier("k", "", "")}, log)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultMaxBodyBytes), srv.cfg.MaxBodyBytes)
	assert.NotNil(t, srv.limiter)
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec = env.do(t, req)
	assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.server.setState(ServerStateRunning)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "running", resp.State)
	assert.True(t, resp.Cache.OK)
	assert.Equal(t, 5, resp.Jobs)
}

func TestHealthDegradedCache(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.server.deps.Cache = fakePinger{ok: false}

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "cache is best-effort")
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}

func TestHealthWhileDraining(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.server.setState(ServerStateDraining)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStartAndStop(t *testing.T) {
	env := newTestEnv(t, Config{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, env.server.Stop(context.Background()))
	require.NoError(t, <-done)
	assert.Equal(t, ServerStateStopped, env.server.getState())
}

func TestPanicOutsideHandlerIsRecovered(t *testing.T) {
	env := newTestEnv(t, Config{})
	h := env.server.withRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "nil map")
}

func TestReadJSONEmptyBody(t *testing.T) {
	var req EnqueueRequest
	rec := httptest.NewRecorder()
	err := readJSON(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(nil)), 1024, &req)
	assert.NoError(t, err)
	assert.Empty(t, req.Name)
}
