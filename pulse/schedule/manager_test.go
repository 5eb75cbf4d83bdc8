package schedule

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/courier/broker"
	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/internal/util"
	"github.com/teranos/courier/pulse/jobs"
)

// fakeAPI is an in-memory broker schedule registry.
type fakeAPI struct {
	created   []broker.ScheduleRequest
	schedules []broker.Schedule
	deleted   []string
	err       error
	nextID    int
}

func (f *fakeAPI) CreateSchedule(_ context.Context, req broker.ScheduleRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.nextID++
	id := "scd_" + strconv.Itoa(f.nextID)
	f.created = append(f.created, req)
	f.schedules = append(f.schedules, broker.Schedule{
		ScheduleID: id,
		Cron:       req.Cron,
		Body:       string(req.Body),
		QueueName:  req.Queue,
		CreatedAt:  1760000000000,
	})
	return id, nil
}

func (f *fakeAPI) ListSchedules(context.Context) ([]broker.Schedule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.schedules, nil
}

func (f *fakeAPI) DeleteSchedule(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	for i, s := range f.schedules {
		if s.ScheduleID == id {
			f.schedules = append(f.schedules[:i], f.schedules[i+1:]...)
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return errors.NewNotFoundError("schedule %s", id)
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t).Sugar())}, opts...)
	m := NewManager(api, opts...)
	m.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return m, api
}

func TestCreateSchedule(t *testing.T) {
	m, api := newTestManager(t)

	created, err := m.Create(context.Background(), Schedule{
		Name:    "kv.cleanup.pkce",
		Cron:    "0 3 * * *",
		Payload: json.RawMessage(`{"dry_run":false}`),
		Queue:   "maintenance",
		Retries: util.Ptr(2),
	})
	require.NoError(t, err)

	assert.Equal(t, "scd_1", created.ID)
	assert.Equal(t, "kv.cleanup.pkce", created.Name)
	assert.Equal(t, time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC), created.CreatedAt)
	require.NotNil(t, created.NextRun)
	assert.Equal(t, time.Date(2026, 10, 20, 3, 0, 0, 0, time.UTC), *created.NextRun)

	require.Len(t, api.created, 1)
	req := api.created[0]
	assert.Equal(t, "0 3 * * *", req.Cron)
	assert.Equal(t, "maintenance", req.Queue)
	assert.Equal(t, 2, *req.Retries)
	assert.JSONEq(t, `{"name":"kv.cleanup.pkce","payload":{"dry_run":false}}`, string(req.Body))
}

func TestCreateScheduleValidation(t *testing.T) {
	tests := []struct {
		name     string
		schedule Schedule
	}{
		{"missing cron", Schedule{Name: "kv.cleanup.pkce"}},
		{"missing name", Schedule{Cron: "@daily"}},
		{"blank name", Schedule{Name: "  ", Cron: "@daily"}},
		{"malformed cron", Schedule{Name: "kv.cleanup.pkce", Cron: "every tuesday"}},
		{"six fields", Schedule{Name: "kv.cleanup.pkce", Cron: "0 0 3 * * *"}},
		{"negative retries", Schedule{Name: "kv.cleanup.pkce", Cron: "@daily", Retries: util.Ptr(-1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, api := newTestManager(t)

			created, err := m.Create(context.Background(), tt.schedule)
			require.Error(t, err)
			assert.Nil(t, created)
			assert.True(t, errors.IsInvalidRequestError(err))
			assert.Empty(t, api.created, "nothing reaches the broker")
		})
	}
}

func TestCreateAcceptsTimezoneAndDescriptors(t *testing.T) {
	m, _ := newTestManager(t)

	for _, expr := range []string{"@hourly", "CRON_TZ=UTC 30 2 * * *", "*/15 * * * 1-5"} {
		_, err := m.Create(context.Background(), Schedule{Name: "kv.cleanup.mcp", Cron: expr})
		assert.NoError(t, err, expr)
	}
}

func TestCreateWithRegistryRejectsUnknownJobs(t *testing.T) {
	registry := jobs.NewRegistry(zaptest.NewLogger(t).Sugar())
	registry.Register("kv.cleanup.pkce", func(context.Context, json.RawMessage) (any, error) { return nil, nil })
	m, api := newTestManager(t, WithRegistry(registry))

	_, err := m.Create(context.Background(), Schedule{Name: "kv.cleanup.pkce", Cron: "@daily"})
	require.NoError(t, err)

	_, err = m.Create(context.Background(), Schedule{Name: "mail.digest", Cron: "@daily"})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.Contains(t, errors.FlattenHints(err), "kv.cleanup.pkce")
	assert.Len(t, api.created, 1)
}

func TestCreateSurfacesBrokerFailure(t *testing.T) {
	m, api := newTestManager(t)
	api.err = errors.Mark(errors.New("broker down"), errors.ErrServiceUnavailable)

	_, err := m.Create(context.Background(), Schedule{Name: "kv.cleanup.pkce", Cron: "@daily"})
	require.Error(t, err)
	assert.True(t, errors.IsServiceUnavailableError(err))
}

func TestListSchedules(t *testing.T) {
	m, api := newTestManager(t)
	api.schedules = []broker.Schedule{
		{ScheduleID: "scd_a", Cron: "0 * * * *", Body: `{"name":"kv.cleanup.mcp"}`, Retries: 3, CreatedAt: 1760000000000},
		{ScheduleID: "scd_b", Cron: "@daily", Body: `{"name":"db.cleanup.sessions","payload":{"batch":100}}`, QueueName: "db", IsPaused: true},
		{ScheduleID: "scd_other", Cron: "@daily", Body: `hello`},
		{ScheduleID: "scd_noname", Cron: "@daily", Body: `{"payload":1}`},
	}

	schedules, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, schedules, 2)

	assert.Equal(t, "scd_a", schedules[0].ID)
	assert.Equal(t, "kv.cleanup.mcp", schedules[0].Name)
	assert.Equal(t, 3, *schedules[0].Retries)
	assert.Equal(t, time.UnixMilli(1760000000000).UTC(), schedules[0].CreatedAt)
	require.NotNil(t, schedules[0].NextRun)
	assert.Equal(t, time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC), *schedules[0].NextRun)

	assert.Equal(t, "db", schedules[1].Queue)
	assert.JSONEq(t, `{"batch":100}`, string(schedules[1].Payload))
	assert.Nil(t, schedules[1].NextRun, "paused schedules have no next run")
}

func TestListEmpty(t *testing.T) {
	m, _ := newTestManager(t)

	schedules, err := m.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, schedules)
	assert.Empty(t, schedules)
}

func TestDeleteSchedule(t *testing.T) {
	m, api := newTestManager(t)
	created, err := m.Create(context.Background(), Schedule{Name: "kv.cleanup.pkce", Cron: "@daily"})
	require.NoError(t, err)

	require.NoError(t, m.Delete(context.Background(), created.ID))
	assert.Equal(t, []string{created.ID}, api.deleted)

	assert.True(t, errors.IsInvalidRequestError(m.Delete(context.Background(), "")))
	assert.True(t, errors.IsNotFoundError(m.Delete(context.Background(), "scd_missing")))
}

func TestReplaceSchedule(t *testing.T) {
	m, api := newTestManager(t)
	original, err := m.Create(context.Background(), Schedule{Name: "kv.cleanup.pkce", Cron: "@daily"})
	require.NoError(t, err)

	replaced, err := m.Replace(context.Background(), original.ID, Schedule{Name: "kv.cleanup.pkce", Cron: "@hourly"})
	require.NoError(t, err)
	assert.NotEqual(t, original.ID, replaced.ID)
	assert.Equal(t, "@hourly", replaced.Cron)
	assert.Equal(t, []string{original.ID}, api.deleted)

	_, err = m.Replace(context.Background(), replaced.ID, Schedule{Name: "kv.cleanup.pkce"})
	require.Error(t, err)
	assert.Len(t, api.schedules, 1, "invalid replacement keeps the existing schedule")
}

func TestNextRun(t *testing.T) {
	after := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	next, err := NextRun("@daily", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), next)

	_, err = NextRun("61 * * * *", after)
	assert.True(t, errors.IsInvalidRequestError(err))
}
