package schedule

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/courier/broker"
	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/internal/util"
	"github.com/teranos/courier/logger"
	"github.com/teranos/courier/pulse/jobs"
)

// ScheduleAPI is the broker's schedule registry.
type ScheduleAPI interface {
	CreateSchedule(ctx context.Context, req broker.ScheduleRequest) (string, error)
	ListSchedules(ctx context.Context) ([]broker.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
}

var _ ScheduleAPI = (*broker.Client)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry makes Create reject job names the registry does not know.
func WithRegistry(r *jobs.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithLogger sets a custom logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager creates, lists and deletes cron schedules at the broker.
type Manager struct {
	api      ScheduleAPI
	registry *jobs.Registry
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewManager creates a schedule manager on top of api.
func NewManager(api ScheduleAPI, opts ...Option) *Manager {
	m := &Manager{
		api:    api,
		logger: logger.ComponentLogger("schedule"),
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Validate checks a definition without touching the broker.
func (m *Manager) Validate(s Schedule) error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.NewInvalidRequestError("schedule name is required")
	}
	if strings.TrimSpace(s.Cron) == "" {
		return errors.NewInvalidRequestError("schedule cron is required")
	}
	if _, err := ParseCron(s.Cron); err != nil {
		return err
	}
	if s.Retries != nil && *s.Retries < 0 {
		return errors.NewInvalidRequestError("retries cannot be negative")
	}
	if m.registry != nil && !m.registry.Has(s.Name) {
		return errors.WithHintf(errors.NewInvalidRequestError("no handler registered for job %q", s.Name),
			"registered jobs: %s", strings.Join(m.registry.Names(), ", "))
	}
	return nil
}

// Create validates s and registers it with the broker. The returned copy
// carries the broker-generated id.
func (m *Manager) Create(ctx context.Context, s Schedule) (*Schedule, error) {
	if err := m.Validate(s); err != nil {
		return nil, err
	}

	body, err := json.Marshal(jobs.Job{Name: s.Name, Payload: s.Payload})
	if err != nil {
		return nil, errors.Wrap(err, "marshal scheduled job")
	}

	id, err := m.api.CreateSchedule(ctx, broker.ScheduleRequest{
		Cron:    s.Cron,
		Body:    body,
		Retries: s.Retries,
		Queue:   s.Queue,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create schedule for %s", s.Name)
	}

	created := s
	created.ID = id
	created.CreatedAt = m.now().UTC()
	if next, err := NextRun(s.Cron, created.CreatedAt); err == nil {
		created.NextRun = &next
	}

	m.logger.Infow("Schedule created",
		logger.FieldScheduleID, id,
		logger.FieldJobName, s.Name,
		"cron", s.Cron)
	return &created, nil
}

// List returns the schedules at the broker that carry a job. Schedules
// with any other body belong to someone else and are skipped.
func (m *Manager) List(ctx context.Context) ([]Schedule, error) {
	remote, err := m.api.ListSchedules(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list schedules")
	}

	now := m.now()
	schedules := make([]Schedule, 0, len(remote))
	for _, r := range remote {
		var job jobs.Job
		if err := json.Unmarshal([]byte(r.Body), &job); err != nil || job.Name == "" {
			m.logger.Debugw("Skipping schedule without a job body", logger.FieldScheduleID, r.ScheduleID)
			continue
		}

		s := Schedule{
			ID:        r.ScheduleID,
			Name:      job.Name,
			Cron:      r.Cron,
			Payload:   job.Payload,
			Queue:     r.QueueName,
			Retries:   util.Ptr(r.Retries),
			CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
		}
		if !r.IsPaused {
			if next, err := NextRun(r.Cron, now); err == nil {
				s.NextRun = &next
			}
		}
		schedules = append(schedules, s)
	}
	return schedules, nil
}

// Delete removes a schedule by id.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.NewInvalidRequestError("schedule id is required")
	}
	if err := m.api.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	m.logger.Infow("Schedule deleted", logger.FieldScheduleID, id)
	return nil
}

// Replace swaps the schedule id for s. Schedules are not versioned, so this
// is a delete followed by a create; s is validated before anything is deleted.
func (m *Manager) Replace(ctx context.Context, id string, s Schedule) (*Schedule, error) {
	if err := m.Validate(s); err != nil {
		return nil, err
	}
	if err := m.Delete(ctx, id); err != nil {
		return nil, errors.Wrapf(err, "replace schedule %s", id)
	}
	return m.Create(ctx, s)
}
