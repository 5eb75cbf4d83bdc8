// Package schedule keeps the broker's cron schedules in sync with the set
// of recurring jobs this service wants. Firing on time is the broker's job;
// this package only validates definitions and creates, lists and deletes
// them through the broker's schedule API.
package schedule

import (
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teranos/courier/errors"
)

// Schedule is a recurring job definition.
type Schedule struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Cron      string          `json:"cron"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Queue     string          `json:"queue,omitempty"`
	Retries   *int            `json:"retries,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	// NextRun is computed from Cron when listing; nil if the expression
	// cannot be evaluated locally.
	NextRun *time.Time `json:"next_run,omitempty"`
}

// Standard five-field expressions plus @daily-style descriptors. A leading
// CRON_TZ= or TZ= is accepted by the parser itself.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron validates expr and returns its schedule.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "invalid cron %q", expr), errors.ErrInvalidRequest)
	}
	return sched, nil
}

// NextRun returns the first activation of expr after t.
func NextRun(expr string, after time.Time) (time.Time, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
