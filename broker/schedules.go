package broker

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/logger"
)

// ScheduleRequest describes a cron schedule to create at the broker.
type ScheduleRequest struct {
	Cron    string
	Body    []byte
	Retries *int
	Queue   string
}

// Schedule is a schedule as the broker reports it.
type Schedule struct {
	ScheduleID  string `json:"scheduleId"`
	Cron        string `json:"cron"`
	CreatedAt   int64  `json:"createdAt"`
	Destination string `json:"destination"`
	Method      string `json:"method,omitempty"`
	Body        string `json:"body,omitempty"`
	Retries     int    `json:"retries"`
	QueueName   string `json:"queueName,omitempty"`
	IsPaused    bool   `json:"isPaused,omitempty"`
}

type createScheduleResponse struct {
	ScheduleID string `json:"scheduleId"`
}

// CreateSchedule registers a cron schedule delivering Body to the webhook
// and returns the broker-generated schedule id.
func (c *Client) CreateSchedule(ctx context.Context, req ScheduleRequest) (string, error) {
	if req.Cron == "" {
		return "", errors.NewInvalidRequestError("cron is required")
	}

	header := make(http.Header)
	header.Set(HeaderCron, req.Cron)
	if req.Retries != nil {
		header.Set(HeaderRetries, strconv.Itoa(*req.Retries))
	}
	if req.Queue != "" {
		header.Set(HeaderQueueName, req.Queue)
	}

	body := req.Body
	if body == nil {
		body = []byte("{}")
	}

	var resp createScheduleResponse
	if err := c.do(ctx, http.MethodPost, "/v2/schedules/"+c.destination, header, body, &resp); err != nil {
		return "", errors.Wrap(err, "create schedule")
	}
	if resp.ScheduleID == "" {
		return "", errors.Mark(errors.New("broker returned no schedule id"), errors.ErrServiceUnavailable)
	}

	c.logger.Infow("Schedule created", logger.FieldScheduleID, resp.ScheduleID, "cron", req.Cron)
	return resp.ScheduleID, nil
}

// ListSchedules returns every schedule known to the broker.
func (c *Client) ListSchedules(ctx context.Context) ([]Schedule, error) {
	var schedules []Schedule
	if err := c.do(ctx, http.MethodGet, "/v2/schedules", nil, nil, &schedules); err != nil {
		return nil, errors.Wrap(err, "list schedules")
	}
	return schedules, nil
}

// DeleteSchedule removes a schedule by id.
func (c *Client) DeleteSchedule(ctx context.Context, id string) error {
	if id == "" {
		return errors.NewInvalidRequestError("schedule id is required")
	}
	if err := c.do(ctx, http.MethodDelete, "/v2/schedules/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return errors.Wrapf(err, "delete schedule %s", id)
	}
	c.logger.Infow("Schedule deleted", logger.FieldScheduleID, id)
	return nil
}
