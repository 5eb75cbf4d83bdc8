package broker

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/courier/errors"
)

func TestCreateSchedule(t *testing.T) {
	c, requests := newTestBroker(t, http.StatusOK, `{"scheduleId":"scd_1"}`)

	id, err := c.CreateSchedule(context.Background(), ScheduleRequest{
		Cron:    "0 3 * * *",
		Body:    []byte(`{"name":"kv.cleanup.pkce"}`),
		Retries: intPtr(2),
		Queue:   "maintenance",
	})
	require.NoError(t, err)
	assert.Equal(t, "scd_1", id)

	req := requests.all()[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/v2/schedules/"+testDestination, req.Path)
	assert.Equal(t, "0 3 * * *", req.Header.Get(HeaderCron))
	assert.Equal(t, "2", req.Header.Get(HeaderRetries))
	assert.Equal(t, "maintenance", req.Header.Get(HeaderQueueName))
	assert.JSONEq(t, `{"name":"kv.cleanup.pkce"}`, string(req.Body))
}

func TestCreateScheduleRequiresCron(t *testing.T) {
	c, requests := newTestBroker(t, http.StatusOK, `{"scheduleId":"scd_1"}`)

	_, err := c.CreateSchedule(context.Background(), ScheduleRequest{})
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.Empty(t, requests.all())
}

func TestCreateScheduleWithoutID(t *testing.T) {
	c, _ := newTestBroker(t, http.StatusOK, `{}`)

	_, err := c.CreateSchedule(context.Background(), ScheduleRequest{Cron: "@daily"})
	assert.True(t, errors.IsServiceUnavailableError(err))
}

func TestListSchedules(t *testing.T) {
	c, requests := newTestBroker(t, http.StatusOK, `[
		{"scheduleId":"scd_1","cron":"0 3 * * *","createdAt":1760000000000,
		 "destination":"https://app.example.com/jobs-webhook","body":"{\"name\":\"kv.cleanup.mcp\"}","retries":3}
	]`)

	schedules, err := c.ListSchedules(context.Background())
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "scd_1", schedules[0].ScheduleID)
	assert.Equal(t, `{"name":"kv.cleanup.mcp"}`, schedules[0].Body)
	assert.Equal(t, 3, schedules[0].Retries)
	assert.Equal(t, "/v2/schedules", requests.all()[0].Path)
}

func TestDeleteSchedule(t *testing.T) {
	c, requests := newTestBroker(t, http.StatusOK, ``)

	require.NoError(t, c.DeleteSchedule(context.Background(), "scd_1"))
	assert.Equal(t, http.MethodDelete, requests.all()[0].Method)
	assert.Equal(t, "/v2/schedules/scd_1", requests.all()[0].Path)

	assert.True(t, errors.IsInvalidRequestError(c.DeleteSchedule(context.Background(), "")))
}

func TestDeleteScheduleNotFound(t *testing.T) {
	c, _ := newTestBroker(t, http.StatusNotFound, `{"error":"schedule not found"}`)

	err := c.DeleteSchedule(context.Background(), "scd_missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
	assert.Contains(t, err.Error(), "schedule not found")
}
