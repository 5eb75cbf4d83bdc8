package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/logger"
	"github.com/teranos/courier/pulse/jobs"
)

// Broker directive headers.
const (
	HeaderDelay           = "Upstash-Delay"
	HeaderRetries         = "Upstash-Retries"
	HeaderDeduplicationID = "Upstash-Deduplication-Id"
	HeaderCron            = "Upstash-Cron"
	HeaderQueueName       = "Upstash-Queue-Name"
)

// EnqueueOptions are broker-level directives for one submission.
type EnqueueOptions struct {
	// DelaySeconds postpones the first delivery.
	DelaySeconds *int `json:"delaySeconds,omitempty"`
	// Retries overrides the broker's redelivery count.
	Retries *int `json:"retries,omitempty"`
	// Queue routes the message through a named, ordered broker queue.
	Queue string `json:"queue,omitempty"`
	// DeduplicationID makes repeated submissions within the broker's dedup
	// window collapse into one.
	DeduplicationID string `json:"deduplicationId,omitempty"`
}

// PublishResult is the broker's acknowledgement of an accepted job.
type PublishResult struct {
	MessageID    string `json:"messageId"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
}

// Enqueuer submits jobs for asynchronous execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, job jobs.Job, opts EnqueueOptions) (*PublishResult, error)
}

var _ Enqueuer = (*Client)(nil)

// Enqueue hands job to the broker and returns once the broker has accepted
// it. It does not wait for the job to run. A failed submission is always
// returned as an error; the caller decides whether to try again.
func (c *Client) Enqueue(ctx context.Context, job jobs.Job, opts EnqueueOptions) (*PublishResult, error) {
	if job.Name == "" {
		return nil, errors.NewInvalidRequestError("job name is required")
	}

	body, err := json.Marshal(job)
	if err != nil {
		return nil, errors.Wrap(err, "marshal job")
	}

	header := make(http.Header)
	if opts.DelaySeconds != nil {
		if *opts.DelaySeconds < 0 {
			return nil, errors.NewInvalidRequestError("delaySeconds cannot be negative")
		}
		header.Set(HeaderDelay, strconv.Itoa(*opts.DelaySeconds)+"s")
	}
	if opts.Retries != nil {
		if *opts.Retries < 0 {
			return nil, errors.NewInvalidRequestError("retries cannot be negative")
		}
		header.Set(HeaderRetries, strconv.Itoa(*opts.Retries))
	}
	if opts.DeduplicationID != "" {
		header.Set(HeaderDeduplicationID, opts.DeduplicationID)
	}

	path := "/v2/publish/" + c.destination
	if opts.Queue != "" {
		path = "/v2/enqueue/" + url.PathEscape(opts.Queue) + "/" + c.destination
	}

	var result PublishResult
	if err := c.do(ctx, http.MethodPost, path, header, body, &result); err != nil {
		return nil, errors.Wrapf(err, "enqueue %s", job.Name)
	}

	c.logger.Infow("Job enqueued",
		logger.FieldJobName, job.Name,
		logger.FieldMessageID, result.MessageID,
		"queue", opts.Queue,
		"deduplicated", result.Deduplicated)

	return &result, nil
}
