// Package broker talks to the external message broker: it publishes jobs,
// keeps the broker's cron schedules in sync, and verifies the signatures on
// deliveries the broker sends back to the webhook receiver.
//
// The HTTP surface follows Upstash QStash (v2 API). The broker owns
// delivery, retries and cron timing; nothing here retries on its own.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/logger"
	"github.com/teranos/courier/version"
)

// DefaultURL is the public QStash endpoint.
const DefaultURL = "https://qstash.upstash.io"

// maxErrorBody caps how much of a failed response is read for the error message.
const maxErrorBody = 4 << 10

// Config holds broker connection settings.
type Config struct {
	// URL is the broker API base, e.g. https://qstash.upstash.io.
	URL string
	// Token authenticates API calls.
	Token string
	// DestinationURL is the public URL of this service's webhook endpoint.
	DestinationURL string
}

// Doer executes HTTP requests. *http.Client and *httpclient.Client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for broker calls.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) { c.logger = l }
}

// Client is a broker API client. Safe for concurrent use.
type Client struct {
	baseURL     string
	token       string
	destination string
	userAgent   string
	http        Doer
	logger      *zap.SugaredLogger
}

// New creates a broker client. DestinationURL is required: every job and
// schedule is delivered there.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.DestinationURL == "" {
		return nil, errors.WithHint(errors.New("broker destination url is required"),
			"set broker.destination_url to the public URL of /jobs-webhook")
	}
	base := cfg.URL
	if base == "" {
		base = DefaultURL
	}

	c := &Client{
		baseURL:     strings.TrimRight(base, "/"),
		token:       cfg.Token,
		destination: cfg.DestinationURL,
		userAgent:   version.Get().UserAgent(),
		http:        &http.Client{Timeout: 30 * time.Second},
		logger:      logger.ComponentLogger("broker"),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Destination returns the webhook URL deliveries are sent to.
func (c *Client) Destination() string {
	return c.destination
}

// apiError is the broker's error body.
type apiError struct {
	Error string `json:"error"`
}

// do sends a request and decodes a JSON response into out (when non-nil).
// Transport failures and 5xx answers wrap ErrServiceUnavailable; rejected
// requests wrap ErrInvalidRequest or ErrNotFound.
func (c *Client) do(ctx context.Context, method, path string, header http.Header, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build broker request")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "broker %s %s", method, path), errors.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	c.logger.Debugw("Broker call",
		logger.FieldMethod, method,
		logger.FieldPath, path,
		logger.FieldStatus, resp.StatusCode,
		logger.FieldDurationMS, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Mark(errors.Wrap(err, "decode broker response"), errors.ErrServiceUnavailable)
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := strings.TrimSpace(string(raw))
	var apiErr apiError
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}
	err := errors.Mark(errors.Newf("broker %s %s: %d %s", method, path, resp.StatusCode, msg), errors.ErrUpstream)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Mark(err, errors.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errors.Mark(err, errors.ErrServiceUnavailable)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Our own credentials were refused; callers see an upstream failure.
		return errors.Mark(errors.WithHint(err, "check broker.token"), errors.ErrServiceUnavailable)
	default:
		return errors.Mark(err, errors.ErrInvalidRequest)
	}
}
