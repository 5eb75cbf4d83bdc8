// Package cache is a best-effort typed client over a Redis-compatible
// key-value store.
//
// Values are stored inside an Envelope and transparently gzip-compressed
// when large. No method returns an error: transport and serialization
// failures are logged and degrade to nil, false or empty so that caching
// never becomes a source of user-facing failure.
package cache

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/logger"
)

// scanBatch is the COUNT hint passed to SCAN when enumerating keys.
const scanBatch = 100

// Backend is the subset of go-redis commands the client needs.
// *redis.Client and redis.Cmdable both satisfy it.
type Backend interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Info(ctx context.Context, section ...string) *redis.StringCmd
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets the logger used for swallowed failures.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) { c.logger = l }
}

// Client is the cache client. Safe for concurrent use.
type Client struct {
	backend Backend
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// New connects to the store described by a redis:// or rediss:// URL.
// Only URL parsing can fail; connectivity problems surface later as misses.
func New(url string, opts ...Option) (*Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse cache url")
	}
	return NewWithBackend(redis.NewClient(redisOpts), opts...), nil
}

// NewWithBackend wraps an existing backend. The caller keeps ownership of
// the backend's lifecycle unless Close is used.
func NewWithBackend(b Backend, opts ...Option) *Client {
	c := &Client{
		backend: b,
		logger:  logger.ComponentLogger("cache"),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Close releases the backend connection pool when the backend owns one.
func (c *Client) Close() error {
	if closer, ok := c.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Get returns the JSON encoding of the value stored at key, or nil on a
// miss or any failure.
func (c *Client) Get(ctx context.Context, key string) json.RawMessage {
	raw, err := c.backend.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warnw("Cache get failed", logger.FieldKey, key, logger.FieldError, err)
		}
		return nil
	}

	value, err := decodeStored(raw)
	if err != nil {
		c.logger.Warnw("Cache entry could not be decoded", logger.FieldKey, key, logger.FieldError, err)
		return nil
	}
	return value
}

// GetInto decodes the value stored at key into dst. It reports false on a
// miss, a failure, or when the stored value does not fit dst.
func (c *Client) GetInto(ctx context.Context, key string, dst any) bool {
	value := c.Get(ctx, key)
	if value == nil {
		return false
	}
	if err := json.Unmarshal(value, dst); err != nil {
		c.logger.Warnw("Cache value does not match target type", logger.FieldKey, key, logger.FieldError, err)
		return false
	}
	return true
}

// SetOption tunes a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	ttl      time.Duration
	compress *bool
}

// WithTTL expires the entry after ttl. Without it the entry never expires.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = ttl }
}

// WithCompression forces compression on or off, overriding the size threshold.
func WithCompression(compress bool) SetOption {
	return func(o *setOptions) { o.compress = &compress }
}

// Set stores value at key. Failures are logged and dropped; cache writes
// are never critical.
func (c *Client) Set(ctx context.Context, key string, value any, opts ...SetOption) {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	stored, err := encodeEnvelope(value, o.compress, c.now())
	if err != nil {
		c.logger.Warnw("Cache value could not be encoded", logger.FieldKey, key, logger.FieldError, err)
		return
	}

	if err := c.backend.Set(ctx, key, stored, o.ttl).Err(); err != nil {
		c.logger.Warnw("Cache set failed", logger.FieldKey, key, logger.FieldSize, len(stored), logger.FieldError, err)
		return
	}
	c.logger.Debugw("Cache set", logger.FieldKey, key, logger.FieldSize, len(stored), "ttl", o.ttl)
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) {
	if err := c.backend.Del(ctx, key).Err(); err != nil {
		c.logger.Warnw("Cache delete failed", logger.FieldKey, key, logger.FieldError, err)
	}
}

// DeleteMany removes keys and returns how many existed. Zero on failure.
func (c *Client) DeleteMany(ctx context.Context, keys ...string) int64 {
	if len(keys) == 0 {
		return 0
	}
	n, err := c.backend.Del(ctx, keys...).Result()
	if err != nil {
		c.logger.Warnw("Cache bulk delete failed", logger.FieldCount, len(keys), logger.FieldError, err)
		return 0
	}
	return n
}

// Exists reports whether key is present. False on failure.
func (c *Client) Exists(ctx context.Context, key string) bool {
	n, err := c.backend.Exists(ctx, key).Result()
	if err != nil {
		c.logger.Warnw("Cache exists failed", logger.FieldKey, key, logger.FieldError, err)
		return false
	}
	return n > 0
}

// Expire sets a new time-to-live on key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) {
	if err := c.backend.Expire(ctx, key, ttl).Err(); err != nil {
		c.logger.Warnw("Cache expire failed", logger.FieldKey, key, logger.FieldError, err)
	}
}

// Keys returns every key matching a glob pattern. It iterates with SCAN so
// large keyspaces do not block the server. Empty on failure.
func (c *Client) Keys(ctx context.Context, pattern string) []string {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.backend.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			c.logger.Warnw("Cache key scan failed", logger.FieldPattern, pattern, logger.FieldError, err)
			return []string{}
		}
		keys = append(keys, batch...)
		if next == 0 {
			break
		}
		cursor = next
	}
	if keys == nil {
		return []string{}
	}
	return dedupe(keys)
}

// Ping reports whether the store answers.
func (c *Client) Ping(ctx context.Context) bool {
	if err := c.backend.Ping(ctx).Err(); err != nil {
		c.logger.Warnw("Cache ping failed", logger.FieldError, err)
		return false
	}
	return true
}

// Info returns the store's INFO text, or "" on failure.
func (c *Client) Info(ctx context.Context) string {
	info, err := c.backend.Info(ctx).Result()
	if err != nil {
		c.logger.Warnw("Cache info failed", logger.FieldError, err)
		return ""
	}
	return info
}

// dedupe drops repeats; SCAN may return a key more than once.
func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
