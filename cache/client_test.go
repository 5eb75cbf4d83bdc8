package cache

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	return NewWithBackend(rdb, WithLogger(zaptest.NewLogger(t).Sugar())), mr
}

func storedEnvelope(t *testing.T, mr *miniredis.Miniredis, key string) Envelope {
	t.Helper()

	raw, err := mr.Get(key)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	return env
}

func TestSetGetSmallValue(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	c.Set(ctx, "k", map[string]int{"a": 1})

	env := storedEnvelope(t, mr, "k")
	assert.False(t, env.Compressed)
	assert.Equal(t, `{"a":1}`, env.Data)
	_, err := time.Parse(time.RFC3339, env.Timestamp)
	assert.NoError(t, err, "timestamp should be ISO-8601")

	assert.JSONEq(t, `{"a":1}`, string(c.Get(ctx, "k")))
}

func TestSetGetLargeValueCompresses(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	value := map[string]string{"body": strings.Repeat("x", 2*CompressionThreshold)}
	original, err := json.Marshal(value)
	require.NoError(t, err)

	c.Set(ctx, "big", value)

	env := storedEnvelope(t, mr, "big")
	require.True(t, env.Compressed)

	zipped, err := base64.StdEncoding.DecodeString(env.Data)
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(zipped))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, original, plain)

	var got map[string]string
	require.True(t, c.GetInto(ctx, "big", &got))
	assert.Equal(t, value, got)
}

func TestCompressionThresholdBoundary(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	// A JSON string of n characters encodes to n+2 bytes.
	atLimit := strings.Repeat("a", CompressionThreshold-2)
	overLimit := strings.Repeat("a", CompressionThreshold-1)

	c.Set(ctx, "at", atLimit)
	c.Set(ctx, "over", overLimit)

	assert.False(t, storedEnvelope(t, mr, "at").Compressed)
	assert.True(t, storedEnvelope(t, mr, "over").Compressed)

	var got string
	require.True(t, c.GetInto(ctx, "over", &got))
	assert.Equal(t, overLimit, got)
}

func TestExplicitCompression(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	c.Set(ctx, "small", []int{1, 2, 3}, WithCompression(true))
	c.Set(ctx, "large", strings.Repeat("z", 4000), WithCompression(false))

	assert.True(t, storedEnvelope(t, mr, "small").Compressed)
	assert.False(t, storedEnvelope(t, mr, "large").Compressed)
	assert.JSONEq(t, `[1,2,3]`, string(c.Get(ctx, "small")))
}

func TestSetWithTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	c.Set(ctx, "ttl", "v", WithTTL(time.Minute))
	c.Set(ctx, "forever", "v")

	assert.Equal(t, time.Minute, mr.TTL("ttl"))
	assert.Zero(t, mr.TTL("forever"))

	mr.FastForward(2 * time.Minute)
	assert.Nil(t, c.Get(ctx, "ttl"))
	assert.NotNil(t, c.Get(ctx, "forever"))
}

func TestGetLegacyValues(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	require.NoError(t, mr.Set("json", `{"x":1,"data":"not an envelope"}`))
	require.NoError(t, mr.Set("text", "hello"))

	assert.JSONEq(t, `{"x":1,"data":"not an envelope"}`, string(c.Get(ctx, "json")))
	assert.Equal(t, `"hello"`, string(c.Get(ctx, "text")))
}

func TestGetMissAndCorruptEntries(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	assert.Nil(t, c.Get(ctx, "missing"))

	require.NoError(t, mr.Set("corrupt", `{"data":"%%%","compressed":true,"timestamp":""}`))
	assert.Nil(t, c.Get(ctx, "corrupt"))

	var dst struct{ A int }
	assert.False(t, c.GetInto(ctx, "missing", &dst))
}

func TestSetUnencodableValueIsDropped(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	c.Set(ctx, "fn", func() {})
	assert.False(t, mr.Exists("fn"))
}

func TestExistsExpireDelete(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	c.Set(ctx, "k", 1)
	assert.True(t, c.Exists(ctx, "k"))

	c.Expire(ctx, "k", 30*time.Second)
	assert.Equal(t, 30*time.Second, mr.TTL("k"))

	c.Delete(ctx, "k")
	assert.False(t, c.Exists(ctx, "k"))

	// Deleting again is a no-op
	c.Delete(ctx, "k")
}

func TestKeysAndDeleteMany(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	c.Set(ctx, PKCEKey("u1", "s1"), "verifier")
	c.Set(ctx, PKCEKey("u2", "s2"), "verifier")
	c.Set(ctx, ToolsKey("u1", "github"), []string{"search"})

	keys := c.Keys(ctx, PKCEPattern)
	assert.ElementsMatch(t, []string{"u1:pkce:s1", "u2:pkce:s2"}, keys)

	assert.Equal(t, int64(2), c.DeleteMany(ctx, keys...))
	assert.Empty(t, c.Keys(ctx, PKCEPattern))
	assert.Equal(t, int64(0), c.DeleteMany(ctx))
	assert.Len(t, c.Keys(ctx, ToolsPattern), 1)
}

func TestUnreachableStoreNeverFails(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	c.Set(ctx, "k", 1)
	mr.Close()

	assert.Nil(t, c.Get(ctx, "k"))
	assert.False(t, c.Exists(ctx, "k"))
	assert.Equal(t, []string{}, c.Keys(ctx, "*"))
	assert.Equal(t, int64(0), c.DeleteMany(ctx, "k"))
	assert.False(t, c.Ping(ctx))
	assert.Equal(t, "", c.Info(ctx))

	// Writes are swallowed
	c.Set(ctx, "k", 2)
	c.Delete(ctx, "k")
	c.Expire(ctx, "k", time.Second)
}

func TestPing(t *testing.T) {
	c, _ := newTestClient(t)
	assert.True(t, c.Ping(context.Background()))
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("not-a-url://")
	assert.Error(t, err)

	c, err := New("redis://localhost:6379/0")
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}
