package testing

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/courier/cache"
)

// CreateTestCache returns a cache client backed by an in-process miniredis.
// Retries are disabled so tests that stop the server fail fast.
func CreateTestCache(t *testing.T) (*cache.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		rdb.Close()
	})

	return cache.NewWithBackend(rdb, cache.WithLogger(zaptest.NewLogger(t).Sugar())), mr
}
