package jobs

import (
	"context"
	"encoding/json"

	"github.com/teranos/courier/cache"
	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/logger"
)

// Built-in job names.
const (
	JobCleanupMCP      = "kv.cleanup.mcp"
	JobCleanupPKCE     = "kv.cleanup.pkce"
	JobCleanupSessions = "db.cleanup.sessions"
)

// CleanupJobNames lists the maintenance jobs the admin cleanup trigger enqueues.
var CleanupJobNames = []string{JobCleanupMCP, JobCleanupPKCE, JobCleanupSessions}

// KeyStore is the slice of the cache client the cleanup jobs use.
type KeyStore interface {
	Keys(ctx context.Context, pattern string) []string
	DeleteMany(ctx context.Context, keys ...string) int64
}

// SessionCleaner bulk-deletes expired sessions.
type SessionCleaner interface {
	CleanupExpiredSessions(ctx context.Context) (int64, error)
}

// BuiltinDeps are the collaborators of the built-in jobs. A nil Cache skips
// the kv.* jobs and a nil Sessions skips db.cleanup.sessions.
type BuiltinDeps struct {
	Cache    KeyStore
	Sessions SessionCleaner
}

// MCPCleanupResult is returned by kv.cleanup.mcp.
type MCPCleanupResult struct {
	ToolKeys  int   `json:"tool_keys"`
	OAuthKeys int   `json:"oauth_keys"`
	Deleted   int64 `json:"deleted"`
}

// DeleteResult is returned by the single-target cleanup jobs.
type DeleteResult struct {
	Deleted int64 `json:"deleted"`
}

// RegisterBuiltins registers the cleanup jobs on r.
func RegisterBuiltins(r *Registry, deps BuiltinDeps) {
	if deps.Cache != nil {
		r.Register(JobCleanupMCP, CleanupMCP(deps.Cache))
		r.Register(JobCleanupPKCE, CleanupPKCE(deps.Cache))
	} else {
		r.skipBuiltin(JobCleanupMCP, "cache.url not set")
		r.skipBuiltin(JobCleanupPKCE, "cache.url not set")
	}
	if deps.Sessions != nil {
		r.Register(JobCleanupSessions, CleanupSessions(deps.Sessions))
	} else {
		r.skipBuiltin(JobCleanupSessions, "database.path not set")
	}
}

// skipBuiltin records a built-in left out for a missing dependency. Enqueueing
// it later fails with unknown job, so the reason belongs in the startup log.
func (r *Registry) skipBuiltin(name, reason string) {
	r.logger.Warnw("Built-in job not registered", logger.FieldJobName, name, "reason", reason)
}

// CleanupMCP drops cached MCP tool lists and OAuth state. Safe to run with
// nothing cached and concurrently with itself.
func CleanupMCP(store KeyStore) Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		toolKeys := store.Keys(ctx, cache.ToolsPattern)
		oauthKeys := store.Keys(ctx, cache.OAuthPattern)

		deleted := store.DeleteMany(ctx, toolKeys...)
		deleted += store.DeleteMany(ctx, oauthKeys...)

		return MCPCleanupResult{
			ToolKeys:  len(toolKeys),
			OAuthKeys: len(oauthKeys),
			Deleted:   deleted,
		}, nil
	}
}

// CleanupPKCE drops PKCE verifiers. Verifiers are written with a TTL, so
// this only catches entries whose expiry was missed.
func CleanupPKCE(store KeyStore) Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		keys := store.Keys(ctx, cache.PKCEPattern)
		return DeleteResult{Deleted: store.DeleteMany(ctx, keys...)}, nil
	}
}

// CleanupSessions deletes expired sessions from the session store.
func CleanupSessions(sessions SessionCleaner) Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		n, err := sessions.CleanupExpiredSessions(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "cleanup expired sessions")
		}
		return DeleteResult{Deleted: n}, nil
	}
}
