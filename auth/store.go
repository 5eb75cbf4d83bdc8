package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/courier/errors"
)

// Store handles persistence of sessions
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new session store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// CreateSession creates a new session for a user
func (s *Store) CreateSession(ctx context.Context, userID, deviceID, deviceName, refreshToken string, expiresAt time.Time) (*Session, error) {
	now := s.now().UTC()
	session := &Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		DeviceID:     deviceID,
		DeviceName:   deviceName,
		CreatedAt:    now,
		ExpiresAt:    expiresAt.UTC(),
		LastActiveAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, device_id, device_name, refresh_token_hash, created_at, expires_at, last_active_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.DeviceID, session.DeviceName, hashToken(refreshToken),
		session.CreatedAt, session.ExpiresAt, session.LastActiveAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}

	return session, nil
}

// GetSession retrieves a session by ID. Returns nil, nil when absent.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	session := &Session{}
	var lastActive, revoked sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, device_id, device_name, created_at, expires_at, last_active_at, revoked_at
		 FROM sessions WHERE id = ?`,
		id,
	).Scan(&session.ID, &session.UserID, &session.DeviceID, &session.DeviceName,
		&session.CreatedAt, &session.ExpiresAt, &lastActive, &revoked)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get session")
	}

	if lastActive.Valid {
		session.LastActiveAt = lastActive.Time
	}
	if revoked.Valid {
		session.RevokedAt = &revoked.Time
	}

	return session, nil
}

// RevokeSession marks a session as revoked
func (s *Store) RevokeSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET revoked_at = ? WHERE id = ?",
		s.now().UTC(), sessionID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to revoke session")
	}
	return nil
}

// CleanupExpiredSessions removes expired sessions and returns how many were deleted.
// Running it with nothing expired is a no-op that returns 0.
func (s *Store) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at < ?",
		s.now().UTC(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup expired sessions")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted sessions")
	}
	return n, nil
}

// hashToken creates a SHA-256 hash of a token for secure storage
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
