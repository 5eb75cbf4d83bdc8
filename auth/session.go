// Package auth holds the session store. Login flows and cookie handling
// live elsewhere; background jobs only need to create, look up, revoke
// and sweep sessions.
package auth

import "time"

// Session is a logged-in device for a user.
type Session struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	DeviceID     string     `json:"device_id"`
	DeviceName   string     `json:"device_name,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	LastActiveAt time.Time  `json:"last_active_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
