// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// Session represents a live authenticated context for a user.
// The raw session token is returned to the client exactly once at issuance;
// only its SHA-256 hash is stored for comparison in the database.
type Session struct {
	ID         uuid.UUID // The unique ID for this session record.
	UserID     uuid.UUID // Links this session to the User it belongs to.
	TokenHash  string    // SHA-256 hash of the raw session token.
	ExpiresAt  time.Time // The exact time when this session expires and becomes invalid.
	CreatedAt  time.Time // Timestamp of when this session was created (i.e., when the user signed in).
	LastUsedAt time.Time // Timestamp of the most recent successful validation of this session.
}

// Expired reports whether the session is past its expiry at the given instant.
// A session is invalid at the expiry instant itself, not only after it.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionInfo is a client-safe projection of a Session used for session
// listings. It intentionally omits the token hash.
type SessionInfo struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	IsActive   bool       `json:"is_active"`
	IsCurrent  bool       `json:"is_current"`
}
