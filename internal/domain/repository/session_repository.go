// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"

	"gatehouse/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrSessionNotFound is returned when a session is not found.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository defines the interface for session persistence.
// Sessions are immutable once issued except for expiry extension under the
// sliding-window policy, which may be best-effort: a lost race merely
// shortens the window, never breaking correctness. This supports multi-device
// sign-in and remote sign-out.
type SessionRepository interface {
	// Create persists a new session, representing a live authenticated context.
	Create(ctx context.Context, session *entity.Session) error

	// FindByTokenHash retrieves a session record by its securely stored token hash.
	// Expiry is NOT checked here; the caller owns the expiry decision.
	FindByTokenHash(ctx context.Context, tokenHash string) (*entity.Session, error)

	// FindByID retrieves a session record by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error)

	// FindByUserID retrieves all sessions for a specific user, newest first.
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.Session, error)

	// ExtendExpiry moves a session's expiry and last-used timestamps forward.
	// Implementations may treat this as best-effort.
	ExtendExpiry(ctx context.Context, id uuid.UUID, session *entity.Session) error

	// Delete removes a session by its ID, ending that authenticated context.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteByTokenHash removes a session by its token hash.
	DeleteByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteByUserID removes all sessions for a user ("sign out everywhere").
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error

	// DeleteExpired removes all sessions past their expiry and returns the
	// number removed. Called periodically for cleanup.
	DeleteExpired(ctx context.Context) (int, error)

	// CountActiveByUserID returns the number of unexpired sessions for a user.
	CountActiveByUserID(ctx context.Context, userID uuid.UUID) (int, error)
}
