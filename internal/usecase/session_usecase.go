// Package usecase contains the application-specific business rules.
package usecase

import (
	"context"

	"gatehouse/internal/domain/entity"

	"github.com/google/uuid"
)

// SessionUsecase defines the interface for session management operations:
// multi-device listing, per-device revocation and expired-session cleanup.
type SessionUsecase interface {
	// ListSessions retrieves all active sessions for a user, marking the one
	// matching currentSessionID.
	ListSessions(ctx context.Context, userID, currentSessionID uuid.UUID) ([]*entity.SessionInfo, error)

	// RevokeSession revokes a specific session after verifying ownership.
	RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error

	// RevokeOtherSessions revokes every session of the user except the current one.
	RevokeOtherSessions(ctx context.Context, userID, currentSessionID uuid.UUID) error

	// RevokeAllSessions signs the user out everywhere.
	RevokeAllSessions(ctx context.Context, userID uuid.UUID) error

	// CleanupExpired removes expired sessions and returns how many were deleted.
	CleanupExpired(ctx context.Context) (int, error)
}
