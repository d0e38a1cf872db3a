package impl

import (
	"context"
	"log/slog"
	"time"

	deliverycontext "gatehouse/internal/delivery/context"
	"gatehouse/internal/domain/entity"
	domainerrors "gatehouse/internal/domain/errors"
	"gatehouse/internal/domain/repository"
	"gatehouse/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// sessionService implements the SessionUsecase interface.
type sessionService struct {
	sessionRepo repository.SessionRepository
	logger      *slog.Logger
}

// SessionServiceParams holds dependencies for sessionService, injected by Fx.
type SessionServiceParams struct {
	fx.In

	SessionRepo repository.SessionRepository
	Logger      *slog.Logger
}

// NewSessionService is the constructor for sessionService.
func NewSessionService(params SessionServiceParams) usecase.SessionUsecase {
	return &sessionService{
		sessionRepo: params.SessionRepo,
		logger:      params.Logger,
	}
}

func (srv *sessionService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// ListSessions returns every session belonging to the user, newest first,
// marking the one the caller is currently using.
func (srv *sessionService) ListSessions(ctx context.Context, userID, currentSessionID uuid.UUID) ([]*entity.SessionInfo, error) {
	sessions, err := srv.sessionRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}

	now := time.Now()
	infos := make([]*entity.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		lastUsed := session.LastUsedAt
		infos = append(infos, &entity.SessionInfo{
			ID:         session.ID,
			UserID:     session.UserID,
			CreatedAt:  session.CreatedAt,
			ExpiresAt:  session.ExpiresAt,
			LastUsedAt: &lastUsed,
			IsActive:   !session.Expired(now),
			IsCurrent:  session.ID == currentSessionID,
		})
	}

	return infos, nil
}

// RevokeSession deletes a single session after verifying the caller owns it.
func (srv *sessionService) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	session, err := srv.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return errors.Wrap(domainerrors.ErrNotFound, "session not found")
		}

		return errors.Wrap(err, "failed to load session for revocation")
	}

	// Ownership check. Responding with not-found instead of forbidden keeps
	// session IDs of other users unconfirmable.
	if session.UserID != userID {
		srv.log(ctx).Warn("Revocation attempt on session owned by another user",
			slog.Any("userID", userID), slog.Any("sessionID", sessionID))

		return errors.Wrap(domainerrors.ErrNotFound, "session not found")
	}

	if err := srv.sessionRepo.Delete(ctx, sessionID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return errors.Wrap(err, "failed to revoke session")
	}

	srv.log(ctx).Info("Session revoked", slog.Any("userID", userID), slog.Any("sessionID", sessionID))

	return nil
}

// RevokeOtherSessions deletes all of the user's sessions except the current one.
func (srv *sessionService) RevokeOtherSessions(ctx context.Context, userID, currentSessionID uuid.UUID) error {
	sessions, err := srv.sessionRepo.FindByUserID(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "failed to list sessions for revocation")
	}

	for _, session := range sessions {
		if session.ID == currentSessionID {
			continue
		}
		if err := srv.sessionRepo.Delete(ctx, session.ID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			return errors.Wrap(err, "failed to revoke session")
		}
	}

	srv.log(ctx).Info("Other sessions revoked", slog.Any("userID", userID))

	return nil
}

// RevokeAllSessions deletes every session the user has, the current one included.
func (srv *sessionService) RevokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	if err := srv.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return errors.Wrap(err, "failed to revoke all sessions")
	}

	srv.log(ctx).Info("All sessions revoked", slog.Any("userID", userID))

	return nil
}

// CleanupExpired removes sessions whose expiry has passed and reports how many were deleted.
func (srv *sessionService) CleanupExpired(ctx context.Context) (int, error) {
	deleted, err := srv.sessionRepo.DeleteExpired(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to clean up expired sessions")
	}

	if deleted > 0 {
		srv.log(ctx).Info("Expired sessions cleaned up", slog.Int("deleted", deleted))
	}

	return deleted, nil
}
