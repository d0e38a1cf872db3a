package handler

import (
	"log/slog"
	"net/http"

	"gatehouse/internal/delivery/http/middleware"
	"gatehouse/internal/delivery/http/response"
	domainerrors "gatehouse/internal/domain/errors"
	"gatehouse/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// SessionHandler holds dependencies for session management handlers.
type SessionHandler struct {
	uc     usecase.SessionUsecase
	logger *slog.Logger
}

// NewSessionHandler is the constructor for SessionHandler, injected by Fx.
func NewSessionHandler(uc usecase.SessionUsecase, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		uc:     uc,
		logger: logger,
	}
}

// ListSessions returns every session of the authenticated user, newest first.
func (h *SessionHandler) ListSessions(c echo.Context) error {
	userID, sessionID, err := callerIDs(c)
	if err != nil {
		return err
	}

	sessions, err := h.uc.ListSessions(c.Request().Context(), userID, sessionID)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, sessions, "")
}

// RevokeSession revokes one session of the authenticated user.
func (h *SessionHandler) RevokeSession(c echo.Context) error {
	userID, _, err := callerIDs(c)
	if err != nil {
		return err
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return domainerrors.ErrValidationFailed.WrapMessage("invalid session id")
	}

	if err := h.uc.RevokeSession(c.Request().Context(), userID, sessionID); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, map[string]string{"message": "Session revoked"}, "")
}

// RevokeOtherSessions revokes every session except the one making the call.
func (h *SessionHandler) RevokeOtherSessions(c echo.Context) error {
	userID, sessionID, err := callerIDs(c)
	if err != nil {
		return err
	}

	if err := h.uc.RevokeOtherSessions(c.Request().Context(), userID, sessionID); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, map[string]string{"message": "Other sessions revoked"}, "")
}

// SignOutAll revokes every session of the authenticated user, including the
// current one.
func (h *SessionHandler) SignOutAll(c echo.Context) error {
	userID, _, err := callerIDs(c)
	if err != nil {
		return err
	}

	if err := h.uc.RevokeAllSessions(c.Request().Context(), userID); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, map[string]string{"message": "Signed out everywhere"}, "")
}

// callerIDs extracts the authenticated user and session IDs set by the auth
// middleware. The session ID may be uuid.Nil on the JWT path.
func callerIDs(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	userID, ok := c.Get(middleware.KeyUserID).(uuid.UUID)
	if !ok {
		return uuid.Nil, uuid.Nil, errors.New("user id missing from context")
	}

	sessionID, _ := c.Get(middleware.KeySessionID).(uuid.UUID)

	return userID, sessionID, nil
}
