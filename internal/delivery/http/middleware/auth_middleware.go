package middleware

import (
	"strings"

	"gatehouse/config"
	domainerrors "gatehouse/internal/domain/errors"
	"gatehouse/internal/domain/service"
	"gatehouse/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// Context keys set by Authenticate for downstream handlers.
const (
	KeyUserID       = "userID"
	KeySessionID    = "sessionID"
	KeySessionToken = "sessionToken"
	KeySession      = "session"
)

// AuthMiddleware authenticates requests either by a server-side session token
// (cookie or bearer) or by a short-lived JWT access token. A JWT is tried
// first since verifying it needs no storage round trip.
type AuthMiddleware struct {
	authUC   usecase.AuthUsecase
	tokenSvc service.TokenService
	cfg      *config.Config
}

// NewAuthMiddleware is the constructor for AuthMiddleware.
func NewAuthMiddleware(authUC usecase.AuthUsecase, tokenSvc service.TokenService, cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{authUC: authUC, tokenSvc: tokenSvc, cfg: cfg}
}

// Authenticate validates the caller's credential and places the user and
// session IDs on the echo context.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, fromHeader := m.extractToken(c)
		if token == "" {
			return domainerrors.ErrSessionNotFound.WrapMessage("no credential presented")
		}

		// Bearer values may be JWT access tokens rather than session tokens.
		if fromHeader {
			if claims, err := m.tokenSvc.ValidateAccessToken(token); err == nil {
				c.Set(KeyUserID, claims.UserID)
				c.Set(KeySessionID, claims.SessionID)

				return next(c)
			} else if looksLikeJWT(token) {
				// A malformed or expired JWT is not retried as a session token.
				return errors.Wrap(err, "access token rejected")
			}
		}

		out, err := m.authUC.ValidateSession(c.Request().Context(), token)
		if err != nil {
			return errors.Wrap(err, "session validation failed")
		}

		c.Set(KeyUserID, out.User.ID)
		c.Set(KeySessionID, out.Session.ID)
		c.Set(KeySessionToken, token)
		c.Set(KeySession, out)

		return next(c)
	}
}

// RequireSessionToken ensures the caller authenticated with a raw session
// token, not a JWT. Session-destroying operations need the raw token.
func (m *AuthMiddleware) RequireSessionToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := c.Get(KeySessionToken).(string); !ok {
			return domainerrors.ErrSessionNotFound.WrapMessage("a session token is required for this operation")
		}

		return next(c)
	}
}

// extractToken pulls the credential from the Authorization header or, failing
// that, the session cookie. The second return reports a header origin.
func (m *AuthMiddleware) extractToken(c echo.Context) (string, bool) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader != "" {
		if token := strings.TrimPrefix(authHeader, "Bearer "); token != authHeader && token != "" {
			return token, true
		}
	}

	cookieName := m.cfg.Auth.CookieName
	if cookie, err := c.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value, false
	}

	return "", false
}

// looksLikeJWT reports whether the token has the three-part JWT shape.
// Opaque session tokens are single base64url segments and never contain dots.
func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}
