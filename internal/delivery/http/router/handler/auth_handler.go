// Package handler contains the HTTP handlers for the application.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"gatehouse/config"
	"gatehouse/internal/delivery/http/middleware"
	"gatehouse/internal/delivery/http/response"
	"gatehouse/internal/domain/entity"
	"gatehouse/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// --- Request / response shapes ---

type signUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// userView is the client-facing projection of a user.
type userView struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type authView struct {
	User      userView  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type sessionView struct {
	User    userView            `json:"user"`
	Session *entity.SessionInfo `json:"session"`
}

type accessTokenView struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func toUserView(u *entity.User) userView {
	return userView{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
}

// AuthHandler holds dependencies for authentication handlers.
type AuthHandler struct {
	uc     usecase.AuthUsecase
	cfg    *config.Config
	logger *slog.Logger
}

// NewAuthHandler is the constructor for AuthHandler, injected by Fx.
func NewAuthHandler(uc usecase.AuthUsecase, cfg *config.Config, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		uc:     uc,
		cfg:    cfg,
		logger: logger,
	}
}

// SignUp handles the registration request.
func (h *AuthHandler) SignUp(c echo.Context) error {
	var input signUpRequest
	if err := c.Bind(&input); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid sign-up input")
	}
	if err := c.Validate(&input); err != nil {
		return errors.WithStack(err)
	}

	output, err := h.uc.SignUp(c.Request().Context(), &usecase.SignUpInput{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	h.setSessionCookie(c, output.Token, output.ExpiresAt)

	return response.Success(c, http.StatusCreated, authView{
		User:      toUserView(output.User),
		Token:     output.Token,
		ExpiresAt: output.ExpiresAt,
	}, "User registered successfully")
}

// SignIn handles the sign-in request.
func (h *AuthHandler) SignIn(c echo.Context) error {
	var input signInRequest
	if err := c.Bind(&input); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid sign-in input")
	}
	if err := c.Validate(&input); err != nil {
		return errors.WithStack(err)
	}

	output, err := h.uc.SignIn(c.Request().Context(), &usecase.SignInInput{
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	h.setSessionCookie(c, output.Token, output.ExpiresAt)

	return response.Success(c, http.StatusOK, authView{
		User:      toUserView(output.User),
		Token:     output.Token,
		ExpiresAt: output.ExpiresAt,
	}, "Signed in successfully")
}

// SignOut destroys the presented session.
func (h *AuthHandler) SignOut(c echo.Context) error {
	token, _ := c.Get(middleware.KeySessionToken).(string)

	if err := h.uc.SignOut(c.Request().Context(), token); err != nil {
		return errors.WithStack(err)
	}

	h.clearSessionCookie(c)

	return response.Success(c, http.StatusOK, map[string]string{"message": "Successfully signed out"}, "Sign-out successful")
}

// Session resolves the presented session token to its user, refreshing the
// sliding window as a side effect.
func (h *AuthHandler) Session(c echo.Context) error {
	out, ok := c.Get(middleware.KeySession).(*usecase.SessionOutput)
	if !ok {
		return errors.New("session output missing from context")
	}

	return response.Success(c, http.StatusOK, sessionView{
		User:    toUserView(out.User),
		Session: out.Session,
	}, "Session is valid")
}

// Token mints a short-lived JWT access token from the presented session.
func (h *AuthHandler) Token(c echo.Context) error {
	token, _ := c.Get(middleware.KeySessionToken).(string)

	output, err := h.uc.IssueAccessToken(c.Request().Context(), token)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, accessTokenView{
		AccessToken: output.AccessToken,
		ExpiresAt:   output.ExpiresAt,
	}, "Access token issued")
}

// GetProfile returns the authenticated user.
func (h *AuthHandler) GetProfile(c echo.Context) error {
	userID, ok := c.Get(middleware.KeyUserID).(uuid.UUID)
	if !ok {
		return errors.New("user id missing from context")
	}

	user, err := h.uc.GetUser(c.Request().Context(), userID)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, toUserView(user), "")
}

// HealthCheck is a simple handler to check if the service is up.
func HealthCheck(c echo.Context) error {
	return response.Success(c, http.StatusOK, map[string]string{"status": "ok"}, "Service is healthy")
}

// setSessionCookie installs the session token as an HttpOnly cookie so
// browser clients never expose it to scripts.
func (h *AuthHandler) setSessionCookie(c echo.Context, token string, expiresAt time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     h.cfg.Auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.cfg.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     h.cfg.Auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
