// Package usecase contains the application-specific business rules.
// It orchestrates the domain layer to perform tasks.
package usecase

import (
	"context"
	"time"

	"gatehouse/internal/domain/entity"

	"github.com/google/uuid"
)

// --- Input DTOs ---

// SignUpInput defines the data required to register a new user.
type SignUpInput struct {
	Name     string
	Email    string
	Password string
}

// SignInInput defines the data required for a user to sign in.
type SignInInput struct {
	Email    string
	Password string
}

// --- Output DTOs ---

// AuthOutput returns the authenticated user together with the freshly issued
// session token. The raw token appears here and nowhere else.
type AuthOutput struct {
	User      *entity.User
	Token     string
	ExpiresAt time.Time
}

// SessionOutput resolves a session token to its owning user and a client-safe
// view of the session itself.
type SessionOutput struct {
	User    *entity.User
	Session *entity.SessionInfo
}

// AccessTokenOutput returns a short-lived signed access token minted from a
// valid session.
type AccessTokenOutput struct {
	AccessToken string
	ExpiresAt   time.Time
}

// AuthUsecase defines the interface for the authentication boundary.
// This is the contract that the delivery layer (e.g., API handlers) will depend on.
type AuthUsecase interface {
	// SignUp registers a new user and issues an initial session.
	SignUp(ctx context.Context, input *SignUpInput) (*AuthOutput, error)

	// SignIn verifies credentials and issues a new session.
	SignIn(ctx context.Context, input *SignInInput) (*AuthOutput, error)

	// SignOut destroys the session identified by the raw token.
	SignOut(ctx context.Context, token string) error

	// ValidateSession resolves a raw session token to its user, enforcing
	// expiry and applying the sliding-window policy when configured.
	ValidateSession(ctx context.Context, token string) (*SessionOutput, error)

	// IssueAccessToken mints a short-lived JWT access token from a valid
	// session token.
	IssueAccessToken(ctx context.Context, token string) (*AccessTokenOutput, error)

	// GetUser loads a user by ID for profile reads.
	GetUser(ctx context.Context, userID uuid.UUID) (*entity.User, error)
}
