package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims defines the custom claims carried by short-lived JWT access
// tokens. SessionID ties the stateless token back to the session it was
// minted from so revoking the session also bounds the blast radius.
type AccessClaims struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
	jwt.RegisteredClaims
}

// TokenService defines the interface for session token generation and for
// minting/validating JWT access tokens. It abstracts the token mechanics away
// from the use cases.
type TokenService interface {
	// NewSessionToken generates a cryptographically random, unguessable
	// opaque session token. Tokens are never reused across sessions.
	NewSessionToken() (string, error)

	// HashToken derives the storable hash of a raw session token.
	HashToken(token string) string

	// SessionTTL returns the configured session lifetime.
	SessionTTL() time.Duration

	// GenerateAccessToken mints a short-lived signed access token for the
	// given user and originating session.
	GenerateAccessToken(userID, sessionID uuid.UUID) (string, error)

	// ValidateAccessToken checks signature and expiry of an access token
	// string and returns its claims.
	ValidateAccessToken(tokenString string) (*AccessClaims, error)
}
