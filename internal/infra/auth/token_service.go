package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"gatehouse/config"
	domainerrors "gatehouse/internal/domain/errors"
	"gatehouse/internal/domain/service"
)

// sessionTokenBytes is the entropy of an opaque session token. 256 bits keeps
// tokens unguessable even against an offline attacker.
const sessionTokenBytes = 32

// tokenService is a concrete implementation of the TokenService interface.
// Session tokens are opaque random strings; access tokens use the JWT standard.
type tokenService struct {
	accessSecret string        // Secret key for signing access tokens.
	accessTTL    time.Duration // Time-to-live for access tokens.
	sessionTTL   time.Duration // Time-to-live for sessions.
}

// NewTokenService is the constructor for tokenService.
// It takes configuration values to create a new token service instance.
func NewTokenService(cfg *config.Config) (service.TokenService, error) {
	if cfg.SecretKey.Access == "" {
		return nil, errors.New("access token secret must be provided")
	}
	if cfg.Auth == nil {
		return nil, errors.New("auth configuration must be provided")
	}

	return &tokenService{
		accessSecret: cfg.SecretKey.Access,
		accessTTL:    cfg.Auth.AccessTokenTTL,
		sessionTTL:   cfg.Auth.SessionTTL,
	}, nil
}

// NewSessionToken generates a fresh opaque session token from crypto/rand.
func (s *tokenService) NewSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to read random bytes")
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 digest of a raw token. Only the digest is
// ever persisted, so a leaked sessions table cannot be replayed.
func (s *tokenService) HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))

	return hex.EncodeToString(sum[:])
}

// SessionTTL returns the configured session lifetime.
func (s *tokenService) SessionTTL() time.Duration {
	return s.sessionTTL
}

// GenerateAccessToken creates a short-lived JWT bound to a user and the
// session it was minted from.
func (s *tokenService) GenerateAccessToken(userID, sessionID uuid.UUID) (string, error) {
	now := time.Now()
	claims := &service.AccessClaims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(s.accessSecret))
}

// ValidateAccessToken checks the signature and expiry of an access token and
// returns its claims.
func (s *tokenService) ValidateAccessToken(tokenString string) (*service.AccessClaims, error) {
	claims := &service.AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		// Ensure the signing method is what we expect.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}

		return []byte(s.accessSecret), nil
	})
	if err != nil {
		return nil, errors.Wrap(domainerrors.ErrAccessTokenInvalid, err.Error())
	}
	if !token.Valid {
		return nil, errors.Wrap(domainerrors.ErrAccessTokenInvalid, "token is not valid")
	}

	return claims, nil
}
