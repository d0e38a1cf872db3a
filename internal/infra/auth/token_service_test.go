package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatehouse/config"
	domainerrors "gatehouse/internal/domain/errors"
)

func newTestTokenService(t *testing.T) *tokenService {
	t.Helper()

	cfg := &config.Config{
		Auth: &config.AuthConfig{
			SessionTTL:     time.Hour,
			AccessTokenTTL: 15 * time.Minute,
		},
	}
	cfg.SecretKey.Access = "test-access-secret"

	svc, err := NewTokenService(cfg)
	require.NoError(t, err)

	ts, ok := svc.(*tokenService)
	require.True(t, ok)

	return ts
}

func TestNewTokenService_MissingSecret(t *testing.T) {
	cfg := &config.Config{
		Auth: &config.AuthConfig{SessionTTL: time.Hour},
	}

	_, err := NewTokenService(cfg)
	assert.Error(t, err)
}

func TestTokenService_NewSessionToken(t *testing.T) {
	svc := newTestTokenService(t)

	token1, err := svc.NewSessionToken()
	require.NoError(t, err)
	token2, err := svc.NewSessionToken()
	require.NoError(t, err)

	// 32 bytes of entropy encode to 43 base64url characters
	assert.Len(t, token1, 43)
	assert.NotEqual(t, token1, token2)
}

func TestTokenService_HashToken(t *testing.T) {
	svc := newTestTokenService(t)

	hash := svc.HashToken("some-token")

	// Deterministic, hex-encoded SHA-256
	assert.Equal(t, svc.HashToken("some-token"), hash)
	assert.Len(t, hash, 64)
	assert.NotEqual(t, hash, svc.HashToken("some-other-token"))
	assert.NotContains(t, hash, "some-token")
}

func TestTokenService_SessionTTL(t *testing.T) {
	svc := newTestTokenService(t)

	assert.Equal(t, time.Hour, svc.SessionTTL())
}

func TestTokenService_AccessTokenRoundTrip(t *testing.T) {
	svc := newTestTokenService(t)

	userID := uuid.New()
	sessionID := uuid.New()

	token, err := svc.GenerateAccessToken(userID, sessionID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, sessionID, claims.SessionID)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestTokenService_ValidateAccessToken_WrongSecret(t *testing.T) {
	svc := newTestTokenService(t)

	token, err := svc.GenerateAccessToken(uuid.New(), uuid.New())
	require.NoError(t, err)

	other := newTestTokenService(t)
	other.accessSecret = "a-different-secret"

	_, err = other.ValidateAccessToken(token)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrAccessTokenInvalid))
}

func TestTokenService_ValidateAccessToken_Expired(t *testing.T) {
	svc := newTestTokenService(t)
	svc.accessTTL = -time.Minute

	token, err := svc.GenerateAccessToken(uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrAccessTokenInvalid))
}

func TestTokenService_ValidateAccessToken_Garbage(t *testing.T) {
	svc := newTestTokenService(t)

	_, err := svc.ValidateAccessToken("not.a.jwt")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrAccessTokenInvalid))
}
