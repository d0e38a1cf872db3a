package impl

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gatehouse/config"
	domainerrors "gatehouse/internal/domain/errors"
	"gatehouse/internal/domain/repository"
	infraauth "gatehouse/internal/infra/auth"
	"gatehouse/internal/infra/persistence/memory"
	"gatehouse/internal/usecase"
)

type authTestEnv struct {
	auth        usecase.AuthUsecase
	store       *memory.Store
	sessionRepo repository.SessionRepository
	userRepo    repository.UserRepository
}

func newAuthTestEnv(t *testing.T, mutate func(*config.Config)) *authTestEnv {
	t.Helper()

	cfg := &config.Config{
		Auth: &config.AuthConfig{
			SessionTTL:        time.Hour,
			AccessTokenTTL:    15 * time.Minute,
			BcryptCost:        bcrypt.MinCost,
			MinPasswordLength: 8,
		},
	}
	cfg.SecretKey.Access = "test-access-secret"
	if mutate != nil {
		mutate(cfg)
	}

	tokenService, err := infraauth.NewTokenService(cfg)
	require.NoError(t, err)

	store := memory.NewStore()
	userRepo := memory.NewUserRepository(store)
	sessionRepo := memory.NewSessionRepository(store)

	auth := NewAuthService(AuthServiceParams{
		TxManager:    memory.NewTransactionManager(store),
		UserRepo:     userRepo,
		CredRepo:     memory.NewCredentialRepository(store),
		SessionRepo:  sessionRepo,
		Hasher:       infraauth.NewBcryptHasher(cfg),
		TokenService: tokenService,
		Config:       cfg,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	return &authTestEnv{
		auth:        auth,
		store:       store,
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
	}
}

func TestAuthService_SignUp(t *testing.T) {
	env := newAuthTestEnv(t, nil)
	ctx := context.Background()

	out, err := env.auth.SignUp(ctx, &usecase.SignUpInput{
		Name:     "Alice",
		Email:    "alice@example.com",
		Password: "a strong password",
	})
	require.NoError(t, err)
	require.NotNil(t, out.User)
	assert.Equal(t, "alice@example.com", out.User.Email)
	assert.NotEmpty(t, out.Token)
	assert.True(t, out.ExpiresAt.After(time.Now()))

	// The issued token validates immediately
	sess, err := env.auth.ValidateSession(ctx, out.Token)
	require.NoError(t, err)
	assert.Equal(t, out.User.ID, sess.User.ID)
}

func TestAuthService_SignUp_DuplicateEmail(t *testing.T) {
	env := newAuthTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.auth.SignUp(ctx, &usecase.SignUpInput{
		Email:    "alice@example.com",
		Password: "a strong password",
	})
	require.NoError(t, err)

	_, err = env.auth.SignUp(ctx, &usecase.SignUpInput{
		Email:    "alice@example.com",
		Password: "another password",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrDuplicateEmail))

	// The first account is untouched
	user, err := env.userRepo.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, user.ID.String(), "")
}

func TestAuthService_SignUp_WeakPassword(t *testing.T) {
	env := newAuthTestEnv(t, nil)

	_, err := env.auth.SignUp(context.Background(), &usecase.SignUpInput{
		Email:    "bob@example.com",
		Password: "short",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrWeakCredential))

	// No partial state was left behind
	_, err = env.userRepo.FindByEmail(context.Background(), "bob@example.com")
	assert.True(t, errors.Is(err, repository.ErrUserNotFound))
}

func TestAuthService_SignIn(t *testing.T) {
	env := newAuthTestEnv(t, nil)
	ctx := context.Background()

	signUpOut, err := env.auth.SignUp(ctx, &usecase.SignUpInput{
		Email:    "alice@example.com",
		Password: "a strong password",
	})
	require.NoError(t, err)

	signInOut, err := env.auth.SignIn(ctx, &usecase.SignInInput{
		Email:    "alice@example.com",
		Password: "a strong password",
	})
	require.NoError(t, err)
	assert.Equal(t, signUpOut.User.ID, signInOut.User.ID)

	// A fresh session means a fresh token
	assert.NotEqual(t, signUpOut.Token, signInOut.Token)

	// Both sessions are valid concurrently
	_, err = env.auth.ValidateSession(ctx, signUpOut.Token)
	assert.NoError(t, err)
	_, err = env.auth.ValidateSession(ctx, signInOut.Token)
	assert.NoError(t, err)
}

func TestAuthService_SignIn_WrongPassword(t *testing.T) {
	env := newAuthTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.auth.SignUp(ctx, &usecase.SignUpInput{
		Email:    "alice@example.com",
		Password: "a strong password",
	})
	require.NoError(t, err)

	_, err = env.auth.SignIn(ctx, &usecase.SignInInput{
		Email:    "alice@example.com",
		Password: "not the password",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrInvalidCredential))
}

func TestAuthService_SignIn_UnknownEmail(t *testing.T) {
	env := newAuthTestEnv(t, nil)

	_, err := env.auth.SignIn(context.Background(), &usecase.SignInInput{
		Email:    "nobody@example.com",
		Password: "whatever password",
	})
	require.Error(t, err)

	// Indistinguishable from a wrong password
	assert.True(t, errors.Is(err, domainerrors.ErrInvalidCredential))
}

func TestAuthService_SignOut(t *testing.T) {
	env := newAuthTestEnv(t, nil)
	ctx := context.Background()

	out, err := env.auth.SignUp(ctx, &usecase.SignUpInput{
		Email:    "alice@example.com",
		Password: "a strong password",
	})
	require.NoError(t, err)

	require.NoError(t, env.auth.SignOut(ctx, out.Token))

	// The token is dead afterwards
	_, err = env.auth.ValidateSession(ctx, out.Token)
	assert.True(t, errors.Is(err, domainerrors.ErrSessionNotFound))

	// Signing out twice reports the missing session
	err = env.auth.SignOut(ctx, out.Token)
	assert.True(t, errors.Is(err, domainerrors.ErrSessionNotFound))
}

func TestAuthService_ValidateSession_UnknownToken(t *testing.T) {
	env := newAuthTestEnv(t, nil)

	_, err := env.auth.ValidateSession(context.Background(), "made-up-token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrSessionNotFound))
}

func TestAuthService_ValidateSession_Expired(t *testing.T) {
	env := newAuthTestEnv(t, nil)
	ctx := context.Background()

	out, err := env.auth.SignUp(ctx, &usecase.SignUpInput{
		Email:    "alice@example.com",
		Password: "a strong password",
	})
	require.NoError(t, err)

	// Force the stored session into the past
	forceExpire(t, env, ctx, out.User.ID)

	_, err = env.auth.ValidateSession(ctx, out.Token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrSessionExpired))

	// The expired record was deleted on sight, so a retry reports not-found
	_, err = env.auth.ValidateSession(ctx, out.Token)
	assert.True(t, errors.Is(err, domainerrors.ErrSessionNotFound))
}

func TestAuthService_ValidateSession_SlidingExpiry(t *testing.T) {
	env := newAuthTestEnv(t, func(cfg *config.Config) {
		cfg.Auth.SlidingExpiry = true
	})
	ctx := context.Background()

	out, err := env.auth.SignUp(ctx, &usecase.SignUpInput{
		Email:    "alice@example.com",
		Password: "a strong password",
	})
	require.NoError(t, err)

	sessions, err := env.sessionRepo.FindByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	before := sessions[0].ExpiresAt

	time.Sleep(10 * time.Millisecond)

	_, err = env.auth.ValidateSession(ctx, out.Token)
	require.NoError(t, err)

	sessions, err = env.sessionRepo.FindByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].ExpiresAt.After(before))
}

func TestAuthService_ValidateSession_FixedExpiry(t *testing.T) {
	env := newAuthTestEnv(t, nil)
	ctx := context.Background()

	out, err := env.auth.SignUp(ctx, &usecase.SignUpInput{
		Email:    "alice@example.com",
		Password: "a strong password",
	})
	require.NoError(t, err)

	sessions, err := env.sessionRepo.FindByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	before := sessions[0].ExpiresAt

	time.Sleep(10 * time.Millisecond)

	_, err = env.auth.ValidateSession(ctx, out.Token)
	require.NoError(t, err)

	// Expiry stays where issuance put it
	sessions, err = env.sessionRepo.FindByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].ExpiresAt.Equal(before))

	// LastUsedAt still advances
	assert.True(t, sessions[0].LastUsedAt.After(sessions[0].CreatedAt))
}

func TestAuthService_IssueAccessToken(t *testing.T) {
	env := newAuthTestEnv(t, nil)
	ctx := context.Background()

	out, err := env.auth.SignUp(ctx, &usecase.SignUpInput{
		Email:    "alice@example.com",
		Password: "a strong password",
	})
	require.NoError(t, err)

	access, err := env.auth.IssueAccessToken(ctx, out.Token)
	require.NoError(t, err)
	assert.NotEmpty(t, access.AccessToken)
	assert.True(t, access.ExpiresAt.After(time.Now()))

	// A dead session cannot mint access tokens
	require.NoError(t, env.auth.SignOut(ctx, out.Token))
	_, err = env.auth.IssueAccessToken(ctx, out.Token)
	assert.True(t, errors.Is(err, domainerrors.ErrSessionNotFound))
}

// forceExpire rewrites the user's sessions so their expiry is in the past.
func forceExpire(t *testing.T, env *authTestEnv, ctx context.Context, userID uuid.UUID) {
	t.Helper()

	sessions, err := env.sessionRepo.FindByUserID(ctx, userID)
	require.NoError(t, err)
	for _, session := range sessions {
		session.ExpiresAt = time.Now().Add(-time.Minute)
		require.NoError(t, env.sessionRepo.ExtendExpiry(ctx, session.ID, session))
	}
}

func TestAuthService_SessionLimitEvictsOldest(t *testing.T) {
	env := newAuthTestEnv(t, func(cfg *config.Config) {
		cfg.Auth.MaxSessionsPerUser = 2
	})
	ctx := context.Background()

	out, err := env.auth.SignUp(ctx, &usecase.SignUpInput{
		Email:    "alice@example.com",
		Password: "a strong password",
	})
	require.NoError(t, err)
	firstToken := out.Token

	second, err := env.auth.SignIn(ctx, &usecase.SignInInput{
		Email:    "alice@example.com",
		Password: "a strong password",
	})
	require.NoError(t, err)

	third, err := env.auth.SignIn(ctx, &usecase.SignInInput{
		Email:    "alice@example.com",
		Password: "a strong password",
	})
	require.NoError(t, err)

	// The oldest session was evicted to make room
	_, err = env.auth.ValidateSession(ctx, firstToken)
	assert.True(t, errors.Is(err, domainerrors.ErrSessionNotFound))

	_, err = env.auth.ValidateSession(ctx, second.Token)
	require.NoError(t, err)
	_, err = env.auth.ValidateSession(ctx, third.Token)
	require.NoError(t, err)

	count, err := env.sessionRepo.CountActiveByUserID(ctx, out.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
