package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gatehouse/config"
	deliverymiddleware "gatehouse/internal/delivery/http/middleware"
	"gatehouse/internal/delivery/http/router"
	"gatehouse/internal/delivery/http/router/handler"
	"gatehouse/internal/delivery/http/validator"
	infraauth "gatehouse/internal/infra/auth"
	"gatehouse/internal/infra/persistence/memory"
	"gatehouse/internal/usecase/impl"
)

// newTestServer boots the real HTTP surface over the in-memory backend.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Auth: &config.AuthConfig{
			SessionTTL:        time.Hour,
			AccessTokenTTL:    15 * time.Minute,
			BcryptCost:        bcrypt.MinCost,
			MinPasswordLength: 8,
			CookieName:        "gatehouse_session",
		},
	}
	cfg.SecretKey.Access = "test-access-secret"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tokenService, err := infraauth.NewTokenService(cfg)
	require.NoError(t, err)

	store := memory.NewStore()
	authUC := impl.NewAuthService(impl.AuthServiceParams{
		TxManager:    memory.NewTransactionManager(store),
		UserRepo:     memory.NewUserRepository(store),
		CredRepo:     memory.NewCredentialRepository(store),
		SessionRepo:  memory.NewSessionRepository(store),
		Hasher:       infraauth.NewBcryptHasher(cfg),
		TokenService: tokenService,
		Config:       cfg,
		Logger:       logger,
	})
	sessionUC := impl.NewSessionService(impl.SessionServiceParams{
		SessionRepo: memory.NewSessionRepository(store),
		Logger:      logger,
	})

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()
	e.HTTPErrorHandler = deliverymiddleware.NewErrorMiddleware(logger).HandleHTTPError

	r := router.NewRouter(router.RouterParams{
		AuthHandler:         handler.NewAuthHandler(authUC, cfg, logger),
		SessionHandler:      handler.NewSessionHandler(sessionUC, logger),
		AuthMiddleware:      deliverymiddleware.NewAuthMiddleware(authUC, tokenService, cfg),
		RequestIDMiddleware: deliverymiddleware.NewRequestIDMiddleware(logger),
	})
	r.RegisterRoutes(e)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return srv
}

// recorder collects every snapshot a subscription observes.
type recorder struct {
	states []SessionState
}

func (r *recorder) observe(snap Snapshot) {
	r.states = append(r.states, snap.State)
}

func TestSessionStore_SubscribeAndUnsubscribe(t *testing.T) {
	store := NewSessionStore()
	rec := &recorder{}

	unsubscribe := store.Subscribe(rec.observe)

	// The subscriber fires immediately with the current state
	require.Equal(t, []SessionState{StateUnknown}, rec.states)

	store.setLoading()
	store.setAuthenticated(&User{Email: "alice@example.com"}, nil)
	assert.Equal(t, []SessionState{StateUnknown, StateLoading, StateAuthenticated}, rec.states)

	unsubscribe()
	store.setUnauthenticated()

	// No notification after unsubscribing
	assert.Len(t, rec.states, 3)

	// The store itself still transitioned
	assert.Equal(t, StateUnauthenticated, store.State())
}

func TestClient_SignUpFlow(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL)
	ctx := context.Background()

	assert.Equal(t, StateUnknown, c.Store().State())

	user, err := c.SignUp(ctx, "Alice", "alice@example.com", "a strong password")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEmpty(t, c.Token())
	assert.Equal(t, StateAuthenticated, c.Store().State())
}

func TestClient_SignInWrongPassword(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL)
	ctx := context.Background()

	_, err := c.SignUp(ctx, "Alice", "alice@example.com", "a strong password")
	require.NoError(t, err)
	require.NoError(t, c.SignOut(ctx))

	_, err = c.SignIn(ctx, "alice@example.com", "not the password")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "INVALID_CREDENTIAL", apiErr.Code)
	assert.Equal(t, StateUnauthenticated, c.Store().State())
}

func TestClient_RefreshResolvesSavedToken(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	first := New(srv.URL)
	_, err := first.SignUp(ctx, "Alice", "alice@example.com", "a strong password")
	require.NoError(t, err)

	// A second client restores the saved token, e.g. after a restart
	second := New(srv.URL)
	second.SetToken(first.Token())

	rec := &recorder{}
	second.Store().Subscribe(rec.observe)

	snap, err := second.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.Equal(t, "alice@example.com", snap.User.Email)
	assert.NotNil(t, snap.Session)

	// unknown -> loading -> authenticated, never unauthenticated in between
	assert.Equal(t, []SessionState{StateUnknown, StateLoading, StateAuthenticated}, rec.states)
}

func TestClient_RefreshWithoutToken(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL)

	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateUnauthenticated, snap.State)
}

func TestClient_RefreshWithDeadToken(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL)
	c.SetToken("some-stale-token")

	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateUnauthenticated, snap.State)

	// The dead token was discarded
	assert.Empty(t, c.Token())
}

func TestClient_RefreshRestoresStateOnServerTrouble(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	c := New(srv.URL)
	_, err := c.SignUp(ctx, "Alice", "alice@example.com", "a strong password")
	require.NoError(t, err)

	_, err = c.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, c.Store().State())

	// Point the client at a dead server; the refresh fails without
	// flipping the cached state to unauthenticated.
	srv.Close()
	_, err = c.Refresh(ctx)
	require.Error(t, err)
	assert.Equal(t, StateAuthenticated, c.Store().State())
}

func TestClient_SignOut(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL)
	ctx := context.Background()

	_, err := c.SignUp(ctx, "Alice", "alice@example.com", "a strong password")
	require.NoError(t, err)
	token := c.Token()

	require.NoError(t, c.SignOut(ctx))
	assert.Empty(t, c.Token())
	assert.Equal(t, StateUnauthenticated, c.Store().State())

	// The server-side session is gone too
	stale := New(srv.URL)
	stale.SetToken(token)
	snap, err := stale.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateUnauthenticated, snap.State)
}

func TestClient_AccessTokenAndSessionManagement(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	c := New(srv.URL)
	_, err := c.SignUp(ctx, "Alice", "alice@example.com", "a strong password")
	require.NoError(t, err)

	access, err := c.IssueAccessToken(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, access.AccessToken)
	assert.True(t, access.ExpiresAt.After(time.Now()))

	// Second device
	other := New(srv.URL)
	_, err = other.SignIn(ctx, "alice@example.com", "a strong password")
	require.NoError(t, err)

	sessions, err := c.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	// Revoke the other device's session
	var otherID string
	for _, s := range sessions {
		if !s.IsCurrent {
			otherID = s.ID.String()
		}
	}
	require.NotEmpty(t, otherID)
	require.NoError(t, c.RevokeSession(ctx, otherID))

	snap, err := other.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateUnauthenticated, snap.State)
}

func TestClient_SignOutAll(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	c := New(srv.URL)
	_, err := c.SignUp(ctx, "Alice", "alice@example.com", "a strong password")
	require.NoError(t, err)

	other := New(srv.URL)
	_, err = other.SignIn(ctx, "alice@example.com", "a strong password")
	require.NoError(t, err)

	require.NoError(t, c.SignOutAll(ctx))
	assert.Equal(t, StateUnauthenticated, c.Store().State())

	snap, err := other.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateUnauthenticated, snap.State)
}
