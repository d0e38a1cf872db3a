package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// APIError carries the error surface of a failed API call.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

// envelope mirrors the server's unified response structure.
type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code      string `json:"code"`
		Details   string `json:"details"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

type authPayload struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type sessionPayload struct {
	User    *User        `json:"user"`
	Session *SessionInfo `json:"session"`
}

// AccessToken is a short-lived signed token for header-based API access.
type AccessToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithSessionStore attaches an externally owned session store.
func WithSessionStore(store *SessionStore) Option {
	return func(c *Client) { c.store = store }
}

// Client talks to the authentication API with a bearer session token and
// keeps its SessionStore in sync with the outcomes.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *SessionStore

	mu    sync.RWMutex
	token string
}

// New creates a Client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		store:      NewSessionStore(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Store exposes the session store for subscriptions.
func (c *Client) Store() *SessionStore {
	return c.store
}

// Token returns the current session token, empty when signed out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.token
}

// SetToken installs a previously saved session token without validating it.
// Call Refresh afterwards to resolve the actual state.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// SignUp registers a new account and starts its first session.
func (c *Client) SignUp(ctx context.Context, name, email, password string) (*User, error) {
	body := map[string]string{"name": name, "email": email, "password": password}

	var payload authPayload
	if err := c.do(ctx, http.MethodPost, "/auth/sign-up", body, &payload); err != nil {
		return nil, err
	}

	c.adoptSession(&payload)

	return payload.User, nil
}

// SignIn authenticates with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) (*User, error) {
	body := map[string]string{"email": email, "password": password}

	var payload authPayload
	if err := c.do(ctx, http.MethodPost, "/auth/sign-in", body, &payload); err != nil {
		if isUnauthorized(err) {
			c.store.setUnauthenticated()
		}

		return nil, err
	}

	c.adoptSession(&payload)

	return payload.User, nil
}

// SignOut destroys the current session. The local state becomes
// unauthenticated even if the server no longer knows the session.
func (c *Client) SignOut(ctx context.Context) error {
	token := c.Token()
	if token == "" {
		c.store.setUnauthenticated()

		return nil
	}

	err := c.do(ctx, http.MethodPost, "/auth/sign-out", nil, nil)

	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	c.store.setUnauthenticated()

	if err != nil && !isUnauthorized(err) {
		return err
	}

	return nil
}

// Refresh resolves the stored token against the server and updates the
// session store. With no token the state settles on unauthenticated.
func (c *Client) Refresh(ctx context.Context) (*Snapshot, error) {
	prev := c.store.Snapshot()
	c.store.setLoading()

	if c.Token() == "" {
		c.store.setUnauthenticated()
		snap := c.store.Snapshot()

		return &snap, nil
	}

	var payload sessionPayload
	if err := c.do(ctx, http.MethodGet, "/auth/session", nil, &payload); err != nil {
		if isUnauthorized(err) {
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
			c.store.setUnauthenticated()
			snap := c.store.Snapshot()

			return &snap, nil
		}

		// Transport or server trouble says nothing about the session, so
		// the previous state is restored.
		c.store.set(prev)

		return nil, err
	}

	c.store.setAuthenticated(payload.User, payload.Session)
	snap := c.store.Snapshot()

	return &snap, nil
}

// IssueAccessToken mints a short-lived JWT from the current session.
func (c *Client) IssueAccessToken(ctx context.Context) (*AccessToken, error) {
	var payload AccessToken
	if err := c.do(ctx, http.MethodPost, "/auth/token", nil, &payload); err != nil {
		return nil, err
	}

	return &payload, nil
}

// ListSessions returns the account's sessions, newest first.
func (c *Client) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	var sessions []SessionInfo
	if err := c.do(ctx, http.MethodGet, "/user/sessions", nil, &sessions); err != nil {
		return nil, err
	}

	return sessions, nil
}

// RevokeSession revokes one session by ID.
func (c *Client) RevokeSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/user/sessions/"+sessionID, nil, nil)
}

// SignOutAll revokes every session of the account, this one included.
func (c *Client) SignOutAll(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/sign-out-all", nil, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	c.store.setUnauthenticated()

	return nil
}

// adoptSession stores the newly issued token and flips the store to
// authenticated.
func (c *Client) adoptSession(payload *authPayload) {
	c.mu.Lock()
	c.token = payload.Token
	c.mu.Unlock()

	c.store.setAuthenticated(payload.User, nil)
}

// do performs one API round trip, decoding the response envelope into out.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}

	if !env.Success {
		apiErr := &APIError{
			Status:  resp.StatusCode,
			Code:    "UNKNOWN",
			Message: env.Message,
		}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Retryable = env.Error.Retryable
		}

		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.Wrap(err, "failed to decode response data")
		}
	}

	return nil
}

func isUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized
	}

	return false
}
