// Package impl contains the implementation of the application's business logic.
package impl

import (
	"context"
	"log/slog"
	"time"

	"gatehouse/config"
	deliverycontext "gatehouse/internal/delivery/context"
	"gatehouse/internal/domain/entity"
	domainerrors "gatehouse/internal/domain/errors"
	"gatehouse/internal/domain/repository"
	"gatehouse/internal/domain/service"
	"gatehouse/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// authService implements the AuthUsecase interface.
type authService struct {
	txManager     repository.TransactionManager
	userRepo      repository.UserRepository
	credRepo      repository.CredentialRepository
	sessionRepo   repository.SessionRepository
	hasher        service.PasswordHasher
	tokenService  service.TokenService
	slidingExpiry bool
	maxSessions   int
	logger        *slog.Logger
}

// AuthServiceParams holds dependencies for authService, injected by Fx.
type AuthServiceParams struct {
	fx.In

	TxManager    repository.TransactionManager
	UserRepo     repository.UserRepository
	CredRepo     repository.CredentialRepository
	SessionRepo  repository.SessionRepository
	Hasher       service.PasswordHasher
	TokenService service.TokenService
	Config       *config.Config
	Logger       *slog.Logger
}

// NewAuthService is the constructor for authService. It receives all dependencies as interfaces.
func NewAuthService(params AuthServiceParams) usecase.AuthUsecase {
	slidingExpiry := false
	maxSessions := 0
	if params.Config != nil && params.Config.Auth != nil {
		slidingExpiry = params.Config.Auth.SlidingExpiry
		maxSessions = params.Config.Auth.MaxSessionsPerUser
	}

	return &authService{
		txManager:     params.TxManager,
		userRepo:      params.UserRepo,
		credRepo:      params.CredRepo,
		sessionRepo:   params.SessionRepo,
		hasher:        params.Hasher,
		tokenService:  params.TokenService,
		slidingExpiry: slidingExpiry,
		maxSessions:   maxSessions,
		logger:        params.Logger,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *authService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// SignUp orchestrates the complete registration process: password policy
// check, atomic user+credential creation, then session issuance.
func (srv *authService) SignUp(ctx context.Context, input *usecase.SignUpInput) (*usecase.AuthOutput, error) {
	srv.log(ctx).Info("Starting sign-up", slog.String("email", input.Email))

	if err := srv.hasher.ValidatePasswordStrength(input.Password); err != nil {
		srv.log(ctx).Warn("Password policy rejected sign-up", slog.String("email", input.Email), slog.Any("error", err))

		return nil, errors.Wrap(domainerrors.ErrWeakCredential, "sign-up failed")
	}

	// bcrypt is CPU-bound; hash before opening the transaction.
	hashedPassword, err := srv.hasher.Hash(input.Password)
	if err != nil {
		srv.log(ctx).Error("Failed to hash password during sign-up", slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to hash password during sign-up")
	}

	var registeredUser *entity.User

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()
		credRepo := repoFactory.CredentialRepo()

		// 1. Reject early if the email is taken. The unique constraint on
		// users.email remains the arbiter for concurrent sign-ups; a loser
		// of that race surfaces as ErrDuplicateEmail from Create below.
		_, err := userRepo.FindByEmail(ctx, input.Email)
		if err == nil {
			return domainerrors.ErrDuplicateEmail.WrapMessage("sign-up failed")
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return errors.Wrap(err, "failed to look up email")
		}

		// 2. Create the User entity.
		newUser := &entity.User{
			Name:  input.Name,
			Email: input.Email,
		}
		if err := userRepo.Create(ctx, newUser); err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) {
				return domainerrors.ErrDuplicateEmail.WrapMessage("sign-up failed")
			}

			return errors.Wrap(err, "failed to create user during sign-up")
		}

		// 3. Create the credential record.
		newCred := &entity.Credential{
			UserID:       newUser.ID,
			PasswordHash: hashedPassword,
		}
		if err := credRepo.Create(ctx, newCred); err != nil {
			return errors.Wrap(err, "failed to create credential during sign-up")
		}

		registeredUser = newUser

		return nil
	})

	if err != nil {
		srv.log(ctx).Warn("Sign-up failed", slog.String("email", input.Email), slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to execute sign-up transaction")
	}

	session, token, err := srv.issueSession(ctx, registeredUser.ID)
	if err != nil {
		srv.log(ctx).Error("Failed to issue session after sign-up", slog.Any("userID", registeredUser.ID), slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to issue session after sign-up")
	}

	srv.log(ctx).Debug("Sign-up completed", slog.Any("userID", registeredUser.ID))

	return &usecase.AuthOutput{
		User:      registeredUser,
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// SignIn orchestrates the sign-in process.
func (srv *authService) SignIn(ctx context.Context, input *usecase.SignInInput) (*usecase.AuthOutput, error) {
	srv.log(ctx).Debug("Starting sign-in", slog.String("email", input.Email))

	credential, err := srv.credRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		// Unknown email collapses into the same generic error as a wrong
		// password so the response never reveals whether the email exists.
		if errors.Is(err, repository.ErrCredentialNotFound) || errors.Is(err, repository.ErrUserNotFound) {
			srv.log(ctx).Warn("Sign-in failed: unknown email", slog.String("email", input.Email))

			return nil, errors.Wrap(domainerrors.ErrInvalidCredential, "sign-in failed")
		}

		return nil, errors.Wrap(err, "failed to load credential")
	}

	// Check password outside any transaction (bcrypt is CPU-bound).
	if !srv.hasher.Check(input.Password, credential.PasswordHash) {
		srv.log(ctx).Warn("Sign-in failed: password mismatch", slog.String("email", input.Email))

		return nil, errors.Wrap(domainerrors.ErrInvalidCredential, "sign-in failed")
	}

	signedInUser, err := srv.userRepo.FindByID(ctx, credential.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load user for sign-in")
	}

	session, token, err := srv.issueSession(ctx, signedInUser.ID)
	if err != nil {
		srv.log(ctx).Error("Failed to issue session during sign-in", slog.Any("userID", signedInUser.ID), slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to issue session during sign-in")
	}

	srv.log(ctx).Debug("User signed in successfully", slog.Any("userID", signedInUser.ID))

	return &usecase.AuthOutput{
		User:      signedInUser,
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// SignOut destroys the session identified by the raw token.
func (srv *authService) SignOut(ctx context.Context, token string) error {
	srv.log(ctx).Info("Attempting to sign out")

	tokenHash := srv.tokenService.HashToken(token)

	if err := srv.sessionRepo.DeleteByTokenHash(ctx, tokenHash); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return errors.Wrap(domainerrors.ErrSessionNotFound, "sign-out failed")
		}

		srv.log(ctx).Error("Failed to delete session", slog.Any("error", err))

		return errors.Wrap(err, "failed to delete session")
	}
	srv.log(ctx).Info("Successfully signed out")

	return nil
}

// ValidateSession resolves a raw session token to its user. Expired records
// are deleted on sight; under the sliding policy a successful validation
// pushes expiry forward, best-effort.
func (srv *authService) ValidateSession(ctx context.Context, token string) (*usecase.SessionOutput, error) {
	tokenHash := srv.tokenService.HashToken(token)

	session, err := srv.sessionRepo.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, errors.Wrap(domainerrors.ErrSessionNotFound, "session validation failed")
		}

		return nil, errors.Wrap(err, "failed to look up session")
	}

	now := time.Now()
	if session.Expired(now) {
		// Best-effort removal; the session is invalid either way.
		if err := srv.sessionRepo.Delete(ctx, session.ID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			srv.log(ctx).Warn("Failed to delete expired session", slog.Any("sessionID", session.ID), slog.Any("error", err))
		}

		return nil, errors.Wrap(domainerrors.ErrSessionExpired, "session validation failed")
	}

	session.LastUsedAt = now
	if srv.slidingExpiry {
		session.ExpiresAt = now.Add(srv.tokenService.SessionTTL())
	}
	// A lost extension race only shortens the sliding window, so failures
	// are logged and ignored.
	if err := srv.sessionRepo.ExtendExpiry(ctx, session.ID, session); err != nil {
		srv.log(ctx).Warn("Failed to extend session expiry", slog.Any("sessionID", session.ID), slog.Any("error", err))
	}

	user, err := srv.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, errors.Wrap(domainerrors.ErrSessionNotFound, "session owner no longer exists")
		}

		return nil, errors.Wrap(err, "failed to load session owner")
	}

	lastUsed := session.LastUsedAt

	return &usecase.SessionOutput{
		User: user,
		Session: &entity.SessionInfo{
			ID:         session.ID,
			UserID:     session.UserID,
			CreatedAt:  session.CreatedAt,
			ExpiresAt:  session.ExpiresAt,
			LastUsedAt: &lastUsed,
			IsActive:   true,
			IsCurrent:  true,
		},
	}, nil
}

// IssueAccessToken mints a short-lived JWT access token from a valid session token.
func (srv *authService) IssueAccessToken(ctx context.Context, token string) (*usecase.AccessTokenOutput, error) {
	out, err := srv.ValidateSession(ctx, token)
	if err != nil {
		return nil, errors.Wrap(err, "cannot issue access token")
	}

	accessToken, err := srv.tokenService.GenerateAccessToken(out.User.ID, out.Session.ID)
	if err != nil {
		srv.log(ctx).Error("Failed to generate access token", slog.Any("userID", out.User.ID), slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to generate access token")
	}

	claims, err := srv.tokenService.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, errors.Wrap(err, "freshly minted access token failed validation")
	}

	return &usecase.AccessTokenOutput{
		AccessToken: accessToken,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// GetUser loads a user by ID for profile reads.
func (srv *authService) GetUser(ctx context.Context, userID uuid.UUID) (*entity.User, error) {
	user, err := srv.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, errors.Wrap(domainerrors.ErrNotFound, "user not found")
		}

		return nil, errors.Wrap(err, "failed to load user")
	}

	return user, nil
}

// issueSession generates a fresh opaque token and persists the session record.
// The raw token is returned to the caller exactly once and never stored.
func (srv *authService) issueSession(ctx context.Context, userID uuid.UUID) (*entity.Session, string, error) {
	token, err := srv.tokenService.NewSessionToken()
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to generate session token")
	}

	srv.enforceSessionLimit(ctx, userID)

	now := time.Now()
	session := &entity.Session{
		UserID:     userID,
		TokenHash:  srv.tokenService.HashToken(token),
		ExpiresAt:  now.Add(srv.tokenService.SessionTTL()),
		LastUsedAt: now,
	}

	if err := srv.sessionRepo.Create(ctx, session); err != nil {
		return nil, "", errors.Wrap(err, "failed to store session")
	}

	return session, token, nil
}

// enforceSessionLimit evicts the user's oldest sessions so that issuing one
// more stays within the configured cap. Eviction failures are logged and do
// not block the new session.
func (srv *authService) enforceSessionLimit(ctx context.Context, userID uuid.UUID) {
	if srv.maxSessions <= 0 {
		return
	}

	count, err := srv.sessionRepo.CountActiveByUserID(ctx, userID)
	if err != nil {
		srv.log(ctx).Warn("Failed to count sessions for limit check", slog.Any("userID", userID), slog.Any("error", err))

		return
	}
	if count < srv.maxSessions {
		return
	}

	sessions, err := srv.sessionRepo.FindByUserID(ctx, userID)
	if err != nil {
		srv.log(ctx).Warn("Failed to list sessions for eviction", slog.Any("userID", userID), slog.Any("error", err))

		return
	}

	// Sessions come back newest first; keep room for the incoming one.
	for _, session := range sessions[srv.maxSessions-1:] {
		if err := srv.sessionRepo.Delete(ctx, session.ID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			srv.log(ctx).Warn("Failed to evict session over limit", slog.Any("sessionID", session.ID), slog.Any("error", err))

			continue
		}

		srv.log(ctx).Info("Evicted session over limit", slog.Any("userID", userID), slog.Any("sessionID", session.ID))
	}
}
