package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatehouse/internal/domain/entity"
	"gatehouse/internal/domain/repository"
)

func TestUserRepository_CreateAndFind(t *testing.T) {
	store := NewStore()
	repo := NewUserRepository(store)
	ctx := context.Background()

	user := &entity.User{Email: "alice@example.com", Name: "Alice"}
	require.NoError(t, repo.Create(ctx, user))
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	byID, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)

	byEmail, err := repo.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, repository.ErrUserNotFound))
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	store := NewStore()
	repo := NewUserRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &entity.User{Email: "alice@example.com"}))

	err := repo.Create(ctx, &entity.User{Email: "alice@example.com"})
	assert.True(t, errors.Is(err, repository.ErrDuplicateEmail))
}

func TestTransactionManager_RollsBackOnError(t *testing.T) {
	store := NewStore()
	tm := NewTransactionManager(store)
	ctx := context.Background()

	err := tm.Execute(ctx, func(f repository.RepositoryFactory) error {
		if err := f.UserRepo().Create(ctx, &entity.User{Email: "alice@example.com"}); err != nil {
			return err
		}

		return errors.New("boom")
	})
	require.Error(t, err)

	// The user created inside the failed transaction is gone
	_, err = NewUserRepository(store).FindByEmail(ctx, "alice@example.com")
	assert.True(t, errors.Is(err, repository.ErrUserNotFound))
}

func TestTransactionManager_CommitsOnSuccess(t *testing.T) {
	store := NewStore()
	tm := NewTransactionManager(store)
	ctx := context.Background()

	err := tm.Execute(ctx, func(f repository.RepositoryFactory) error {
		user := &entity.User{Email: "alice@example.com"}
		if err := f.UserRepo().Create(ctx, user); err != nil {
			return err
		}

		return f.CredentialRepo().Create(ctx, &entity.Credential{
			UserID:       user.ID,
			PasswordHash: "$2a$10$fakehash",
		})
	})
	require.NoError(t, err)

	cred, err := NewCredentialRepository(store).FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$fakehash", cred.PasswordHash)
}

func TestSessionRepository_TokenHashIndex(t *testing.T) {
	store := NewStore()
	repo := NewSessionRepository(store)
	ctx := context.Background()

	session := &entity.Session{
		UserID:    uuid.New(),
		TokenHash: "abc123",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.Create(ctx, session))

	found, err := repo.FindByTokenHash(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)

	require.NoError(t, repo.DeleteByTokenHash(ctx, "abc123"))

	_, err = repo.FindByTokenHash(ctx, "abc123")
	assert.True(t, errors.Is(err, repository.ErrSessionNotFound))

	// The id index was cleaned up too
	_, err = repo.FindByID(ctx, session.ID)
	assert.True(t, errors.Is(err, repository.ErrSessionNotFound))
}

func TestSessionRepository_ReturnsCopies(t *testing.T) {
	store := NewStore()
	repo := NewSessionRepository(store)
	ctx := context.Background()

	session := &entity.Session{
		UserID:    uuid.New(),
		TokenHash: "abc123",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.Create(ctx, session))

	found, err := repo.FindByID(ctx, session.ID)
	require.NoError(t, err)

	// Mutating the returned value must not touch the stored record
	found.ExpiresAt = time.Now().Add(-time.Hour)

	again, err := repo.FindByID(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, again.Expired(time.Now()))
}
