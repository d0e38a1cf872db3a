// Package memory provides map-backed repository implementations. The backend
// is selectable for local development and doubles as the storage used in
// service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"gatehouse/internal/domain/entity"
	"gatehouse/internal/domain/repository"

	"github.com/google/uuid"
)

// Store holds all in-memory state behind a single mutex.
type Store struct {
	mu sync.RWMutex

	users       map[uuid.UUID]*entity.User
	emailIndex  map[string]uuid.UUID
	credentials map[uuid.UUID]*entity.Credential
	sessions    map[uuid.UUID]*entity.Session
	tokenIndex  map[string]uuid.UUID
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:       make(map[uuid.UUID]*entity.User),
		emailIndex:  make(map[string]uuid.UUID),
		credentials: make(map[uuid.UUID]*entity.Credential),
		sessions:    make(map[uuid.UUID]*entity.Session),
		tokenIndex:  make(map[string]uuid.UUID),
	}
}

// snapshot clones all maps so a failed transaction can be rolled back.
func (s *Store) snapshot() *Store {
	clone := NewStore()
	for id, u := range s.users {
		cp := *u
		clone.users[id] = &cp
	}
	for email, id := range s.emailIndex {
		clone.emailIndex[email] = id
	}
	for id, c := range s.credentials {
		cp := *c
		clone.credentials[id] = &cp
	}
	for id, sess := range s.sessions {
		cp := *sess
		clone.sessions[id] = &cp
	}
	for hash, id := range s.tokenIndex {
		clone.tokenIndex[hash] = id
	}

	return clone
}

func (s *Store) restore(from *Store) {
	s.users = from.users
	s.emailIndex = from.emailIndex
	s.credentials = from.credentials
	s.sessions = from.sessions
	s.tokenIndex = from.tokenIndex
}

// UserRepository implementation.

type userRepository struct {
	store *Store
}

// NewUserRepository creates a map-backed UserRepository.
func NewUserRepository(store *Store) repository.UserRepository {
	return &userRepository{store: store}
}

func (r *userRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	user, ok := r.store.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *user

	return &cp, nil
}

func (r *userRepository) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.emailIndex[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *r.store.users[id]

	return &cp, nil
}

func (r *userRepository) Create(_ context.Context, user *entity.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, taken := r.store.emailIndex[user.Email]; taken {
		return repository.ErrDuplicateEmail
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	cp := *user
	r.store.users[user.ID] = &cp
	r.store.emailIndex[user.Email] = user.ID

	return nil
}

func (r *userRepository) Update(_ context.Context, user *entity.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.users[user.ID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if stored.Email != user.Email {
		if _, taken := r.store.emailIndex[user.Email]; taken {
			return repository.ErrDuplicateEmail
		}
		delete(r.store.emailIndex, stored.Email)
		r.store.emailIndex[user.Email] = user.ID
	}

	user.UpdatedAt = time.Now()
	cp := *user
	r.store.users[user.ID] = &cp

	return nil
}

// CredentialRepository implementation.

type credentialRepository struct {
	store *Store
}

// NewCredentialRepository creates a map-backed CredentialRepository.
func NewCredentialRepository(store *Store) repository.CredentialRepository {
	return &credentialRepository{store: store}
}

func (r *credentialRepository) Create(_ context.Context, cred *entity.Credential) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}
	now := time.Now()
	cred.CreatedAt = now
	cred.UpdatedAt = now

	cp := *cred
	r.store.credentials[cred.UserID] = &cp

	return nil
}

func (r *credentialRepository) FindByUserID(_ context.Context, userID uuid.UUID) (*entity.Credential, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	cred, ok := r.store.credentials[userID]
	if !ok {
		return nil, repository.ErrCredentialNotFound
	}
	cp := *cred

	return &cp, nil
}

func (r *credentialRepository) FindByEmail(_ context.Context, email string) (*entity.Credential, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	userID, ok := r.store.emailIndex[email]
	if !ok {
		return nil, repository.ErrCredentialNotFound
	}
	cred, ok := r.store.credentials[userID]
	if !ok {
		return nil, repository.ErrCredentialNotFound
	}
	cp := *cred

	return &cp, nil
}

// SessionRepository implementation.

type sessionRepository struct {
	store *Store
}

// NewSessionRepository creates a map-backed SessionRepository.
func NewSessionRepository(store *Store) repository.SessionRepository {
	return &sessionRepository{store: store}
}

func (r *sessionRepository) Create(_ context.Context, session *entity.Session) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	cp := *session
	r.store.sessions[session.ID] = &cp
	r.store.tokenIndex[session.TokenHash] = session.ID

	return nil
}

func (r *sessionRepository) FindByTokenHash(_ context.Context, tokenHash string) (*entity.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.tokenIndex[tokenHash]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *r.store.sessions[id]

	return &cp, nil
}

func (r *sessionRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	session, ok := r.store.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *session

	return &cp, nil
}

func (r *sessionRepository) FindByUserID(_ context.Context, userID uuid.UUID) ([]*entity.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var sessions []*entity.Session
	for _, session := range r.store.sessions {
		if session.UserID == userID {
			cp := *session
			sessions = append(sessions, &cp)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})

	return sessions, nil
}

func (r *sessionRepository) ExtendExpiry(_ context.Context, id uuid.UUID, session *entity.Session) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	stored.ExpiresAt = session.ExpiresAt
	stored.LastUsedAt = session.LastUsedAt

	return nil
}

func (r *sessionRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	session, ok := r.store.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	delete(r.store.tokenIndex, session.TokenHash)
	delete(r.store.sessions, id)

	return nil
}

func (r *sessionRepository) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	id, ok := r.store.tokenIndex[tokenHash]
	if !ok {
		return repository.ErrSessionNotFound
	}
	delete(r.store.tokenIndex, tokenHash)
	delete(r.store.sessions, id)

	return nil
}

func (r *sessionRepository) DeleteByUserID(_ context.Context, userID uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for id, session := range r.store.sessions {
		if session.UserID == userID {
			delete(r.store.tokenIndex, session.TokenHash)
			delete(r.store.sessions, id)
		}
	}

	return nil
}

func (r *sessionRepository) DeleteExpired(_ context.Context) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now()
	deleted := 0
	for id, session := range r.store.sessions {
		if session.Expired(now) {
			delete(r.store.tokenIndex, session.TokenHash)
			delete(r.store.sessions, id)
			deleted++
		}
	}

	return deleted, nil
}

func (r *sessionRepository) CountActiveByUserID(_ context.Context, userID uuid.UUID) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	now := time.Now()
	count := 0
	for _, session := range r.store.sessions {
		if session.UserID == userID && !session.Expired(now) {
			count++
		}
	}

	return count, nil
}

// Transaction support.

type transactionManager struct {
	store *Store
}

// NewTransactionManager creates a TransactionManager over the store. Rollback
// is approximated with a copy-on-entry snapshot, which is sufficient for a
// single-process store.
func NewTransactionManager(store *Store) repository.TransactionManager {
	return &transactionManager{store: store}
}

func (tm *transactionManager) Execute(_ context.Context, fn func(repository.RepositoryFactory) error) error {
	tm.store.mu.Lock()
	before := tm.store.snapshot()
	tm.store.mu.Unlock()

	if err := fn(&repositoryFactory{store: tm.store}); err != nil {
		tm.store.mu.Lock()
		tm.store.restore(before)
		tm.store.mu.Unlock()

		return err
	}

	return nil
}

type repositoryFactory struct {
	store *Store
}

func (f *repositoryFactory) UserRepo() repository.UserRepository {
	return NewUserRepository(f.store)
}

func (f *repositoryFactory) CredentialRepo() repository.CredentialRepository {
	return NewCredentialRepository(f.store)
}

func (f *repositoryFactory) SessionRepo() repository.SessionRepository {
	return NewSessionRepository(f.store)
}
