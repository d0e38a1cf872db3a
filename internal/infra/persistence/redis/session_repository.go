package redis

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"gatehouse/internal/domain/entity"
	domainerrors "gatehouse/internal/domain/errors"
	"gatehouse/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:id:"
	tokenKeyPrefix   = "session:hash:"
	userKeyPrefix    = "session:user:"
)

// sessionRecord is the JSON document stored per session.
type sessionRecord struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	TokenHash  string    `json:"token_hash"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// sessionRepository implements the domain.SessionRepository interface on
// Redis. Each session is stored twice: a JSON record under its ID and a
// pointer under its token hash, both expiring with the session. A per-user
// set supports multi-device listing.
type sessionRepository struct {
	rdb *redis.Client
}

// NewSessionRepository is the constructor for the Redis-backed sessionRepository.
func NewSessionRepository(rdb *redis.Client) repository.SessionRepository {
	return &sessionRepository{rdb: rdb}
}

func sessionKey(id uuid.UUID) string { return sessionKeyPrefix + id.String() }
func tokenKey(hash string) string    { return tokenKeyPrefix + hash }
func userKey(userID uuid.UUID) string { return userKeyPrefix + userID.String() }

// Create stores the session record, its token-hash pointer and the per-user
// set membership in one pipeline.
func (repo *sessionRepository) Create(ctx context.Context, session *entity.Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(fromSessionDomain(session))
	if err != nil {
		return errors.Wrap(err, "failed to marshal session record")
	}

	pipe := repo.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), payload, 0)
	pipe.ExpireAt(ctx, sessionKey(session.ID), session.ExpiresAt)
	pipe.Set(ctx, tokenKey(session.TokenHash), session.ID.String(), 0)
	pipe.ExpireAt(ctx, tokenKey(session.TokenHash), session.ExpiresAt)
	pipe.SAdd(ctx, userKey(session.UserID), session.ID.String())

	if _, err := pipe.Exec(ctx); err != nil {
		return domainerrors.NewStorageUnavailableError(err, "failed to store session")
	}

	return nil
}

// FindByTokenHash resolves the token-hash pointer, then loads the record.
func (repo *sessionRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*entity.Session, error) {
	idStr, err := repo.rdb.Get(ctx, tokenKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrSessionNotFound
		}

		return nil, domainerrors.NewStorageUnavailableError(err, "failed to resolve session token")
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, errors.Wrap(err, "corrupt session pointer")
	}

	return repo.FindByID(ctx, id)
}

// FindByID loads a session record by its ID.
func (repo *sessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	data, err := repo.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrSessionNotFound
		}

		return nil, domainerrors.NewStorageUnavailableError(err, "failed to load session")
	}

	var record sessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal session record")
	}

	return toSessionDomain(&record), nil
}

// FindByUserID loads all live sessions of a user, newest first. Set members
// whose record has expired are pruned along the way.
func (repo *sessionRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.Session, error) {
	members, err := repo.rdb.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, domainerrors.NewStorageUnavailableError(err, "failed to list user sessions")
	}

	sessions := make([]*entity.Session, 0, len(members))
	var stale []any
	for _, member := range members {
		id, err := uuid.Parse(member)
		if err != nil {
			stale = append(stale, member)

			continue
		}

		session, err := repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				stale = append(stale, member)

				continue
			}

			return nil, err
		}
		sessions = append(sessions, session)
	}

	if len(stale) > 0 {
		// Best effort, the set self-heals on the next listing otherwise.
		repo.rdb.SRem(ctx, userKey(userID), stale...)
	}

	sortSessionsNewestFirst(sessions)

	return sessions, nil
}

// ExtendExpiry rewrites the record and pushes both key TTLs out.
func (repo *sessionRepository) ExtendExpiry(ctx context.Context, id uuid.UUID, session *entity.Session) error {
	current, err := repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	current.ExpiresAt = session.ExpiresAt
	current.LastUsedAt = session.LastUsedAt

	payload, err := json.Marshal(fromSessionDomain(current))
	if err != nil {
		return errors.Wrap(err, "failed to marshal session record")
	}

	pipe := repo.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(id), payload, 0)
	pipe.ExpireAt(ctx, sessionKey(id), current.ExpiresAt)
	pipe.ExpireAt(ctx, tokenKey(current.TokenHash), current.ExpiresAt)

	if _, err := pipe.Exec(ctx); err != nil {
		return domainerrors.NewStorageUnavailableError(err, "failed to extend session expiry")
	}

	return nil
}

// Delete removes a session and its indexes.
func (repo *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	session, err := repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	return repo.deleteSession(ctx, session)
}

// DeleteByTokenHash removes the session that the token hash points to.
func (repo *sessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	session, err := repo.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return err
	}

	return repo.deleteSession(ctx, session)
}

// DeleteByUserID removes every session of a user.
func (repo *sessionRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	sessions, err := repo.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}

	for _, session := range sessions {
		if err := repo.deleteSession(ctx, session); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			return err
		}
	}

	return nil
}

// DeleteExpired is mostly a no-op on Redis since key TTLs reap expired
// sessions. It prunes stale per-user set members left behind by that reaping.
func (repo *sessionRepository) DeleteExpired(ctx context.Context) (int, error) {
	pruned := 0
	iter := repo.rdb.Scan(ctx, 0, userKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		members, err := repo.rdb.SMembers(ctx, key).Result()
		if err != nil {
			return pruned, domainerrors.NewStorageUnavailableError(err, "failed to scan user sessions")
		}

		for _, member := range members {
			exists, err := repo.rdb.Exists(ctx, sessionKeyPrefix+member).Result()
			if err != nil {
				return pruned, domainerrors.NewStorageUnavailableError(err, "failed to check session existence")
			}
			if exists == 0 {
				if err := repo.rdb.SRem(ctx, key, member).Err(); err == nil {
					pruned++
				}
			}
		}
	}
	if err := iter.Err(); err != nil {
		return pruned, domainerrors.NewStorageUnavailableError(err, "failed to scan session keys")
	}

	return pruned, nil
}

// CountActiveByUserID counts the user's live sessions.
func (repo *sessionRepository) CountActiveByUserID(ctx context.Context, userID uuid.UUID) (int, error) {
	sessions, err := repo.FindByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}

	return len(sessions), nil
}

func (repo *sessionRepository) deleteSession(ctx context.Context, session *entity.Session) error {
	pipe := repo.rdb.TxPipeline()
	pipe.Del(ctx, sessionKey(session.ID))
	pipe.Del(ctx, tokenKey(session.TokenHash))
	pipe.SRem(ctx, userKey(session.UserID), session.ID.String())

	if _, err := pipe.Exec(ctx); err != nil {
		return domainerrors.NewStorageUnavailableError(err, "failed to delete session")
	}

	return nil
}

func sortSessionsNewestFirst(sessions []*entity.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}

// --- Mapper Functions ---

func toSessionDomain(data *sessionRecord) *entity.Session {
	return &entity.Session{
		ID:         data.ID,
		UserID:     data.UserID,
		TokenHash:  data.TokenHash,
		ExpiresAt:  data.ExpiresAt,
		LastUsedAt: data.LastUsedAt,
		CreatedAt:  data.CreatedAt,
	}
}

func fromSessionDomain(data *entity.Session) *sessionRecord {
	return &sessionRecord{
		ID:         data.ID,
		UserID:     data.UserID,
		TokenHash:  data.TokenHash,
		ExpiresAt:  data.ExpiresAt,
		LastUsedAt: data.LastUsedAt,
		CreatedAt:  data.CreatedAt,
	}
}
