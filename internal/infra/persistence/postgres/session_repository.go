package postgres

import (
	"context"
	"time"

	"gatehouse/internal/domain/entity"
	domainerrors "gatehouse/internal/domain/errors"
	"gatehouse/internal/domain/repository"
	"gatehouse/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// sessionRepository implements the domain.SessionRepository interface using GORM.
type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository is the constructor for sessionRepository.
func NewSessionRepository(db *gorm.DB) repository.SessionRepository {
	return &sessionRepository{db: db}
}

// Create persists a new session, representing one signed-in device.
func (repo *sessionRepository) Create(ctx context.Context, session *entity.Session) error {
	sessionM := fromSessionDomain(session)

	if err := repo.db.WithContext(ctx).Create(sessionM).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			// 256-bit tokens never collide in practice; a hit means the
			// same token was stored twice.
			return errors.Wrap(err, "session token already exists")
		}
		if isForeignKeyConstraintViolation(err) {
			return errors.Wrap(err, "invalid user reference")
		}

		return domainerrors.NewStorageUnavailableError(err, "failed to create session")
	}

	session.ID = sessionM.ID
	session.CreatedAt = sessionM.CreatedAt

	return nil
}

// FindByTokenHash retrieves a session record by its securely stored hash.
// Expiry is the caller's concern; the record is returned as stored.
func (repo *sessionRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*entity.Session, error) {
	var sessionM model.SessionModel
	err := repo.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		First(&sessionM).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSessionNotFound
		}

		return nil, domainerrors.NewStorageUnavailableError(err, "failed to find session by token hash")
	}

	return toSessionDomain(&sessionM), nil
}

// FindByID retrieves a session record by its unique ID.
func (repo *sessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	var sessionM model.SessionModel
	err := repo.db.WithContext(ctx).
		Where("id = ?", id).
		First(&sessionM).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSessionNotFound
		}

		return nil, domainerrors.NewStorageUnavailableError(err, "failed to find session by id")
	}

	return toSessionDomain(&sessionM), nil
}

// FindByUserID retrieves all sessions for a specific user, newest first.
func (repo *sessionRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.Session, error) {
	var sessionModels []model.SessionModel
	err := repo.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&sessionModels).Error

	if err != nil {
		return nil, domainerrors.NewStorageUnavailableError(err, "failed to find sessions by user id")
	}

	sessions := make([]*entity.Session, 0, len(sessionModels))
	for i := range sessionModels {
		sessions = append(sessions, toSessionDomain(&sessionModels[i]))
	}

	return sessions, nil
}

// ExtendExpiry updates the expiry and last-used columns of a session.
func (repo *sessionRepository) ExtendExpiry(ctx context.Context, id uuid.UUID, session *entity.Session) error {
	result := repo.db.WithContext(ctx).
		Model(&model.SessionModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"expires_at":   session.ExpiresAt,
			"last_used_at": session.LastUsedAt,
		})

	if result.Error != nil {
		return domainerrors.NewStorageUnavailableError(result.Error, "failed to extend session expiry")
	}
	if result.RowsAffected == 0 {
		return repository.ErrSessionNotFound
	}

	return nil
}

// Delete removes a session by its ID, effectively ending that sign-in.
func (repo *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := repo.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&model.SessionModel{})

	if result.Error != nil {
		return domainerrors.NewStorageUnavailableError(result.Error, "failed to delete session")
	}

	// If no rows were affected, it means the session was not found.
	if result.RowsAffected == 0 {
		return repository.ErrSessionNotFound
	}

	return nil
}

// DeleteByTokenHash deletes a session by its token hash.
func (repo *sessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	result := repo.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		Delete(&model.SessionModel{})

	if result.Error != nil {
		return domainerrors.NewStorageUnavailableError(result.Error, "failed to delete session by token hash")
	}

	if result.RowsAffected == 0 {
		return repository.ErrSessionNotFound
	}

	return nil
}

// DeleteByUserID removes all sessions for a specific user.
func (repo *sessionRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	if err := repo.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.SessionModel{}).Error; err != nil {
		return domainerrors.NewStorageUnavailableError(err, "failed to delete sessions by user id")
	}

	return nil
}

// DeleteExpired removes all expired sessions and reports how many were deleted.
func (repo *sessionRepository) DeleteExpired(ctx context.Context) (int, error) {
	result := repo.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&model.SessionModel{})

	if result.Error != nil {
		return 0, domainerrors.NewStorageUnavailableError(result.Error, "failed to delete expired sessions")
	}

	return int(result.RowsAffected), nil
}

// CountActiveByUserID returns the number of active (non-expired) sessions for a user.
func (repo *sessionRepository) CountActiveByUserID(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int64
	err := repo.db.WithContext(ctx).
		Model(&model.SessionModel{}).
		Where("user_id = ? AND expires_at > ?", userID, time.Now()).
		Count(&count).Error

	if err != nil {
		return 0, domainerrors.NewStorageUnavailableError(err, "failed to count active sessions")
	}

	return int(count), nil
}

// --- Mapper Functions ---

// toSessionDomain converts a GORM SessionModel to a domain Session entity.
func toSessionDomain(data *model.SessionModel) *entity.Session {
	if data == nil {
		return nil
	}

	return &entity.Session{
		ID:         data.ID,
		UserID:     data.UserID,
		TokenHash:  data.TokenHash,
		ExpiresAt:  data.ExpiresAt,
		LastUsedAt: data.LastUsedAt,
		CreatedAt:  data.CreatedAt,
	}
}

// fromSessionDomain converts a domain Session entity to a GORM SessionModel.
func fromSessionDomain(data *entity.Session) *model.SessionModel {
	if data == nil {
		return nil
	}

	return &model.SessionModel{
		ID:         data.ID,
		UserID:     data.UserID,
		TokenHash:  data.TokenHash,
		ExpiresAt:  data.ExpiresAt,
		LastUsedAt: data.LastUsedAt,
		CreatedAt:  data.CreatedAt,
	}
}
