// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"
	"errors"

	"gatehouse/internal/domain/entity"

	"github.com/google/uuid"
)

// ErrCredentialNotFound is returned when no credential exists for a lookup.
// Callers translate it to the generic invalid-credential error before it
// reaches a client.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialRepository defines the operations for credential persistence.
// Credentials are the only place a password hash is ever stored or read.
type CredentialRepository interface {
	// Create persists a new credential for a user.
	Create(ctx context.Context, cred *entity.Credential) error

	// FindByUserID retrieves the credential belonging to a user.
	FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.Credential, error)

	// FindByEmail retrieves the credential for the user registered under the
	// given email address.
	FindByEmail(ctx context.Context, email string) (*entity.Credential, error)
}
