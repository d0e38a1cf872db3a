// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// User is the core entity in the system, representing a registered principal.
// It carries identity data only; sign-in material lives in Credential so the
// password hash never travels with the user.
type User struct {
	ID        uuid.UUID // The unique identifier for the user.
	Email     string    // The user's primary contact email, used as the login identifier. Unique across all users.
	Name      string    // The user's display name.
	CreatedAt time.Time // Timestamp of when this user account was created.
	UpdatedAt time.Time // Timestamp of the last modification to this user's data.
}

// Credential represents the stored email/password sign-in material for a user.
// The plaintext password exists only for the duration of a single hash or
// verification call and is never persisted or logged.
type Credential struct {
	ID           uuid.UUID // The unique ID for this credential record.
	UserID       uuid.UUID // Links this credential to the User it belongs to.
	PasswordHash string    // The bcrypt-hashed password. Never leaves the identity store.
	CreatedAt    time.Time // Timestamp of when this credential was created.
	UpdatedAt    time.Time // Timestamp of the last password change.
}
