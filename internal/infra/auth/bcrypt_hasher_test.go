package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"gatehouse/config"
)

func TestBcryptHasher_Hash(t *testing.T) {
	hasher := NewBcryptHasherWithCost(bcrypt.MinCost)

	password := "correct horse battery"
	hash, err := hasher.Hash(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, password, hash)

	// Verify the hash can be checked
	assert.True(t, hasher.Check(password, hash))
}

func TestBcryptHasher_Check(t *testing.T) {
	hasher := NewBcryptHasherWithCost(bcrypt.MinCost)
	password := "correct horse battery"

	hash, err := hasher.Hash(password)
	assert.NoError(t, err)

	// Test correct password
	assert.True(t, hasher.Check(password, hash))

	// Test incorrect password
	assert.False(t, hasher.Check("wrong horse battery", hash))

	// Test empty password
	assert.False(t, hasher.Check("", hash))

	// Test with invalid hash
	assert.False(t, hasher.Check(password, "invalid_hash"))
}

func TestBcryptHasher_WithCustomCost(t *testing.T) {
	customCost := 6 // Lower cost for faster testing
	hasher := NewBcryptHasherWithCost(customCost)

	password := "correct horse battery"
	hash, err := hasher.Hash(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hash)

	// Verify the hash uses the correct cost
	cost, err := bcrypt.Cost([]byte(hash))
	assert.NoError(t, err)
	assert.Equal(t, customCost, cost)

	// Verify the hash can be checked
	assert.True(t, hasher.Check(password, hash))
}

func TestBcryptHasher_ValidatePasswordStrength(t *testing.T) {
	hasher := NewBcryptHasherWithCost(bcrypt.MinCost)

	// Exactly at the default minimum length
	assert.NoError(t, hasher.ValidatePasswordStrength("12345678"))
	assert.NoError(t, hasher.ValidatePasswordStrength("a perfectly fine passphrase"))

	// One short of the minimum
	err := hasher.ValidatePasswordStrength("1234567")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "at least 8 characters")

	// Empty password
	err = hasher.ValidatePasswordStrength("")
	assert.Error(t, err)

	// Beyond what bcrypt hashes without truncation
	err = hasher.ValidatePasswordStrength(strings.Repeat("x", 73))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "72 bytes")
}

func TestBcryptHasher_ConfiguredMinLength(t *testing.T) {
	cfg := &config.Config{
		Auth: &config.AuthConfig{
			BcryptCost:        bcrypt.MinCost,
			MinPasswordLength: 12,
		},
	}
	hasher := NewBcryptHasher(cfg)

	assert.Error(t, hasher.ValidatePasswordStrength("elevenchars"))
	assert.NoError(t, hasher.ValidatePasswordStrength("twelve chars"))
}
