// Package auth guards the email intake API with a static bearer key whose
// bcrypt hash is kept in configuration.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	apiKeyBytes = 32
	bcryptCost  = 12
)

// ErrInvalidKey is returned when a presented key does not match the hash.
var ErrInvalidKey = errors.New("auth: invalid API key")

// GenerateAPIKey generates a cryptographically secure API key.
// The key is 32 random bytes, hex-encoded to 64 characters.
func GenerateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate API key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashAPIKey hashes key with bcrypt for storage in configuration.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash API key: %w", err)
	}
	return string(hash), nil
}

// KeyVerifier checks presented keys against one bcrypt hash. The digest of
// the last accepted key is remembered so repeat requests skip bcrypt.
type KeyVerifier struct {
	hash []byte

	mu       sync.RWMutex
	accepted []byte
}

// NewKeyVerifier creates a KeyVerifier for a bcrypt hash.
func NewKeyVerifier(hash string) (*KeyVerifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("parse API key hash: %w", err)
	}
	return &KeyVerifier{hash: []byte(hash)}, nil
}

// Verify returns nil when key matches the configured hash.
func (v *KeyVerifier) Verify(key string) error {
	digest := sha256.Sum256([]byte(key))

	v.mu.RLock()
	cached := v.accepted
	v.mu.RUnlock()
	if cached != nil && subtle.ConstantTimeCompare(cached, digest[:]) == 1 {
		return nil
	}

	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(key)); err != nil {
		return ErrInvalidKey
	}

	v.mu.Lock()
	v.accepted = digest[:]
	v.mu.Unlock()
	return nil
}
