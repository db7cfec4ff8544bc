package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

const secretBytes = 32

// Secret is a single-use token. Only Digest and ExpiresAt are persisted;
// Raw travels in the emailed link.
type Secret struct {
	Raw       string
	Digest    string
	ExpiresAt time.Time
}

// SecretHasher generates and checks verification and password reset secrets.
type SecretHasher struct {
	now func() time.Time
}

// NewSecretHasher returns a hasher using the wall clock.
func NewSecretHasher() *SecretHasher {
	return &SecretHasher{now: time.Now}
}

// Generate creates a random secret valid for window.
func (h *SecretHasher) Generate(window time.Duration) (Secret, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return Secret{}, fmt.Errorf("generate secret: %w", err)
	}
	raw := hex.EncodeToString(buf)
	return Secret{
		Raw:       raw,
		Digest:    h.Digest(raw),
		ExpiresAt: h.now().Add(window),
	}, nil
}

// Digest returns the hex SHA-256 of raw.
func (h *SecretHasher) Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether raw hashes to storedDigest and now is before storedExpiry.
// The digest comparison is constant time.
func (h *SecretHasher) Matches(raw, storedDigest string, storedExpiry *time.Time, now time.Time) bool {
	if storedDigest == "" || storedExpiry == nil {
		return false
	}
	computed := h.Digest(raw)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(storedDigest)) != 1 {
		return false
	}
	return now.Before(*storedExpiry)
}
