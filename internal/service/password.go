package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/theluxar/auth-service/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher wraps bcrypt with a configured cost factor. It hashes login
// passwords and fingerprints refresh tokens before storage, so a leaked
// database row cannot be replayed without brute-forcing the hash.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher builds a hasher. Costs outside bcrypt's valid range fall
// back to the library default.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash produces a self-salted one-way hash of plaintext.
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash data: %w", err)
	}
	return string(hash), nil
}

// Verify compares plaintext against a stored hash. It never panics or
// returns an error: a malformed hash is logged and reported as a mismatch.
func (h *PasswordHasher) Verify(plaintext, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil && err != bcrypt.ErrMismatchedHashAndPassword {
		logger.GetLogger().Warn("Password comparison failed on malformed hash")
		return false
	}
	return err == nil
}

// FingerprintToken hashes an opaque token (a JWT, typically a few hundred
// bytes) for storage. bcrypt rejects inputs over 72 bytes, so the token is
// digested with SHA-256 first; the whole token contributes to the
// fingerprint, never just a prefix.
func (h *PasswordHasher) FingerprintToken(token string) (string, error) {
	return h.Hash(digestToken(token))
}

// VerifyToken compares a token against a fingerprint produced by
// FingerprintToken.
func (h *PasswordHasher) VerifyToken(token, fingerprint string) bool {
	return h.Verify(digestToken(token), fingerprint)
}

func digestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
