package service

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasherHashAndVerify(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	tests := []struct {
		name     string
		password string
	}{
		{name: "Simple password", password: "hunter2hunter2"},
		{name: "Password with symbols", password: "p@ssw0rd!#%&"},
		{name: "Unicode password", password: "pässwörd123"},
		{name: "Long password", password: strings.Repeat("a1", 30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := hasher.Hash(tt.password)
			if err != nil {
				t.Fatalf("Hash returned error: %v", err)
			}

			if hash == tt.password {
				t.Error("Expected hash to differ from plaintext")
			}

			if !hasher.Verify(tt.password, hash) {
				t.Error("Expected hash to verify against original password")
			}

			if hasher.Verify(tt.password+"x", hash) {
				t.Error("Expected verification to fail for wrong password")
			}
		})
	}
}

func TestPasswordHasherDistinctHashes(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	first, err := hasher.Hash("same-password-1")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	second, err := hasher.Hash("same-password-1")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	// bcrypt salts per call, so equal inputs never share a hash.
	if first == second {
		t.Error("Expected two hashes of the same password to differ")
	}
}

func TestPasswordHasherVerifyMalformedHash(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	if hasher.Verify("whatever", "not-a-bcrypt-hash") {
		t.Error("Expected verification against malformed hash to fail")
	}
	if hasher.Verify("whatever", "") {
		t.Error("Expected verification against empty hash to fail")
	}
}

// Refresh tokens are JWTs of a few hundred bytes, well past bcrypt's
// 72-byte input limit; fingerprinting must handle them whole.
func TestPasswordHasherFingerprintLongToken(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	token := strings.Repeat("header.payload.signature", 12) // ~288 bytes

	fingerprint, err := hasher.FingerprintToken(token)
	if err != nil {
		t.Fatalf("FingerprintToken returned error: %v", err)
	}
	if !hasher.VerifyToken(token, fingerprint) {
		t.Error("Expected fingerprint to verify against the original token")
	}
	if hasher.VerifyToken(token+"x", fingerprint) {
		t.Error("Expected verification to fail for a different token")
	}
}

// Two tokens sharing their first 72 bytes must still produce distinct
// fingerprints; the digest covers the whole token, not a truncation.
func TestPasswordHasherFingerprintSharedPrefix(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	prefix := strings.Repeat("a", 100)
	first := prefix + ".one"
	second := prefix + ".two"

	fingerprint, err := hasher.FingerprintToken(first)
	if err != nil {
		t.Fatalf("FingerprintToken returned error: %v", err)
	}
	if hasher.VerifyToken(second, fingerprint) {
		t.Error("Expected token with shared prefix to be rejected")
	}
}

func TestPasswordHasherCostClamping(t *testing.T) {
	tests := []struct {
		name string
		cost int
	}{
		{name: "Below minimum", cost: -1},
		{name: "Above maximum", cost: 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hasher := NewPasswordHasher(tt.cost)

			hash, err := hasher.Hash("clamped-cost-pw1")
			if err != nil {
				t.Fatalf("Hash returned error: %v", err)
			}
			if !hasher.Verify("clamped-cost-pw1", hash) {
				t.Error("Expected hash to verify")
			}
		})
	}
}
