package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/hmac"   // constant-time comparison for CSRF tokens
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA-256 hashing for identifiers stored at rest
	"encoding/hex"  // hex encoding functions
)

// NewOpaqueToken returns a hex-encoded string generated from n bytes of
// cryptographically secure random data. Session identifiers and CSRF
// tokens are produced this way: they carry no structure, encode no
// timestamp, and cannot be derived from anything an attacker can
// observe. If the random number generator fails, an error is returned.
func NewOpaqueToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashSHA256 returns the SHA-256 hash of a value as a hex string. The
// audit trail stores client IPs and similar identifiers only in this
// form so that raw values never land in a durable record.
func HashSHA256(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEqual compares two tokens without leaking timing
// information about where they diverge.
func ConstantTimeEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
