package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// SecretTokenBytes is the entropy of reset and verify tokens.
const SecretTokenBytes = 32

// NewSecretToken returns 32 random bytes hex-encoded.
func NewSecretToken() (string, error) {
	var raw [SecretTokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// HashToken returns the hex SHA-256 digest of token. Only digests are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// EqualHash compares two hex digests in constant time. Empty values never
// match.
func EqualHash(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ValidSecretToken reports whether s looks like a token from NewSecretToken.
func ValidSecretToken(s string) error {
	if len(s) != 2*SecretTokenBytes {
		return errors.New("invalid token length")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return errors.New("invalid token encoding")
	}
	return nil
}
