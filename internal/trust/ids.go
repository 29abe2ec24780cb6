package trust

import (
	"crypto/rand"
	"encoding/hex"
)

// Entropy sizes for opaque identifiers. 32 random bytes make session id
// collisions negligible in practice; tab ids are shorter because they only
// disambiguate tabs within one session.
const (
	sessionIDBytes = 32
	tabIDBytes     = 16
)

// NewSessionID returns a cryptographically random, hex-encoded session
// identifier (64 hex chars).
func NewSessionID() (string, error) {
	return randomHex(sessionIDBytes)
}

// NewTabID returns a cryptographically random, hex-encoded tab-scoped
// identifier (32 hex chars).
func NewTabID() (string, error) {
	return randomHex(tabIDBytes)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
