package util

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const (
	tokenBytes   = 32
	guestIDBytes = 8
	guestPrefix  = "guest_"
)

func GenerateToken() (string, error) {
	return randomHex(tokenBytes)
}

// GenerateGuestID returns an opaque per-connection guest id of the form
// guest_<16 hex>.
func GenerateGuestID() (string, error) {
	suffix, err := randomHex(guestIDBytes)
	if err != nil {
		return "", err
	}
	return guestPrefix + suffix, nil
}

func randomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// TokenFingerprint is a short, non-reversible label for a credential, safe to
// put in logs.
func TokenFingerprint(token string) string {
	return HashToken(token)[:12]
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
