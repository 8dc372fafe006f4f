package utils

import (
	"crypto/sha256"
	"encoding/base64"
)

// HashToken returns the URL-safe base64 SHA-256 digest of raw.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
