package webutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateHash creates a SHA-256 hash of the input string and returns it
// as a hexadecimal string (64 characters).
func GenerateHash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// DedupeKey derives the stable identity key for a physically received
// email. Two deliveries of the same email (same source, subject, and
// content) always map to the same key.
func DedupeKey(parts ...string) string {
	return GenerateHash(strings.Join(parts, "\x1f"))
}
