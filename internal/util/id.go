package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewToken returns a random URL-safe hex string, used for session tokens.
func NewToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
