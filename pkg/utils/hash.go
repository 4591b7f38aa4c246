package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashString returns a stable hex digest of input, used as the cache key
// for embedding lookups so arbitrary query text never appears in key space.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
