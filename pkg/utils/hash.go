package utils

import (
	"crypto/sha256"
	"fmt"
)

// HashKey returns a short hex digest suitable for cache keys.
func HashKey(input string) string {
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", sum)[:32]
}
