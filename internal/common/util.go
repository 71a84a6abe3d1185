package common

import (
	"crypto/rand"
)

// GenerateRandByteArray returns size random bytes; it panics only if the
// system random source fails.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}
