// Package cryptox stretches account passwords. The server stores only the
// verifier of the stretched key, never the password or the key itself.
package cryptox

import (
	"crypto/sha256"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters; changing them invalidates every stored verifier.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	keyLen       = 32
)

// MakeVerifier returns the value stored for a master key.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, keyLen)
}
