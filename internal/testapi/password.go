package testapi

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/argon2"
)

// Cheap argon2id parameters. The stub hashes on every login and signup.
const (
	argonMemoryKB uint32 = 8 * 1024
	argonTime     uint32 = 1
	argonThreads  uint8  = 1
	argonSaltLen         = 16
	argonKeyLen   uint32 = 32
)

var errEmptyPassword = errors.New("testapi: empty password")

type passwordHash struct {
	salt []byte
	key  []byte
}

func hashPassword(password string) (passwordHash, error) {
	if password == "" {
		return passwordHash{}, errEmptyPassword
	}
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return passwordHash{}, err
	}
	return passwordHash{salt: salt, key: deriveKey(password, salt)}, nil
}

func (h passwordHash) matches(password string) bool {
	if len(h.key) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(deriveKey(password, h.salt), h.key) == 1
}

func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemoryKB, argonThreads, argonKeyLen)
}
