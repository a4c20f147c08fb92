package adaptive

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// SaltLength is the length of salts produced by NewSalt.
const SaltLength = 16

// KeyLength is the length of keys produced by DeriveKey.
const KeyLength = 32

// KDF holds argon2id cost parameters.
type KDF struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"` // KiB
	Threads uint8  `json:"threads"`
}

// DefaultKDF is the cost used for new snapshot files.
var DefaultKDF = KDF{Time: 3, Memory: 64 * 1024, Threads: 4}

// NewSalt returns SaltLength random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("adaptive: salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a KeyLength-byte key from passphrase and salt with
// argon2id.
func DeriveKey(passphrase, salt []byte, p KDF) []byte {
	return argon2.IDKey(passphrase, salt, p.Time, p.Memory, p.Threads, KeyLength)
}
