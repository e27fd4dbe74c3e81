package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// resetSecretBytes gives reset secrets 256 bits of entropy.
const resetSecretBytes = 32

// NewResetSecret returns a random URL-safe reset secret and the hash to
// persist. Only the hash may be stored; the plaintext goes to the user.
func NewResetSecret() (plain, hash string, err error) {
	buf := make([]byte, resetSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate reset secret: %w", err)
	}
	plain = hex.EncodeToString(buf)
	return plain, HashResetSecret(plain), nil
}

// HashResetSecret is a fast deterministic hash. The secret is high entropy,
// so no salt or work factor is needed.
func HashResetSecret(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
