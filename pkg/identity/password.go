package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const passwordAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789!@#$%"

// TemporaryPasswordLength is the length of generated temporary passwords
const TemporaryPasswordLength = 12

// GenerateTemporaryPassword returns a random password for identities created on
// someone else's behalf. The user replaces it through the invitation flow.
func GenerateTemporaryPassword(length int) (string, error) {
	if length < 8 {
		return "", fmt.Errorf("password length must be at least 8, got %d", length)
	}

	max := big.NewInt(int64(len(passwordAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		buf[i] = passwordAlphabet[n.Int64()]
	}
	return string(buf), nil
}
