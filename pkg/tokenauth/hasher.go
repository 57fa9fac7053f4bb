package tokenauth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is slow enough to resist offline brute force, fast enough
// for one hash per request.
const bcryptCost = 10

// Hash returns the bcrypt hash of the full raw token string, not just the
// secret half.
func Hash(raw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(raw), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("tokenauth: hashing token: %w", err)
	}
	return string(h), nil
}

// Verify reports whether raw matches hash, in constant time relative to the
// hash comparison (bcrypt's CompareHashAndPassword is itself constant-time
// over the hash digest).
func Verify(hash, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
