package utils

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// RandomURLToken returns n random bytes, base64url encoded without padding so the
// result can be put in a query string as is. It backs the OAuth state parameter.
func RandomURLToken(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("token length must be positive")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
