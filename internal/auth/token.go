package auth

import (
	"crypto/rand"
	"encoding/base64"
)

// NewURLToken returns n random bytes as a URL-safe string. Used for the
// unguessable payment links mailed to auction winners.
func NewURLToken(n int) (string, error) {
	if n <= 0 {
		n = 32
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
