package common

import (
	"crypto/rand"
	"encoding/base64"
)

func GenerateSecret(n int) (string, error) {
	// each 3 bytes → 4 Base64 chars
	rawSize := (n*3 + 3) / 4
	raw := make([]byte, rawSize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)
	return secret[:n], nil
}

// MustGenerateSecret panics when the system entropy source fails.
func MustGenerateSecret(n int) string {
	secret, err := GenerateSecret(n)
	if err != nil {
		panic(err)
	}
	return secret
}
