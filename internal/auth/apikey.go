// Package auth provides the API key primitives used by the email service:
// generation of the plaintext key material, the one-way hash that is stored in
// place of the key, and extraction of a presented key from a request header.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/mickBoat00/email-service/pkg/checksum"
)

const (
	// APIKeyLength is the number of random bytes in a key (256 bits)
	APIKeyLength = 32

	// HeaderName is the request header a sending client presents its key in
	HeaderName = "x-api-key"
)

// ErrMissingKey is returned when no key was presented.
var ErrMissingKey = errors.New("API key is missing")

// GenerateKey creates new random key material, URL-safe base64 encoded without padding.
// The plaintext is returned to the caller exactly once and must never be persisted.
func GenerateKey() (string, error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// HashKey returns the stored form of a key: hex SHA-256, deterministic so a
// presented key can be looked up by its hash.
func HashKey(key string) string {
	return checksum.SHA256Hex([]byte(key))
}

// MatchesHash reports whether key hashes to storedHash.
func MatchesHash(key, storedHash string) bool {
	return checksum.Equal(HashKey(key), storedHash)
}

// ExtractKey returns the trimmed key from an x-api-key header value.
func ExtractKey(header string) (string, error) {
	key := strings.TrimSpace(header)
	if key == "" {
		return "", ErrMissingKey
	}
	return key, nil
}
