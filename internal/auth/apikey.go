package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyPrefix starts every project API key.
	APIKeyPrefix = "err_"
	// LookupPrefixLen is how much of a raw key is stored in clear for lookup.
	LookupPrefixLen = len(APIKeyPrefix) + 8

	apiKeyRandomBytes = 32
)

// APIKey is a freshly generated project key. Raw is shown to the operator
// once; only Prefix and Hash are persisted.
type APIKey struct {
	Raw    string
	Prefix string
	Hash   string
}

// GenerateAPIKey creates a random "err_<64 hex>" key hashed with the given bcrypt cost.
func GenerateAPIKey(cost int) (*APIKey, error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	raw := APIKeyPrefix + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return nil, fmt.Errorf("hash api key: %w", err)
	}
	return &APIKey{Raw: raw, Prefix: raw[:LookupPrefixLen], Hash: string(hash)}, nil
}

// LookupPrefix returns the stored lookup prefix of a presented key, or false
// when the key cannot be one of ours.
func LookupPrefix(raw string) (string, bool) {
	if !strings.HasPrefix(raw, APIKeyPrefix) || len(raw) < LookupPrefixLen {
		return "", false
	}
	return raw[:LookupPrefixLen], true
}

// VerifyAPIKey reports whether raw matches the stored bcrypt hash.
func VerifyAPIKey(hash, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
