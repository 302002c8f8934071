package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// RateLimitKey is the fixed-window counter for one project's ingest traffic.
func RateLimitKey(projectID uuid.UUID) string {
	return fmt.Sprintf("ratelimit:%s", projectID)
}

// ProjectByAPIKeyKey caches the project resolved from an API key. The raw key
// never appears in Redis; only its SHA-256 digest does.
func ProjectByAPIKeyKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return fmt.Sprintf("apikey:project:%s", hex.EncodeToString(sum[:]))
}
