package leads

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Scrape kinds included in the cache key. The kind tag is always part of the
// key so listing scrapes and content scrapes for the same topic never
// collide.
const (
	KindListing = "listing"
	KindContent = "content"
)

const keySeparator = "|"

// CacheKey returns the content-addressed key for a scrape target: SHA-256
// hex of the normalized (kind, topic, country, state, city) tuple. Identical
// targets across tenants map to the same key, which is what lets one paid
// scrape serve every business asking for it.
func CacheKey(kind, topic, country, state, city string) string {
	parts := []string{kind, topic, country, state, city}
	for i, p := range parts {
		parts[i] = normalizeKeyPart(p)
	}
	h := sha256.Sum256([]byte(strings.Join(parts, keySeparator)))
	return fmt.Sprintf("%x", h)
}

// normalizeKeyPart lowercases, trims, and strips the separator so no input
// can forge a different tuple with the same joined form.
func normalizeKeyPart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, keySeparator, "")
}
