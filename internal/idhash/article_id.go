package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ComputeArticleID computes a deterministic article ID using SHA256 of the
// normalized URL. Normalization: lowercase, trim whitespace, drop a trailing
// slash, strip the scheme. Returns hex-encoded hash (64 characters).
func ComputeArticleID(url string) string {
	n := NormalizeURL(url)
	hash := sha256.Sum256([]byte(n))
	return hex.EncodeToString(hash[:])
}

// NormalizeURL canonicalizes a URL for identity purposes so that trivial
// variants (scheme, case, trailing slash) hash to the same article.
func NormalizeURL(url string) string {
	n := strings.ToLower(strings.TrimSpace(url))
	n = strings.TrimPrefix(n, "https://")
	n = strings.TrimPrefix(n, "http://")
	n = strings.TrimPrefix(n, "www.")
	n = strings.TrimSuffix(n, "/")
	return n
}
