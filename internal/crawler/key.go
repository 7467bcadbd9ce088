package crawler

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// ProductKey derives the stable persistence identity of a product from the
// lowercased origin+path of its source URL and its title. Query strings and
// fragments are ignored so that paginated listings map to the same product.
func ProductKey(sourceURL, title string) string {
	base := strings.ToLower(sourceURL)
	if u, err := url.Parse(sourceURL); err == nil && u.Host != "" {
		base = strings.ToLower(u.Scheme + "://" + u.Host + u.Path)
	}
	sum := sha256.Sum256([]byte(base + ":" + title))
	return hex.EncodeToString(sum[:])
}

// RecordID returns the truncated content hash used as the ID of records
// derived from structured data.
func RecordID(name, sourceURL string) string {
	sum := sha256.Sum256([]byte(name + sourceURL))
	return hex.EncodeToString(sum[:])[:16]
}
