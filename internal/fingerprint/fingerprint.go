package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Normalize cleans each part and joins them with newlines. Parts are
// lowercased, trimmed and have CRLF line endings converted to LF, so
// cosmetic edits do not change the result.
func Normalize(parts ...string) string {
	cleaned := make([]string, len(parts))
	for i, part := range parts {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		cleaned[i] = p
	}
	// The newline keeps ("ab", "c") and ("a", "bc") apart.
	return strings.Join(cleaned, "\n")
}

// Hash returns the SHA-256 of the normalized parts as a hex string.
func Hash(parts ...string) string {
	sum := sha256.Sum256([]byte(Normalize(parts...)))
	return fmt.Sprintf("%x", sum)
}
