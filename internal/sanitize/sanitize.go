// Package sanitize turns arbitrary names, such as directory names, into
// valid collection names.
//
// Collection names in both stores must match ^[a-z0-9_]{1,64}$.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MaxIdentifierLength is the longest collection name the stores accept.
	MaxIdentifierLength = 64

	// HashSuffixLength is the length of "_" plus the 8-character hash added
	// to truncated identifiers.
	HashSuffixLength = 9

	// DefaultIdentifier is used for empty input.
	DefaultIdentifier = "default"

	// hashPrefix starts identifiers derived from names with no usable
	// character, e.g. names written entirely in Chinese.
	hashPrefix = "dir"
)

// Identifier sanitizes s for use as a collection name.
//
// Rules applied:
//   - Converts to lowercase
//   - Replaces invalid characters with underscores
//   - Collapses multiple underscores
//   - Trims leading/trailing underscores
//   - Truncates to MaxIdentifierLength with hash suffix if too long
//
// Examples:
//
//	"Product Manuals" -> "product_manuals"
//	"docs-v2.1"       -> "docs_v2_1"
//	"产品手册"          -> "dir_<8-char-hash>"
//	""                -> "default"
func Identifier(s string) string {
	if s == "" {
		return DefaultIdentifier
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	sanitized := b.String()
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")

	if sanitized == "" {
		return hashPrefix + "_" + shortHash(s)
	}
	if len(sanitized) > MaxIdentifierLength {
		sanitized = truncateWithHash(sanitized)
	}
	return sanitized
}

// truncateWithHash truncates s to fit within MaxIdentifierLength, appending
// a hash of the full string so distinct long names stay distinct.
//
// Format: <truncated>_<8-char-hash>
func truncateWithHash(s string) string {
	truncated := strings.TrimRight(s[:MaxIdentifierLength-HashSuffixLength], "_")
	return truncated + "_" + shortHash(s)
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}
