package manifest

import (
	"strings"

	"github.com/opencontainers/go-digest"
)

// ContentHash returns the hex SHA-256 digest of content.
func ContentHash(content string) string {
	return digest.FromString(content).Encoded()
}

// AggregateHash hashes the concatenation of parts in the given order. It is
// used for multi-file definitions, so reordering parts changes the hash.
func AggregateHash(parts []string) string {
	return ContentHash(strings.Join(parts, ""))
}
