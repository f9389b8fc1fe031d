// Package cache derives response-cache keys shared by the cache backends.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const keyPrefix = "chat:"

// Key derives the cache key for a session and query. The query is
// normalized (trimmed, lowercased, inner whitespace collapsed) so trivially
// different spellings of the same question share an entry.
func Key(sessionID, query string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(norm))
	return SessionPrefix(sessionID) + hex.EncodeToString(sum[:16])
}

// SessionPrefix is the common prefix of all of a session's keys; session
// invalidation deletes by this prefix.
func SessionPrefix(sessionID string) string {
	return keyPrefix + sessionID + ":"
}
