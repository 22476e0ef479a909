// Package ident derives deterministic document ids and resolves the
// idempotency token (opId) of a mutation.
//
// Ids are the first 28 hex characters of SHA-256 over the UTF-8 parts joined
// with "|". Replaying a call with the same inputs therefore addresses the
// same document, which is what makes retried mutations detectable.
package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	separator = "|"
	idLength  = 28
)

// DocID returns the deterministic id for parts.
func DocID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, separator)))
	return hex.EncodeToString(sum[:])[:idLength]
}

// ResolveOpID returns opID trimmed when it is non-empty, and otherwise a
// DocID over fallback.
func ResolveOpID(opID string, fallback ...string) string {
	if trimmed := strings.TrimSpace(opID); trimmed != "" {
		return trimmed
	}
	return DocID(fallback...)
}

// Millis formats a Unix millisecond timestamp as a fallback id part.
func Millis(ms int64) string {
	return strconv.FormatInt(ms, 10)
}
