// Package cache provides deterministic cache key derivation. Keys are built
// from a prefix (usually a source kind) and normalized request parameters so
// that semantically identical requests collide on the same entry.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key derives a cache key from a prefix and request parameters. Parameters
// are lowercased and whitespace-collapsed before hashing, so trivially
// different spellings of the same request share a key.
func Key(prefix string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(normalize(p)))
		h.Write([]byte{0})
	}
	return prefix + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// normalize lowercases and collapses runs of whitespace to single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
