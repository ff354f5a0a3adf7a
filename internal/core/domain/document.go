package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Document is a unit of indexable content mirrored from a source system.
// The source owns the document; the engine only mirrors it.
type Document struct {
	// ID is globally unique and stable across sync runs.
	ID string

	// Kind is the source this document came from.
	Kind SourceKind

	// Title is the human-readable title.
	Title string

	// Body is the full text content.
	Body string

	// URL is the source-native location, if any.
	URL string

	// UpdatedAt is the source-side last-modified timestamp.
	UpdatedAt time.Time

	// Metadata contains source-specific key-value pairs carried into
	// the vector index alongside each chunk.
	Metadata map[string]string
}

// Chunk is a contiguous slice of a document body prepared for embedding.
// Chunks from the same document cover the body with bounded, deterministic
// overlap.
type Chunk struct {
	// ID is derived from the document ID and chunk index, so re-chunking
	// an unchanged document yields identical IDs.
	ID string

	// DocumentID links to the parent document.
	DocumentID string

	// Kind is the parent document's source.
	Kind SourceKind

	// Text is the chunk content.
	Text string

	// Index is the ordinal position within the document.
	Index int

	// Start and End are the character offsets of this chunk within the
	// document body (half-open interval [Start, End)).
	Start int
	End   int
}

// ChunkID derives the stable chunk identifier for a document and index.
func ChunkID(documentID string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", documentID, index)))
	return hex.EncodeToString(sum[:])[:16]
}

// ChangeType describes what happened to a document upstream.
type ChangeType int

const (
	// ChangeUpserted indicates a document was created or updated.
	ChangeUpserted ChangeType = iota

	// ChangeDeleted indicates a document was deleted upstream and its
	// vectors must be removed from the index (tombstone).
	ChangeDeleted
)

// DocumentChange is one element of a connector's incremental document feed.
type DocumentChange struct {
	Type     ChangeType
	Document Document
}

// Snippet is a live-fetch result: a small, current piece of context from a
// source system (e.g. "open P0 issues", "active alerts").
type Snippet struct {
	// Kind is the source that produced the snippet.
	Kind SourceKind

	// Title is a short label for the snippet.
	Title string

	// Text is the snippet content.
	Text string

	// URL is the source-native location, if any.
	URL string
}
