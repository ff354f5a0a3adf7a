package domain

import "time"

// Question is a natural-language question about the project.
// It is immutable once received.
type Question struct {
	// ID uniquely identifies this question instance.
	ID string

	// Text is the raw question text.
	Text string

	// UserID identifies the asking user on the chat surface.
	UserID string

	// Channel is the originating channel or conversation context.
	Channel string

	// AskedAt is when the question was received.
	AskedAt time.Time
}

// ClassificationResult holds the set of sources deemed relevant to a
// question. An empty Kinds set means vector-only retrieval.
// Produced once per Question and never mutated.
type ClassificationResult struct {
	// Kinds are the sources worth querying live, in priority order.
	Kinds []SourceKind

	// Intent is a short retrieval-intent label (e.g. "open issues",
	// "active alerts") used by connectors to shape their live queries.
	Intent string

	// Fallback is true when classification failed and all registered
	// sources were selected instead.
	Fallback bool
}

// HasKind reports whether the classification includes the given kind.
func (c *ClassificationResult) HasKind(kind SourceKind) bool {
	for _, k := range c.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
