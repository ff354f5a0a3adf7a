// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports).
package driven

import "context"

// EmbeddingService generates vector embeddings from text.
// An external collaborator: the engine never inspects vector contents, only
// hands them to the vector index.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	// More efficient than calling Embed in a loop during sync.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
