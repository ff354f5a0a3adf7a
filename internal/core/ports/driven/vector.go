package driven

import (
	"context"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
)

// VectorIndex provides similarity search over embedded chunks.
// Writes happen only from the sync runner (single-writer discipline);
// searches are issued concurrently by orchestrator invocations.
type VectorIndex interface {
	// Upsert stores or overwrites the vector for a chunk. Re-upserting
	// an unchanged chunk is a no-op effect, not an error.
	Upsert(ctx context.Context, chunkID string, embedding []float32, meta VectorMeta) error

	// Delete removes a single vector from the index.
	Delete(ctx context.Context, chunkID string) error

	// DeleteDocument removes every vector belonging to a document.
	// Used for tombstone propagation during sync.
	DeleteDocument(ctx context.Context, documentID string) error

	// Search returns the k nearest chunks to the query vector, scored
	// descending.
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)

	// Close releases resources.
	Close() error
}

// VectorMeta is the metadata stored alongside each vector.
type VectorMeta struct {
	// DocumentID links the vector back to its source document.
	DocumentID string

	// Kind is the document's source.
	Kind domain.SourceKind

	// Title and URL carry provenance for bundle assembly.
	Title string
	URL   string

	// Text is the chunk content, returned with search hits so the
	// orchestrator does not need a separate document store round trip.
	Text string

	// UpdatedAt is the source-side last-modified timestamp.
	UpdatedAt int64
}

// VectorHit is one similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the similarity score, higher is more relevant.
	Score float64

	// Meta is the metadata stored with the vector.
	Meta VectorMeta
}
