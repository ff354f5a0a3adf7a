// Package memory provides an in-process vector index using brute-force
// cosine similarity. Suitable for small corpora and tests; larger
// deployments use the qdrant adapter.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// record is one stored vector with its metadata.
type record struct {
	embedding []float32
	meta      driven.VectorMeta
}

// Index is a thread-safe in-memory vector index.
type Index struct {
	mu      sync.RWMutex
	records map[string]record
}

// New creates an empty index.
func New() *Index {
	return &Index{records: make(map[string]record)}
}

// Upsert stores or overwrites the vector for a chunk.
func (x *Index) Upsert(_ context.Context, chunkID string, embedding []float32, meta driven.VectorMeta) error {
	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	x.mu.Lock()
	defer x.mu.Unlock()
	x.records[chunkID] = record{embedding: vec, meta: meta}
	return nil
}

// Delete removes a single vector.
func (x *Index) Delete(_ context.Context, chunkID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.records, chunkID)
	return nil
}

// DeleteDocument removes every vector belonging to a document.
func (x *Index) DeleteDocument(_ context.Context, documentID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, rec := range x.records {
		if rec.meta.DocumentID == documentID {
			delete(x.records, id)
		}
	}
	return nil
}

// Search returns the k nearest chunks by cosine similarity.
func (x *Index) Search(_ context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if k <= 0 {
		k = 5
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	hits := make([]driven.VectorHit, 0, len(x.records))
	for id, rec := range x.records {
		hits = append(hits, driven.VectorHit{
			ChunkID: id,
			Score:   cosine(query, rec.embedding),
			Meta:    rec.meta,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of stored vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records)
}

// Close releases resources.
func (x *Index) Close() error {
	return nil
}

// cosine computes the cosine similarity of two vectors.
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
