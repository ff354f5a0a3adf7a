// Package qdrant provides a vector index adapter backed by a Qdrant server
// over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default configuration values.
const (
	DefaultCollection = "project-brain"
	DefaultTimeout    = 15 * time.Second
)

// Config holds configuration for the Qdrant index.
type Config struct {
	// URL is the Qdrant server base URL (required).
	URL string

	// APIKey is the optional API key.
	APIKey string

	// Collection is the collection name (default: project-brain).
	Collection string

	// Dimensions is the vector size, used when creating the collection.
	Dimensions int

	// Timeout is the per-request timeout (default: 15s).
	Timeout time.Duration
}

// Index is a minimal REST client to Qdrant using cosine distance.
type Index struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

// New creates a Qdrant index adapter and ensures the collection exists.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant: URL is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	x := &Index{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: cfg.Timeout},
	}

	if cfg.Dimensions > 0 {
		// Qdrant returns 200 when the collection already exists with
		// the same schema.
		err := x.do(ctx, http.MethodPut, x.collectionURL(""), map[string]any{
			"vectors": map[string]any{
				"size":     cfg.Dimensions,
				"distance": "Cosine",
			},
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("qdrant: create collection: %w", err)
		}
	}

	return x, nil
}

// pointNamespace scopes the deterministic chunk-to-point ID mapping.
var pointNamespace = uuid.MustParse("c2aa9e5e-3b1d-4b7a-9f40-7a0c2d6b8e91")

// pointID maps a chunk ID into the UUID space Qdrant accepts as point IDs.
// Deterministic, so re-upserting an unchanged chunk overwrites in place.
func pointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// Upsert stores or overwrites the vector for a chunk.
func (x *Index) Upsert(ctx context.Context, chunkID string, embedding []float32, meta driven.VectorMeta) error {
	body := map[string]any{
		"points": []map[string]any{{
			"id":     pointID(chunkID),
			"vector": embedding,
			"payload": map[string]any{
				"chunk_id":    chunkID,
				"document_id": meta.DocumentID,
				"kind":        meta.Kind.String(),
				"title":       meta.Title,
				"url":         meta.URL,
				"text":        meta.Text,
				"updated_at":  meta.UpdatedAt,
			},
		}},
	}
	if err := x.do(ctx, http.MethodPut, x.collectionURL("/points?wait=true"), body, nil); err != nil {
		return fmt.Errorf("%w: qdrant upsert: %w", domain.ErrIndexUnavailable, err)
	}
	return nil
}

// Delete removes a single vector.
func (x *Index) Delete(ctx context.Context, chunkID string) error {
	body := map[string]any{"points": []string{pointID(chunkID)}}
	if err := x.do(ctx, http.MethodPost, x.collectionURL("/points/delete?wait=true"), body, nil); err != nil {
		return fmt.Errorf("%w: qdrant delete: %w", domain.ErrIndexUnavailable, err)
	}
	return nil
}

// DeleteDocument removes every vector belonging to a document using a
// payload filter.
func (x *Index) DeleteDocument(ctx context.Context, documentID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{{
				"key":   "document_id",
				"match": map[string]any{"value": documentID},
			}},
		},
	}
	if err := x.do(ctx, http.MethodPost, x.collectionURL("/points/delete?wait=true"), body, nil); err != nil {
		return fmt.Errorf("%w: qdrant delete document: %w", domain.ErrIndexUnavailable, err)
	}
	return nil
}

// Search returns the k nearest chunks.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if k <= 0 {
		k = 5
	}

	req := map[string]any{
		"vector":       query,
		"limit":        k,
		"with_payload": true,
	}

	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := x.do(ctx, http.MethodPost, x.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, fmt.Errorf("%w: qdrant search: %w", domain.ErrIndexUnavailable, err)
	}

	hits := make([]driven.VectorHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		// Point IDs are the UUID mapping; the chunk ID travels in the
		// payload.
		chunkID := r.ID
		if v, ok := r.Payload["chunk_id"].(string); ok {
			chunkID = v
		}
		hits = append(hits, driven.VectorHit{
			ChunkID: chunkID,
			Score:   r.Score,
			Meta:    metaFromPayload(r.Payload),
		})
	}
	return hits, nil
}

// Close releases resources.
func (x *Index) Close() error {
	return nil
}

// collectionURL builds a URL under the collection.
func (x *Index) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", x.url, x.collection, suffix)
}

// do issues one JSON request and decodes the response into out, if non-nil.
func (x *Index) do(ctx context.Context, method, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// metaFromPayload rebuilds VectorMeta from a Qdrant payload map.
func metaFromPayload(payload map[string]any) driven.VectorMeta {
	meta := driven.VectorMeta{}
	if v, ok := payload["document_id"].(string); ok {
		meta.DocumentID = v
	}
	if v, ok := payload["kind"].(string); ok {
		meta.Kind = domain.SourceKind(v)
	}
	if v, ok := payload["title"].(string); ok {
		meta.Title = v
	}
	if v, ok := payload["url"].(string); ok {
		meta.URL = v
	}
	if v, ok := payload["text"].(string); ok {
		meta.Text = v
	}
	if v, ok := payload["updated_at"].(float64); ok {
		meta.UpdatedAt = int64(v)
	}
	return meta
}
