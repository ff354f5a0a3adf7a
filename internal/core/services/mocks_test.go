package services

import (
	"context"
	"sync"
	"time"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
)

// mockConnector is a configurable test connector.
type mockConnector struct {
	kind domain.SourceKind
	caps driven.ConnectorCapabilities

	mu         sync.Mutex
	fetchCalls int
	snippets   []domain.Snippet
	fetchErr   error
	fetchDelay time.Duration

	changes []domain.DocumentChange
	feedErr error
}

func newMockConnector(kind domain.SourceKind) *mockConnector {
	return &mockConnector{
		kind: kind,
		caps: driven.ConnectorCapabilities{
			SupportsLiveFetch: true,
			SupportsIndexing:  true,
		},
	}
}

func (m *mockConnector) Kind() domain.SourceKind                    { return m.kind }
func (m *mockConnector) Capabilities() driven.ConnectorCapabilities { return m.caps }
func (m *mockConnector) Close() error                               { return nil }

func (m *mockConnector) LiveFetch(ctx context.Context, _ string) ([]domain.Snippet, error) {
	m.mu.Lock()
	m.fetchCalls++
	delay := m.fetchDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.snippets, nil
}

func (m *mockConnector) ListDocumentsSince(_ context.Context, since time.Time) (<-chan domain.DocumentChange, <-chan error) {
	changesCh := make(chan domain.DocumentChange)
	errsCh := make(chan error, 1)

	go func() {
		defer close(changesCh)
		defer close(errsCh)
		for _, change := range m.changes {
			if !change.Document.UpdatedAt.After(since) {
				continue
			}
			changesCh <- change
		}
		if m.feedErr != nil {
			errsCh <- m.feedErr
		}
	}()

	return changesCh, errsCh
}

func (m *mockConnector) liveFetchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls
}

// mockLLM returns canned classifications.
type mockLLM struct {
	mu            sync.Mutex
	classifyCalls int
	sources       []string
	intent        string
	classifyErr   error
	answer        string
}

func (m *mockLLM) ClassifySources(_ context.Context, _ string) (driven.SourceClassification, error) {
	m.mu.Lock()
	m.classifyCalls++
	m.mu.Unlock()

	if m.classifyErr != nil {
		return driven.SourceClassification{}, m.classifyErr
	}
	return driven.SourceClassification{Sources: m.sources, Intent: m.intent}, nil
}

func (m *mockLLM) Answer(_ context.Context, _, _ string) (string, error) { return m.answer, nil }
func (m *mockLLM) Ping(_ context.Context) error                          { return nil }
func (m *mockLLM) Close() error                                          { return nil }

func (m *mockLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.classifyCalls
}

// mockEmbedding returns fixed-size dummy vectors.
type mockEmbedding struct {
	mu       sync.Mutex
	embedErr error
	batches  int
}

func (m *mockEmbedding) Embed(_ context.Context, _ string) ([]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return []float32{1, 0, 0}, nil
}

func (m *mockEmbedding) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batches++
	m.mu.Unlock()

	if m.embedErr != nil {
		return nil, m.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (m *mockEmbedding) Dimensions() int              { return 3 }
func (m *mockEmbedding) Ping(_ context.Context) error { return nil }
func (m *mockEmbedding) Close() error                 { return nil }

// mockVector records writes and returns canned hits.
type mockVector struct {
	mu        sync.Mutex
	hits      []driven.VectorHit
	searchErr error
	upsertErr error
	upserts   map[string]driven.VectorMeta
	deleted   []string
}

func newMockVector() *mockVector {
	return &mockVector{upserts: make(map[string]driven.VectorMeta)}
}

func (m *mockVector) Upsert(_ context.Context, chunkID string, _ []float32, meta driven.VectorMeta) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts[chunkID] = meta
	return nil
}

func (m *mockVector) Delete(_ context.Context, chunkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.upserts, chunkID)
	return nil
}

func (m *mockVector) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, meta := range m.upserts {
		if meta.DocumentID == documentID {
			delete(m.upserts, id)
		}
	}
	m.deleted = append(m.deleted, documentID)
	return nil
}

func (m *mockVector) Search(_ context.Context, _ []float32, _ int) ([]driven.VectorHit, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.hits, nil
}

func (m *mockVector) Close() error { return nil }

func (m *mockVector) upsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upserts)
}

// failingCheckpointStore wraps a store and fails writes on demand.
type failingCheckpointStore struct {
	driven.CheckpointStore
	setErr error
	getErr error
}

func (s *failingCheckpointStore) Get(ctx context.Context, kind domain.SourceKind) (*domain.SyncCheckpoint, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.CheckpointStore.Get(ctx, kind)
}

func (s *failingCheckpointStore) Set(ctx context.Context, checkpoint domain.SyncCheckpoint) error {
	if s.setErr != nil {
		return s.setErr
	}
	return s.CheckpointStore.Set(ctx, checkpoint)
}
