package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/theotherzach/project-brain-bot/internal/chunker"
	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driving"
	"github.com/theotherzach/project-brain-bot/internal/logger"
)

// Ensure SyncRunner implements the interface.
var _ driving.SyncRunner = (*SyncRunner)(nil)

// SyncRunner performs incremental indexing runs. One run: read the source's
// checkpoint, stream changed documents, chunk and embed them, write vectors,
// and only then commit the new checkpoint. A failed run commits nothing, so
// the next run re-covers the same window; idempotent upserts make the
// re-cover harmless.
type SyncRunner struct {
	registry    driven.ConnectorRegistry
	checkpoints driven.CheckpointStore
	history     driven.SyncHistoryStore
	chunker     *chunker.Chunker
	embedding   driven.EmbeddingService
	vector      driven.VectorIndex

	// inFlight coalesces concurrent runs per kind.
	mu       sync.Mutex
	inFlight map[domain.SourceKind]bool
}

// NewSyncRunner creates a sync runner. The history store is optional.
func NewSyncRunner(
	registry driven.ConnectorRegistry,
	checkpoints driven.CheckpointStore,
	history driven.SyncHistoryStore,
	ch *chunker.Chunker,
	embedding driven.EmbeddingService,
	vector driven.VectorIndex,
) *SyncRunner {
	return &SyncRunner{
		registry:    registry,
		checkpoints: checkpoints,
		history:     history,
		chunker:     ch,
		embedding:   embedding,
		vector:      vector,
		inFlight:    make(map[domain.SourceKind]bool),
	}
}

// Run performs one sync run for a source kind.
func (r *SyncRunner) Run(ctx context.Context, kind domain.SourceKind) (*driving.SyncReport, error) {
	connector, err := r.registry.Get(kind)
	if err != nil {
		return nil, err
	}
	if !connector.Capabilities().SupportsIndexing {
		return nil, fmt.Errorf("%w: %s does not support indexing", domain.ErrNotSupported, kind)
	}

	if !r.acquire(kind) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSyncInProgress, kind)
	}
	defer r.release(kind)

	start := time.Now()
	report, err := r.run(ctx, kind, connector)
	duration := time.Since(start)

	r.record(ctx, kind, start, report, err)

	if err != nil {
		return nil, err
	}
	report.Duration = duration
	return report, nil
}

// run executes the guarded portion of a sync run.
func (r *SyncRunner) run(ctx context.Context, kind domain.SourceKind, connector driven.Connector) (*driving.SyncReport, error) {
	since, err := r.loadCheckpoint(ctx, kind)
	if err != nil {
		return nil, err
	}

	logger.Info("Sync %s: starting from %s", kind, since.Format(time.RFC3339))

	report := &driving.SyncReport{Kind: kind}
	maxSeen := since

	changesCh, errsCh := connector.ListDocumentsSince(ctx, since)
	for changesCh != nil || errsCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case err, ok := <-errsCh:
			if !ok {
				errsCh = nil
				continue
			}
			if err != nil {
				// Abort without committing: the checkpoint stays put
				// and the next run re-covers this window.
				return nil, fmt.Errorf("source feed %s: %w", kind, err)
			}

		case change, ok := <-changesCh:
			if !ok {
				changesCh = nil
				continue
			}

			switch change.Type {
			case domain.ChangeUpserted:
				n, err := r.indexDocument(ctx, &change.Document)
				if err != nil {
					return nil, fmt.Errorf("index %s: %w", change.Document.ID, err)
				}
				report.DocumentsIndexed++
				report.ChunksUpserted += n

			case domain.ChangeDeleted:
				if err := r.vector.DeleteDocument(ctx, change.Document.ID); err != nil {
					return nil, fmt.Errorf("delete %s: %w", change.Document.ID, err)
				}
				report.DocumentsDeleted++
			}

			if change.Document.UpdatedAt.After(maxSeen) {
				maxSeen = change.Document.UpdatedAt
			}
		}
	}

	// All work confirmed; commit the checkpoint last.
	checkpoint := domain.SyncCheckpoint{
		Kind:       kind,
		LastSynced: maxSeen,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := r.checkpoints.Set(ctx, checkpoint); err != nil {
		return nil, fmt.Errorf("commit checkpoint %s: %w", kind, err)
	}
	report.Checkpoint = checkpoint

	logger.Info("Sync %s: %d indexed, %d deleted, %d chunks, checkpoint %s",
		kind, report.DocumentsIndexed, report.DocumentsDeleted,
		report.ChunksUpserted, maxSeen.Format(time.RFC3339))
	return report, nil
}

// loadCheckpoint reads the source's checkpoint. A missing checkpoint means
// a first run from the zero time; a corrupt one propagates so the scheduler
// can halt the worker.
func (r *SyncRunner) loadCheckpoint(ctx context.Context, kind domain.SourceKind) (time.Time, error) {
	checkpoint, err := r.checkpoints.Get(ctx, kind)
	if errors.Is(err, domain.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load checkpoint %s: %w", kind, err)
	}
	return checkpoint.LastSynced, nil
}

// indexDocument chunks, embeds and upserts one document. Returns the number
// of chunks written.
func (r *SyncRunner) indexDocument(ctx context.Context, doc *domain.Document) (int, error) {
	chunks := r.chunker.Split(doc)
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := r.embedding.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed batch: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("embed batch: got %d embeddings for %d chunks", len(embeddings), len(chunks))
	}

	for i, c := range chunks {
		meta := driven.VectorMeta{
			DocumentID: doc.ID,
			Kind:       doc.Kind,
			Title:      doc.Title,
			URL:        doc.URL,
			Text:       c.Text,
			UpdatedAt:  doc.UpdatedAt.Unix(),
		}
		if err := r.vector.Upsert(ctx, c.ID, embeddings[i], meta); err != nil {
			return 0, fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	return len(chunks), nil
}

// record writes the run outcome to the history store, best effort.
func (r *SyncRunner) record(ctx context.Context, kind domain.SourceKind, start time.Time, report *driving.SyncReport, runErr error) {
	if r.history == nil {
		return
	}

	rec := driven.SyncRunRecord{
		Kind:      kind,
		StartedAt: start,
		EndedAt:   time.Now().UTC(),
		Success:   runErr == nil,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if report != nil {
		rec.DocumentsIndexed = report.DocumentsIndexed
		rec.DocumentsDeleted = report.DocumentsDeleted
	}

	if err := r.history.Record(ctx, rec); err != nil {
		logger.Warn("Recording sync run for %s failed: %v", kind, err)
	}
}

// acquire marks a kind as in flight. Returns false when a run is already
// active for it.
func (r *SyncRunner) acquire(kind domain.SourceKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[kind] {
		return false
	}
	r.inFlight[kind] = true
	return true
}

// release clears the in-flight mark.
func (r *SyncRunner) release(kind domain.SourceKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, kind)
}
