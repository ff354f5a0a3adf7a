package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storagemem "github.com/theotherzach/project-brain-bot/internal/adapters/driven/storage/memory"
	"github.com/theotherzach/project-brain-bot/internal/chunker"
	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
)

func doc(id string, updatedAt time.Time) domain.Document {
	return domain.Document{
		ID:        id,
		Kind:      domain.SourceLinear,
		Title:     "doc " + id,
		Body:      "body of " + id,
		UpdatedAt: updatedAt,
	}
}

func upserted(d domain.Document) domain.DocumentChange {
	return domain.DocumentChange{Type: domain.ChangeUpserted, Document: d}
}

func deleted(d domain.Document) domain.DocumentChange {
	return domain.DocumentChange{Type: domain.ChangeDeleted, Document: d}
}

func newRunner(connector *mockConnector, checkpoints driven.CheckpointStore, vector *mockVector) (*SyncRunner, *storagemem.SyncHistoryStore) {
	reg, _ := NewRegistry(connector)
	history := storagemem.NewSyncHistoryStore()
	runner := NewSyncRunner(reg, checkpoints, history, chunker.New(), &mockEmbedding{}, vector)
	return runner, history
}

func TestRunIndexesAndCommitsMaxTimestamp(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	connector := newMockConnector(domain.SourceLinear)
	// Deliberately out of order: the checkpoint must land on the maximum
	// timestamp seen, not the last one.
	connector.changes = []domain.DocumentChange{
		upserted(doc("d1", base.Add(1*time.Hour))),
		upserted(doc("d2", base.Add(3*time.Hour))),
		upserted(doc("d3", base.Add(2*time.Hour))),
	}

	checkpoints := storagemem.NewCheckpointStore()
	vector := newMockVector()
	runner, history := newRunner(connector, checkpoints, vector)

	report, err := runner.Run(context.Background(), domain.SourceLinear)
	require.NoError(t, err)

	assert.Equal(t, 3, report.DocumentsIndexed)
	assert.Equal(t, 3, report.ChunksUpserted)
	assert.True(t, report.Checkpoint.LastSynced.Equal(base.Add(3*time.Hour)))

	stored, err := checkpoints.Get(context.Background(), domain.SourceLinear)
	require.NoError(t, err)
	assert.True(t, stored.LastSynced.Equal(base.Add(3*time.Hour)))

	records, err := history.Recent(context.Background(), domain.SourceLinear, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
}

func TestRunFeedErrorDoesNotAdvanceCheckpoint(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	connector := newMockConnector(domain.SourceLinear)
	connector.changes = []domain.DocumentChange{
		upserted(doc("d1", base.Add(time.Hour))),
	}
	connector.feedErr = fmt.Errorf("%w: connection reset", domain.ErrUpstream)

	checkpoints := storagemem.NewCheckpointStore()
	require.NoError(t, checkpoints.Set(context.Background(), domain.SyncCheckpoint{
		Kind: domain.SourceLinear, LastSynced: base, UpdatedAt: base,
	}))

	runner, history := newRunner(connector, checkpoints, newMockVector())

	_, err := runner.Run(context.Background(), domain.SourceLinear)
	require.ErrorIs(t, err, domain.ErrUpstream)

	stored, err := checkpoints.Get(context.Background(), domain.SourceLinear)
	require.NoError(t, err)
	assert.True(t, stored.LastSynced.Equal(base), "failed run must not advance the checkpoint")

	records, err := history.Recent(context.Background(), domain.SourceLinear, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
}

func TestRunEmbeddingErrorDoesNotCommit(t *testing.T) {
	connector := newMockConnector(domain.SourceLinear)
	connector.changes = []domain.DocumentChange{
		upserted(doc("d1", time.Now().UTC())),
	}

	checkpoints := storagemem.NewCheckpointStore()
	reg, _ := NewRegistry(connector)
	embedding := &mockEmbedding{embedErr: errors.New("embedding service down")}
	runner := NewSyncRunner(reg, checkpoints, nil, chunker.New(), embedding, newMockVector())

	_, err := runner.Run(context.Background(), domain.SourceLinear)
	require.Error(t, err)

	_, err = checkpoints.Get(context.Background(), domain.SourceLinear)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunCheckpointCommitFailure(t *testing.T) {
	connector := newMockConnector(domain.SourceLinear)
	connector.changes = []domain.DocumentChange{
		upserted(doc("d1", time.Now().UTC())),
	}

	store := &failingCheckpointStore{
		CheckpointStore: storagemem.NewCheckpointStore(),
		setErr:          fmt.Errorf("%w: disk full", domain.ErrCheckpointCommit),
	}
	runner, _ := newRunner(connector, store, newMockVector())

	_, err := runner.Run(context.Background(), domain.SourceLinear)
	assert.ErrorIs(t, err, domain.ErrCheckpointCommit)
}

func TestRunPropagatesTombstones(t *testing.T) {
	now := time.Now().UTC()
	connector := newMockConnector(domain.SourceLinear)
	connector.changes = []domain.DocumentChange{
		upserted(doc("keep", now)),
		deleted(doc("gone", now.Add(time.Minute))),
	}

	vector := newMockVector()
	runner, _ := newRunner(connector, storagemem.NewCheckpointStore(), vector)

	report, err := runner.Run(context.Background(), domain.SourceLinear)
	require.NoError(t, err)

	assert.Equal(t, 1, report.DocumentsIndexed)
	assert.Equal(t, 1, report.DocumentsDeleted)
	assert.Contains(t, vector.deleted, "gone")
	assert.True(t, report.Checkpoint.LastSynced.Equal(now.Add(time.Minute)),
		"tombstone timestamps count toward the checkpoint")
}

func TestRunEmptyFeedKeepsCheckpoint(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	connector := newMockConnector(domain.SourceLinear)

	checkpoints := storagemem.NewCheckpointStore()
	require.NoError(t, checkpoints.Set(context.Background(), domain.SyncCheckpoint{
		Kind: domain.SourceLinear, LastSynced: base, UpdatedAt: base,
	}))

	runner, _ := newRunner(connector, checkpoints, newMockVector())

	report, err := runner.Run(context.Background(), domain.SourceLinear)
	require.NoError(t, err)
	assert.Zero(t, report.DocumentsIndexed)
	assert.True(t, report.Checkpoint.LastSynced.Equal(base),
		"a run with no new documents leaves the timestamp unchanged")
}

func TestRunRerunFromSameCheckpointIsIdempotent(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	connector := newMockConnector(domain.SourceLinear)
	connector.changes = []domain.DocumentChange{
		upserted(doc("d1", base.Add(time.Hour))),
		upserted(doc("d2", base.Add(2*time.Hour))),
	}

	vector := newMockVector()
	checkpoints := storagemem.NewCheckpointStore()
	runner, _ := newRunner(connector, checkpoints, vector)

	_, err := runner.Run(context.Background(), domain.SourceLinear)
	require.NoError(t, err)
	first := vector.upsertCount()

	// Force a re-cover of the same window.
	require.NoError(t, checkpoints.Delete(context.Background(), domain.SourceLinear))
	_, err = runner.Run(context.Background(), domain.SourceLinear)
	require.NoError(t, err)

	assert.Equal(t, first, vector.upsertCount(), "re-indexing unchanged documents must not duplicate vectors")
}

func TestRunCoalescesConcurrentRuns(t *testing.T) {
	connector := newMockConnector(domain.SourceLinear)
	runner, _ := newRunner(connector, storagemem.NewCheckpointStore(), newMockVector())

	// Hold the in-flight mark and verify a second run is rejected.
	require.True(t, runner.acquire(domain.SourceLinear))
	_, err := runner.Run(context.Background(), domain.SourceLinear)
	assert.ErrorIs(t, err, domain.ErrSyncInProgress)
	runner.release(domain.SourceLinear)

	_, err = runner.Run(context.Background(), domain.SourceLinear)
	assert.NoError(t, err)
}

func TestRunConcurrentDifferentKindsAllowed(t *testing.T) {
	linear := newMockConnector(domain.SourceLinear)
	notion := newMockConnector(domain.SourceNotion)
	reg, _ := NewRegistry(linear, notion)
	runner := NewSyncRunner(reg, storagemem.NewCheckpointStore(), nil, chunker.New(), &mockEmbedding{}, newMockVector())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = runner.Run(context.Background(), domain.SourceLinear)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = runner.Run(context.Background(), domain.SourceNotion)
	}()
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
}

func TestRunUnsupportedKind(t *testing.T) {
	liveOnly := newMockConnector(domain.SourceMixpanel)
	liveOnly.caps = driven.ConnectorCapabilities{SupportsLiveFetch: true}

	runner, _ := newRunner(liveOnly, storagemem.NewCheckpointStore(), newMockVector())

	_, err := runner.Run(context.Background(), domain.SourceMixpanel)
	assert.ErrorIs(t, err, domain.ErrNotSupported)
}
