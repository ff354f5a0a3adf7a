// Package memory provides in-memory implementations of the checkpoint and
// sync history stores, used in tests and for ephemeral runs.
package memory

import (
	"context"
	"sync"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
)

var (
	_ driven.CheckpointStore  = (*CheckpointStore)(nil)
	_ driven.SyncHistoryStore = (*SyncHistoryStore)(nil)
)

// CheckpointStore keeps checkpoints in a map guarded by a mutex.
type CheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[domain.SourceKind]domain.SyncCheckpoint
}

// NewCheckpointStore creates an empty in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		checkpoints: make(map[domain.SourceKind]domain.SyncCheckpoint),
	}
}

// Get retrieves the checkpoint for a source kind.
func (s *CheckpointStore) Get(_ context.Context, kind domain.SourceKind) (*domain.SyncCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[kind]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cp
	return &out, nil
}

// Set stores or replaces the checkpoint for a source.
func (s *CheckpointStore) Set(_ context.Context, checkpoint domain.SyncCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[checkpoint.Kind] = checkpoint
	return nil
}

// Delete removes the checkpoint for a source.
func (s *CheckpointStore) Delete(_ context.Context, kind domain.SourceKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.checkpoints, kind)
	return nil
}

// SyncHistoryStore keeps run records per kind, newest first.
type SyncHistoryStore struct {
	mu   sync.RWMutex
	runs map[domain.SourceKind][]driven.SyncRunRecord
}

// NewSyncHistoryStore creates an empty in-memory history store.
func NewSyncHistoryStore() *SyncHistoryStore {
	return &SyncHistoryStore{
		runs: make(map[domain.SourceKind][]driven.SyncRunRecord),
	}
}

// Record appends a run record.
func (s *SyncHistoryStore) Record(_ context.Context, rec driven.SyncRunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Prepend so Recent can slice from the front.
	s.runs[rec.Kind] = append([]driven.SyncRunRecord{rec}, s.runs[rec.Kind]...)
	return nil
}

// Recent returns the most recent records for a kind, newest first.
func (s *SyncHistoryStore) Recent(_ context.Context, kind domain.SourceKind, limit int) ([]driven.SyncRunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.runs[kind]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	out := make([]driven.SyncRunRecord, len(records))
	copy(out, records)
	return out, nil
}

// Prune keeps only the most recent keep records per kind.
func (s *SyncHistoryStore) Prune(_ context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for kind, records := range s.runs {
		if len(records) > keep {
			s.runs[kind] = records[:keep]
		}
	}
	return nil
}
