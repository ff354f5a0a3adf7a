package driven

import (
	"context"
	"time"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
)

// SyncRunRecord is the persisted outcome of one sync run.
type SyncRunRecord struct {
	// Kind is the synced source.
	Kind domain.SourceKind

	// StartedAt and EndedAt bound the run.
	StartedAt time.Time
	EndedAt   time.Time

	// Success indicates the run committed its checkpoint.
	Success bool

	// Error holds the failure message when Success is false.
	Error string

	// DocumentsIndexed and DocumentsDeleted count the run's net effects.
	DocumentsIndexed int
	DocumentsDeleted int
}

// SyncHistoryStore records sync run outcomes for inspection.
type SyncHistoryStore interface {
	// Record appends a run record.
	Record(ctx context.Context, rec SyncRunRecord) error

	// Recent returns the most recent records for a kind, newest first.
	Recent(ctx context.Context, kind domain.SourceKind, limit int) ([]SyncRunRecord, error)

	// Prune keeps only the most recent keep records per kind.
	Prune(ctx context.Context, keep int) error
}
