package driving

import (
	"context"
	"time"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
)

// SyncRunner executes incremental indexing runs for single sources.
type SyncRunner interface {
	// Run performs one sync run for the given source kind. A run already
	// in flight for the same kind returns domain.ErrSyncInProgress.
	Run(ctx context.Context, kind domain.SourceKind) (*SyncReport, error)
}

// SyncReport summarises one sync run.
type SyncReport struct {
	// Kind is the synced source.
	Kind domain.SourceKind

	// DocumentsIndexed counts upserted documents.
	DocumentsIndexed int

	// DocumentsDeleted counts tombstoned documents.
	DocumentsDeleted int

	// ChunksUpserted counts vectors written to the index.
	ChunksUpserted int

	// Checkpoint is the committed checkpoint after the run. Unchanged
	// from the previous run when the source had no new documents.
	Checkpoint domain.SyncCheckpoint

	// Duration is the wall-clock run time.
	Duration time.Duration
}

// SyncState is the lifecycle state of a source's sync worker.
type SyncState string

// Worker states. Idle → Running → {Committed, Failed}; Halted is entered
// only on checkpoint corruption and requires an explicit resume.
const (
	SyncIdle      SyncState = "idle"
	SyncRunning   SyncState = "running"
	SyncCommitted SyncState = "committed"
	SyncFailed    SyncState = "failed"
	SyncHalted    SyncState = "halted"
)

// SyncStatus describes one source worker's current state.
type SyncStatus struct {
	// Kind is the source.
	Kind domain.SourceKind

	// State is the worker's lifecycle state.
	State SyncState

	// LastRun is when the last run started, zero if never.
	LastRun time.Time

	// LastError is the last run's failure message, empty on success.
	LastError string
}

// Scheduler owns the per-source background sync workers.
type Scheduler interface {
	// Start launches one worker per indexable source and blocks until
	// the context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop shuts down all workers and waits for in-flight runs.
	Stop() error

	// TriggerNow requests an immediate run for a source. A trigger while
	// the source is already running is coalesced.
	TriggerNow(kind domain.SourceKind) error

	// Resume restarts a halted worker.
	Resume(kind domain.SourceKind) error

	// Status returns the current status of a source worker.
	Status(kind domain.SourceKind) (SyncStatus, error)
}
