package driven

import (
	"context"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
)

// CheckpointStore durably persists per-source sync checkpoints.
// Set must be atomic: a checkpoint is either fully written or not at all,
// so a crash mid-commit leaves the previous checkpoint intact.
type CheckpointStore interface {
	// Get retrieves the checkpoint for a source kind.
	// Returns domain.ErrNotFound when no checkpoint exists yet, and
	// domain.ErrCheckpointCorrupt when the stored value cannot be read.
	Get(ctx context.Context, kind domain.SourceKind) (*domain.SyncCheckpoint, error)

	// Set atomically stores or replaces the checkpoint for a source.
	Set(ctx context.Context, checkpoint domain.SyncCheckpoint) error

	// Delete removes the checkpoint for a source, forcing the next sync
	// to start from the beginning.
	Delete(ctx context.Context, kind domain.SourceKind) error
}
