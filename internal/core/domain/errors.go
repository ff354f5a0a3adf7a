package domain

import "errors"

// Failure taxonomy for the aggregation engine. Per-source failures are
// contained at the orchestrator/scheduler boundary; none of these abort a
// whole invocation on their own.
var (
	// ErrTimeout indicates a bounded operation exceeded its deadline.
	// Retried on the next invocation, never within the same pass.
	ErrTimeout = errors.New("operation timed out")

	// ErrRateLimited indicates a backoff signal from an upstream.
	ErrRateLimited = errors.New("rate limited")

	// ErrUpstream indicates a non-retryable failure from a connector.
	ErrUpstream = errors.New("upstream error")

	// ErrIndexUnavailable indicates the vector index is unreachable.
	// Vector search is omitted; the live-fetch path is still attempted.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrCheckpointCommit indicates the durable checkpoint write failed.
	// The sync run is treated as failed even if indexing succeeded.
	ErrCheckpointCommit = errors.New("checkpoint commit failed")

	// ErrCheckpointCorrupt indicates the stored checkpoint cannot be
	// read. The affected sync worker halts until restarted.
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")

	// ErrSyncInProgress indicates a sync run for the source is already
	// in flight; the new trigger is coalesced.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrInvalidInput indicates malformed caller input, such as an
	// empty question.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotSupported indicates a connector does not implement the
	// requested capability.
	ErrNotSupported = errors.New("not supported")

	// ErrUnsupportedType indicates an unknown source kind.
	ErrUnsupportedType = errors.New("unsupported type")
)
