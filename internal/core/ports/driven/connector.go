package driven

import (
	"context"
	"time"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
)

// Connector is the uniform capability interface each external system
// implements. One implementation per SourceKind. Connectors own their rate
// limiting internally; callers only apply timeouts.
type Connector interface {
	// Kind returns the source kind this connector registers under.
	Kind() domain.SourceKind

	// Capabilities returns what this connector supports.
	Capabilities() ConnectorCapabilities

	// LiveFetch runs a best-effort, source-specific live query shaped by
	// the retrieval intent (e.g. "open P0 issues", "active alerts").
	// Fails with domain.ErrRateLimited on backoff signals, with
	// domain.ErrUpstream on non-retryable failures, and with
	// domain.ErrTimeout when the deadline is exceeded.
	LiveFetch(ctx context.Context, intent string) ([]domain.Snippet, error)

	// ListDocumentsSince streams documents changed after the given
	// timestamp. The feed is finite and restartable: re-invoking from an
	// unchanged checkpoint must not produce duplicate net effects
	// downstream (documents are upserted by ID). Both channels are
	// closed when the feed ends. Only used by the sync runner, and only
	// when SupportsIndexing is true.
	ListDocumentsSince(ctx context.Context, since time.Time) (<-chan domain.DocumentChange, <-chan error)

	// Close releases resources.
	Close() error
}

// ConnectorCapabilities describes what a connector supports.
type ConnectorCapabilities struct {
	// SupportsLiveFetch indicates LiveFetch returns real data.
	SupportsLiveFetch bool

	// SupportsIndexing indicates ListDocumentsSince yields documents for
	// the background sync. False for live-only sources (metrics,
	// monitoring), which never get a sync worker.
	SupportsIndexing bool

	// SupportsDeletions indicates the document feed reports tombstones
	// for upstream deletions.
	SupportsDeletions bool
}

// ConnectorRegistry resolves connectors by source kind.
type ConnectorRegistry interface {
	// Get returns the connector for a kind, or domain.ErrNotFound.
	Get(kind domain.SourceKind) (Connector, error)

	// Kinds returns all registered kinds in registration order.
	Kinds() []domain.SourceKind

	// IndexableKinds returns registered kinds whose connector supports
	// document indexing.
	IndexableKinds() []domain.SourceKind
}
