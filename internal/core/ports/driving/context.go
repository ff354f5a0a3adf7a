// Package driving provides interfaces exposed to driving adapters
// (CLI, HTTP API), the primary inbound ports.
package driving

import (
	"context"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
)

// ContextProvider assembles retrieval context for a question.
// This is the sole entry point the chat-surface layer calls. It never
// returns an error for upstream partial failure, only for programmer-error
// inputs such as an empty question.
type ContextProvider interface {
	// Gather classifies the question, fans out to the vector index and
	// live sources concurrently, and merges the results into a bounded
	// bundle. A fully failed invocation yields an empty bundle with the
	// Degraded flag set, not an error.
	Gather(ctx context.Context, question domain.Question) (*domain.ContextBundle, error)
}
