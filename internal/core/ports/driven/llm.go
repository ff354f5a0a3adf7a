package driven

import "context"

// LLMService provides the language-model calls the engine depends on.
// External collaborator: prompt construction and model choice live in the
// adapter, not in the core.
type LLMService interface {
	// ClassifySources maps a question to the source kinds worth querying
	// live plus a short retrieval-intent label. An unparseable model
	// response is an error; the classifier falls back to all sources.
	ClassifySources(ctx context.Context, question string) (SourceClassification, error)

	// Answer synthesises an answer from the question and the assembled
	// context. The context may be empty when retrieval was degraded.
	Answer(ctx context.Context, question, contextText string) (string, error)

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// SourceClassification is the raw model output for source routing.
// Kinds are validated against the registry by the classifier service.
type SourceClassification struct {
	// Sources are the raw source names from the model.
	Sources []string

	// Intent is the retrieval-intent label.
	Intent string
}
