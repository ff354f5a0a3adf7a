package services

import (
	"context"
	"fmt"
	"time"

	"github.com/theotherzach/project-brain-bot/internal/cache"
	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
	"github.com/theotherzach/project-brain-bot/internal/logger"
)

// DefaultClassifyTTL is how long a classification is cached. Questions
// repeat in bursts (several users asking variants in the same hour), so a
// long TTL pays off; staleness only affects source routing, not answers.
const DefaultClassifyTTL = time.Hour

// Classifier routes a question to the source kinds worth querying live.
// Classification is advisory: any failure falls back to selecting every
// registered source, never to failing the invocation.
type Classifier struct {
	llm      driven.LLMService
	registry driven.ConnectorRegistry
	cache    driven.Cache
	ttl      time.Duration
}

// NewClassifier creates a classifier. The cache is optional; when nil every
// call goes to the model. The llm is optional too: with no model configured,
// every question falls back to all sources.
func NewClassifier(llm driven.LLMService, registry driven.ConnectorRegistry, c driven.Cache) *Classifier {
	return &Classifier{
		llm:      llm,
		registry: registry,
		cache:    c,
		ttl:      DefaultClassifyTTL,
	}
}

// SetTTL overrides the classification cache TTL.
func (c *Classifier) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		c.ttl = ttl
	}
}

// Classify maps a question to a set of relevant source kinds plus a
// retrieval-intent label. Never returns an error: when the model call fails
// or its output cannot be interpreted, the result selects all registered
// sources with Fallback set.
func (c *Classifier) Classify(ctx context.Context, question domain.Question) domain.ClassificationResult {
	if c.llm == nil {
		return c.fallback()
	}

	compute := func(ctx context.Context) (any, error) {
		return c.classify(ctx, question.Text)
	}

	var result any
	var err error
	if c.cache != nil {
		key := cache.Key("classify", question.Text)
		result, err = c.cache.GetOrCompute(ctx, key, c.ttl, compute)
	} else {
		result, err = compute(ctx)
	}
	if err != nil {
		logger.Warn("Classification failed, falling back to all sources: %v", err)
		return c.fallback()
	}

	classification, ok := result.(domain.ClassificationResult)
	if !ok {
		return c.fallback()
	}
	return classification
}

// classify calls the model and validates its raw output against the
// registry. Unknown or unregistered source names are dropped; an empty
// validated set is a legitimate vector-only result, not a failure.
func (c *Classifier) classify(ctx context.Context, text string) (domain.ClassificationResult, error) {
	raw, err := c.llm.ClassifySources(ctx, text)
	if err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("classify sources: %w", err)
	}

	registered := make(map[domain.SourceKind]bool)
	for _, kind := range c.registry.Kinds() {
		registered[kind] = true
	}

	var kinds []domain.SourceKind
	seen := make(map[domain.SourceKind]bool)
	for _, name := range raw.Sources {
		kind, err := domain.ParseSourceKind(name)
		if err != nil {
			logger.Debug("Dropping unknown source %q from classification", name)
			continue
		}
		if !registered[kind] || seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}

	return domain.ClassificationResult{
		Kinds:  kinds,
		Intent: raw.Intent,
	}, nil
}

// fallback selects every registered source.
func (c *Classifier) fallback() domain.ClassificationResult {
	return domain.ClassificationResult{
		Kinds:    c.registry.Kinds(),
		Fallback: true,
	}
}
