package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/theotherzach/project-brain-bot/internal/cache"
	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driving"
	"github.com/theotherzach/project-brain-bot/internal/logger"
)

// Ensure Orchestrator implements the interface.
var _ driving.ContextProvider = (*Orchestrator)(nil)

// Defaults for the orchestrator's bounds. Every external call inside an
// invocation is individually bounded so one slow source cannot exhaust the
// whole deadline.
const (
	// DefaultInvocationDeadline caps one whole Gather call.
	DefaultInvocationDeadline = 15 * time.Second

	// DefaultLiveFetchTimeout caps each per-source live fetch.
	DefaultLiveFetchTimeout = 10 * time.Second

	// DefaultLiveTTL is how long live snippets are cached. Short: live
	// data is only useful while it is current.
	DefaultLiveTTL = 60 * time.Second

	// DefaultTopK is how many vector hits are retrieved per question.
	DefaultTopK = 8

	// DefaultMaxBundleChars bounds the merged bundle size.
	DefaultMaxBundleChars = 12000
)

// indexFailureKey records vector-path failures in the bundle's Failures
// map alongside per-connector failures.
const indexFailureKey = domain.SourceKind("index")

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithInvocationDeadline overrides the whole-invocation deadline.
func WithInvocationDeadline(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.deadline = d
		}
	}
}

// WithLiveFetchTimeout overrides the per-source live fetch timeout.
func WithLiveFetchTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.liveTimeout = d
		}
	}
}

// WithLiveTTL overrides the live snippet cache TTL.
func WithLiveTTL(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.liveTTL = d
		}
	}
}

// WithTopK overrides how many vector hits are retrieved.
func WithTopK(k int) OrchestratorOption {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithMaxBundleChars overrides the bundle size bound.
func WithMaxBundleChars(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxChars = n
		}
	}
}

// Orchestrator assembles a context bundle for a question: it classifies the
// question, fans out to the vector index and the selected live sources
// concurrently, and merges whatever succeeded. Per-source failures are soft:
// they are recorded in the bundle, never propagated as errors.
type Orchestrator struct {
	classifier *Classifier
	registry   driven.ConnectorRegistry
	embedding  driven.EmbeddingService
	vector     driven.VectorIndex
	cache      driven.Cache

	deadline    time.Duration
	liveTimeout time.Duration
	liveTTL     time.Duration
	topK        int
	maxChars    int
}

// NewOrchestrator creates an orchestrator. The embedding service and vector
// index are optional as a pair: when either is nil the vector path is
// skipped and retrieval is live-only.
func NewOrchestrator(
	classifier *Classifier,
	registry driven.ConnectorRegistry,
	embedding driven.EmbeddingService,
	vector driven.VectorIndex,
	c driven.Cache,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		classifier:  classifier,
		registry:    registry,
		embedding:   embedding,
		vector:      vector,
		cache:       c,
		deadline:    DefaultInvocationDeadline,
		liveTimeout: DefaultLiveFetchTimeout,
		liveTTL:     DefaultLiveTTL,
		topK:        DefaultTopK,
		maxChars:    DefaultMaxBundleChars,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// liveResult carries one source's live fetch outcome across the fan-out.
type liveResult struct {
	kind     domain.SourceKind
	snippets []domain.Snippet
	err      error
}

// Gather builds the context bundle for a question.
func (o *Orchestrator) Gather(ctx context.Context, question domain.Question) (*domain.ContextBundle, error) {
	text := strings.TrimSpace(question.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	question.Text = text

	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	classification := o.classifier.Classify(ctx, question)
	logger.Debug("Classification: kinds=%v intent=%q fallback=%t",
		classification.Kinds, classification.Intent, classification.Fallback)

	bundle := &domain.ContextBundle{
		Failures: make(map[domain.SourceKind]string),
	}

	// Fan out: one goroutine for the vector path, one per live source.
	var wg sync.WaitGroup

	var vectorItems []domain.BundleItem
	var vectorErr error
	if o.vector != nil && o.embedding != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vectorItems, vectorErr = o.vectorSearch(ctx, question.Text)
		}()
	}

	liveKinds := o.liveFetchKinds(classification)
	results := make(chan liveResult, len(liveKinds))
	for _, kind := range liveKinds {
		wg.Add(1)
		go func(kind domain.SourceKind) {
			defer wg.Done()
			snippets, err := o.liveFetch(ctx, kind, classification.Intent)
			results <- liveResult{kind: kind, snippets: snippets, err: err}
		}(kind)
	}

	wg.Wait()
	close(results)

	if vectorErr != nil {
		logger.Warn("Vector search failed: %v", vectorErr)
		bundle.Failures[indexFailureKey] = vectorErr.Error()
	}

	liveByKind := make(map[domain.SourceKind][]domain.Snippet, len(liveKinds))
	for res := range results {
		if res.err != nil {
			logger.Warn("Live fetch %s failed: %v", res.kind, res.err)
			bundle.Failures[res.kind] = res.err.Error()
			continue
		}
		liveByKind[res.kind] = res.snippets
	}

	o.merge(bundle, vectorItems, classification, liveByKind)

	if bundle.Empty() && len(bundle.Failures) > 0 {
		bundle.Degraded = true
		logger.Warn("Context gathering degraded: all paths failed for question %s", question.ID)
	}

	logger.Debug("Bundle: %d items, %d chars, %d failures, degraded=%t",
		len(bundle.Items), bundle.TotalChars(), len(bundle.Failures), bundle.Degraded)
	return bundle, nil
}

// liveFetchKinds filters the classified kinds down to registered connectors
// that actually support live fetch.
func (o *Orchestrator) liveFetchKinds(classification domain.ClassificationResult) []domain.SourceKind {
	var kinds []domain.SourceKind
	for _, kind := range classification.Kinds {
		connector, err := o.registry.Get(kind)
		if err != nil {
			continue
		}
		if connector.Capabilities().SupportsLiveFetch {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// vectorSearch embeds the question and queries the index.
func (o *Orchestrator) vectorSearch(ctx context.Context, text string) ([]domain.BundleItem, error) {
	embedding, err := o.embedding.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	hits, err := o.vector.Search(ctx, embedding, o.topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	items := make([]domain.BundleItem, 0, len(hits))
	for _, hit := range hits {
		provenance := hit.Meta.URL
		if provenance == "" {
			provenance = hit.ChunkID
		}
		items = append(items, domain.BundleItem{
			Text:       hit.Meta.Text,
			Kind:       hit.Meta.Kind,
			Provenance: provenance,
			Score:      hit.Score,
		})
	}
	return items, nil
}

// liveFetch runs one source's live query through the cache. The per-fetch
// timeout bounds how long this caller waits; the underlying computation is
// shared with concurrent identical requests and survives this caller's
// deadline.
func (o *Orchestrator) liveFetch(ctx context.Context, kind domain.SourceKind, intent string) ([]domain.Snippet, error) {
	connector, err := o.registry.Get(kind)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.liveTimeout)
	defer cancel()

	compute := func(ctx context.Context) (any, error) {
		return connector.LiveFetch(ctx, intent)
	}

	var result any
	if o.cache != nil {
		key := cache.Key("live", kind.String(), intent)
		result, err = o.cache.GetOrCompute(fetchCtx, key, o.liveTTL, compute)
	} else {
		result, err = compute(fetchCtx)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: live fetch %s", domain.ErrTimeout, kind)
		}
		return nil, err
	}

	snippets, ok := result.([]domain.Snippet)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected cache value for %s", domain.ErrUpstream, kind)
	}
	return snippets, nil
}

// merge assembles the bundle: vector results by score descending first, then
// live snippets grouped by source in classification order, stopping once the
// character budget is reached.
func (o *Orchestrator) merge(
	bundle *domain.ContextBundle,
	vectorItems []domain.BundleItem,
	classification domain.ClassificationResult,
	liveByKind map[domain.SourceKind][]domain.Snippet,
) {
	budget := o.maxChars
	total := 0

	for _, item := range vectorItems {
		if total+len(item.Text) > budget {
			return
		}
		bundle.Items = append(bundle.Items, item)
		total += len(item.Text)
	}

	for _, kind := range classification.Kinds {
		for _, snippet := range liveByKind[kind] {
			if total+len(snippet.Text) > budget {
				return
			}
			provenance := snippet.URL
			if provenance == "" {
				provenance = snippet.Title
			}
			bundle.Items = append(bundle.Items, domain.BundleItem{
				Text:       snippet.Text,
				Kind:       kind,
				Provenance: provenance,
				Live:       true,
			})
			total += len(snippet.Text)
		}
	}
}
