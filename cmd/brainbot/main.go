// Command brainbot is the project brain bot: it indexes the tools a
// project lives in and answers questions against them.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/theotherzach/project-brain-bot/internal/adapters/driven/embedding/openai"
	"github.com/theotherzach/project-brain-bot/internal/adapters/driven/llm/anthropic"
	"github.com/theotherzach/project-brain-bot/internal/adapters/driven/storage/sqlite"
	vectormem "github.com/theotherzach/project-brain-bot/internal/adapters/driven/vector/memory"
	"github.com/theotherzach/project-brain-bot/internal/adapters/driven/vector/qdrant"
	cachemem "github.com/theotherzach/project-brain-bot/internal/cache/memory"
	"github.com/theotherzach/project-brain-bot/internal/chunker"
	"github.com/theotherzach/project-brain-bot/internal/cli"
	"github.com/theotherzach/project-brain-bot/internal/config"
	"github.com/theotherzach/project-brain-bot/internal/connectors/datadog"
	"github.com/theotherzach/project-brain-bot/internal/connectors/docs"
	"github.com/theotherzach/project-brain-bot/internal/connectors/github"
	"github.com/theotherzach/project-brain-bot/internal/connectors/linear"
	"github.com/theotherzach/project-brain-bot/internal/connectors/mixpanel"
	"github.com/theotherzach/project-brain-bot/internal/connectors/notion"
	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
	"github.com/theotherzach/project-brain-bot/internal/core/services"
	"github.com/theotherzach/project-brain-bot/internal/logger"
)

var version = "dev"

func main() {
	// Missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	svcs, cleanup, err := wire(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	cli.SetVersion(version)
	cli.SetServices(svcs)
	return cli.Execute()
}

func configPath() string {
	if path := os.Getenv("BRAINBOT_CONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "brainbot.toml"
	}
	return filepath.Join(home, ".brainbot", "config.toml")
}

// wire builds the service graph from configuration. Sources without
// credentials are skipped; the engine runs with whatever is configured.
func wire(cfg *config.Config) (*cli.Services, func(), error) {
	connectors, err := buildConnectors(cfg)
	if err != nil {
		return nil, nil, err
	}
	if len(connectors) == 0 {
		logger.Warn("no sources configured; ask will use the vector index only")
	}

	registry, err := services.NewRegistry(connectors...)
	if err != nil {
		return nil, nil, fmt.Errorf("build connector registry: %w", err)
	}

	store, err := sqlite.New(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open state store: %w", err)
	}

	var embeddingService driven.EmbeddingService
	var vectorIndex driven.VectorIndex
	if cfg.OpenAI.APIKey != "" {
		embeddingService, err = openai.New(openai.Config{APIKey: cfg.OpenAI.APIKey})
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("build embedding service: %w", err)
		}
		vectorIndex, err = buildVectorIndex(cfg, embeddingService)
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("build vector index: %w", err)
		}
	} else {
		logger.Warn("no OpenAI API key; vector retrieval and sync disabled")
	}

	var llmService driven.LLMService
	if cfg.Anthropic.APIKey != "" {
		sources := make([]string, 0, len(registry.Kinds()))
		for _, kind := range registry.Kinds() {
			sources = append(sources, kind.String())
		}
		llmService, err = anthropic.New(anthropic.Config{
			APIKey:  cfg.Anthropic.APIKey,
			Model:   cfg.Anthropic.Model,
			Sources: sources,
		})
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("build llm service: %w", err)
		}
	} else {
		logger.Warn("no Anthropic API key; classification falls back to all sources and answers are disabled")
	}

	cache := cachemem.New()

	classifier := services.NewClassifier(llmService, registry, cache)
	if cfg.Retrieval.ClassifyTTL > 0 {
		classifier.SetTTL(cfg.Retrieval.ClassifyTTL)
	}

	orchestrator := services.NewOrchestrator(
		classifier, registry, embeddingService, vectorIndex, cache,
		services.WithInvocationDeadline(cfg.Retrieval.Deadline),
		services.WithLiveFetchTimeout(cfg.Retrieval.LiveFetchTimeout),
		services.WithLiveTTL(cfg.Retrieval.LiveTTL),
		services.WithTopK(cfg.Retrieval.TopK),
		services.WithMaxBundleChars(cfg.Retrieval.MaxBundleChars),
	)

	var runner *services.SyncRunner
	var scheduler *services.Scheduler
	watchCancel := func() {}
	if embeddingService != nil && vectorIndex != nil {
		chunk := chunker.New(
			chunker.WithChunkSize(cfg.Sync.ChunkSize),
			chunker.WithOverlap(cfg.Sync.Overlap),
		)
		runner = services.NewSyncRunner(registry, store, store, chunk, embeddingService, vectorIndex)
		scheduler = services.NewScheduler(runner, registry, store, cfg.Sync.Interval)
		watchCancel = watchDocs(cfg, registry, scheduler)
	}

	cleanup := func() {
		watchCancel()
		registry.Close()
		if llmService != nil {
			llmService.Close()
		}
		if embeddingService != nil {
			embeddingService.Close()
		}
		store.Close()
	}

	svcs := &cli.Services{
		Provider:    orchestrator,
		Registry:    registry,
		SyncHistory: store,
		LLM:         llmService,
		ServeAddr:   cfg.Server.Addr,
	}
	// Typed nils must not leak into the interface fields.
	if runner != nil {
		svcs.SyncRunner = runner
		svcs.Scheduler = scheduler
	}
	return svcs, cleanup, nil
}

func buildConnectors(cfg *config.Config) ([]driven.Connector, error) {
	var connectors []driven.Connector

	if key := cfg.Sources.Linear.APIKey; key != "" {
		c, err := linear.New(key)
		if err != nil {
			return nil, fmt.Errorf("linear connector: %w", err)
		}
		connectors = append(connectors, c)
	}

	if token := cfg.Sources.Notion.Token; token != "" {
		c, err := notion.New(token)
		if err != nil {
			return nil, fmt.Errorf("notion connector: %w", err)
		}
		connectors = append(connectors, c)
	}

	if gh := cfg.Sources.GitHub; gh.Token != "" && len(gh.Repos) > 0 {
		c, err := github.New(gh.Token, gh.Repos)
		if err != nil {
			return nil, fmt.Errorf("github connector: %w", err)
		}
		connectors = append(connectors, c)
	}

	if mp := cfg.Sources.Mixpanel; mp.ServiceAccount != "" && mp.Secret != "" {
		c, err := mixpanel.New(mp.ServiceAccount, mp.Secret, mp.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("mixpanel connector: %w", err)
		}
		connectors = append(connectors, c)
	}

	if dd := cfg.Sources.Datadog; dd.APIKey != "" && dd.AppKey != "" {
		c, err := datadog.New(dd.APIKey, dd.AppKey)
		if err != nil {
			return nil, fmt.Errorf("datadog connector: %w", err)
		}
		connectors = append(connectors, c)
	}

	if dir := cfg.Sources.Docs.Dir; dir != "" {
		c, err := docs.New(dir)
		if err != nil {
			return nil, fmt.Errorf("docs connector: %w", err)
		}
		connectors = append(connectors, c)
	}

	return connectors, nil
}

func buildVectorIndex(cfg *config.Config, embedding driven.EmbeddingService) (driven.VectorIndex, error) {
	if cfg.Qdrant.URL == "" {
		logger.Info("no Qdrant URL; using in-memory vector index")
		return vectormem.New(), nil
	}
	return qdrant.New(context.Background(), qdrant.Config{
		URL:        cfg.Qdrant.URL,
		Collection: cfg.Qdrant.Collection,
		Dimensions: embedding.Dimensions(),
	})
}

// watchDocs triggers a docs sync when local markdown files change, so
// edits land in the index ahead of the next scheduled run.
func watchDocs(cfg *config.Config, registry driven.ConnectorRegistry, scheduler *services.Scheduler) func() {
	if cfg.Sources.Docs.Dir == "" {
		return func() {}
	}
	connector, err := registry.Get(domain.SourceDocs)
	if err != nil {
		return func() {}
	}
	docsConnector, ok := connector.(*docs.Connector)
	if !ok {
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		err := docsConnector.Watch(ctx, 2*time.Second, func() {
			if err := scheduler.TriggerNow(domain.SourceDocs); err != nil {
				logger.Debug("docs watch trigger: %v", err)
			}
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn("docs watcher stopped: %v", err)
		}
	}()
	return cancel
}
