// Package config loads the bot configuration from a TOML file with
// environment variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full bot configuration.
type Config struct {
	// DataDir holds the SQLite database. Defaults to ~/.brainbot/data.
	DataDir string `toml:"data_dir"`

	Server    Server    `toml:"server"`
	Retrieval Retrieval `toml:"retrieval"`
	Sync      Sync      `toml:"sync"`
	Sources   Sources   `toml:"sources"`
	OpenAI    OpenAI    `toml:"openai"`
	Anthropic Anthropic `toml:"anthropic"`
	Qdrant    Qdrant    `toml:"qdrant"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `toml:"addr"`
}

// Retrieval configures the context orchestrator.
type Retrieval struct {
	TopK             int           `toml:"top_k"`
	MaxBundleChars   int           `toml:"max_bundle_chars"`
	LiveFetchTimeout time.Duration `toml:"live_fetch_timeout"`
	LiveTTL          time.Duration `toml:"live_ttl"`
	Deadline         time.Duration `toml:"deadline"`
	ClassifyTTL      time.Duration `toml:"classify_ttl"`
}

// Sync configures the background sync scheduler and chunking pipeline.
type Sync struct {
	Interval  time.Duration `toml:"interval"`
	ChunkSize int           `toml:"chunk_size"`
	Overlap   int           `toml:"overlap"`
}

// Sources configures the per-source connectors. A source with no
// credentials is simply not registered.
type Sources struct {
	Linear   LinearSource   `toml:"linear"`
	Notion   NotionSource   `toml:"notion"`
	GitHub   GitHubSource   `toml:"github"`
	Mixpanel MixpanelSource `toml:"mixpanel"`
	Datadog  DatadogSource  `toml:"datadog"`
	Docs     DocsSource     `toml:"docs"`
}

// LinearSource configures the Linear connector.
type LinearSource struct {
	APIKey string `toml:"api_key"`
}

// NotionSource configures the Notion connector.
type NotionSource struct {
	Token string `toml:"token"`
}

// GitHubSource configures the GitHub connector.
type GitHubSource struct {
	Token string   `toml:"token"`
	Repos []string `toml:"repos"`
}

// MixpanelSource configures the Mixpanel connector.
type MixpanelSource struct {
	ServiceAccount string `toml:"service_account"`
	Secret         string `toml:"secret"`
	ProjectID      string `toml:"project_id"`
}

// DatadogSource configures the Datadog connector.
type DatadogSource struct {
	APIKey string `toml:"api_key"`
	AppKey string `toml:"app_key"`
}

// DocsSource configures the local documentation connector.
type DocsSource struct {
	Dir string `toml:"dir"`
}

// OpenAI configures the embedding service.
type OpenAI struct {
	APIKey string `toml:"api_key"`
}

// Anthropic configures the LLM service.
type Anthropic struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// Qdrant configures the vector index. An empty URL selects the in-memory
// index.
type Qdrant struct {
	URL        string `toml:"url"`
	Collection string `toml:"collection"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Server: Server{Addr: ":8080"},
		Retrieval: Retrieval{
			TopK:             8,
			MaxBundleChars:   12000,
			LiveFetchTimeout: 10 * time.Second,
			LiveTTL:          60 * time.Second,
			Deadline:         15 * time.Second,
			ClassifyTTL:      time.Hour,
		},
		Sync: Sync{
			Interval:  30 * time.Minute,
			ChunkSize: 1000,
			Overlap:   200,
		},
		Qdrant: Qdrant{Collection: "brainbot"},
	}
}

// Load reads the configuration file at path, or ~/.brainbot/config.toml
// when path is empty, and applies environment overrides on top. A missing
// file is not an error: defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".brainbot", "config.toml")
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays secrets and endpoints from the environment. Env always
// wins over the file, so deployments can keep credentials out of it.
func (c *Config) applyEnv() {
	envString(&c.Sources.Linear.APIKey, "LINEAR_API_KEY")
	envString(&c.Sources.Notion.Token, "NOTION_TOKEN")
	envString(&c.Sources.GitHub.Token, "GITHUB_TOKEN")
	envString(&c.Sources.Mixpanel.ServiceAccount, "MIXPANEL_SERVICE_ACCOUNT")
	envString(&c.Sources.Mixpanel.Secret, "MIXPANEL_SECRET")
	envString(&c.Sources.Mixpanel.ProjectID, "MIXPANEL_PROJECT_ID")
	envString(&c.Sources.Datadog.APIKey, "DATADOG_API_KEY")
	envString(&c.Sources.Datadog.AppKey, "DATADOG_APP_KEY")
	envString(&c.Sources.Docs.Dir, "DOCS_DIR")
	envString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	envString(&c.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	envString(&c.Anthropic.Model, "ANTHROPIC_MODEL")
	envString(&c.Qdrant.URL, "QDRANT_URL")
	envString(&c.Server.Addr, "BRAINBOT_ADDR")
	envString(&c.DataDir, "BRAINBOT_DATA_DIR")

	if repos := os.Getenv("GITHUB_REPOS"); repos != "" {
		c.Sources.GitHub.Repos = splitAndTrim(repos)
	}
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
