// Package anthropic provides the LLM service adapter using the Anthropic
// Messages API. It implements source classification and answer synthesis.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
)

// Ensure Service implements the interface.
var _ driven.LLMService = (*Service)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-sonnet-4-5"
	DefaultTimeout = 120 * time.Second

	// anthropicVersion is the required API version header.
	anthropicVersion = "2023-06-01"
)

const classifyPrompt = `You route questions about a software project to the
data sources that can answer them. Available sources:
%s

Respond with JSON only, no prose:
{"sources": ["..."], "intent": "<short retrieval intent, e.g. 'open P0 issues'>"}

Question: %s`

// sourceDescriptions documents each known kind for the routing prompt.
var sourceDescriptions = map[string]string{
	"linear":   "project management, issues, tasks, sprints, priorities",
	"notion":   "documentation, specs, meeting notes, plans",
	"github":   "code, pull requests, commits, technical implementation",
	"mixpanel": "product analytics, user behaviour, funnels, retention",
	"datadog":  "infrastructure, errors, alerts, performance, uptime",
	"docs":     "local project documentation files",
}

// sourceLines renders the prompt's source list for the configured names, so
// the model is only offered sources that are actually registered.
func sourceLines(names []string) string {
	if len(names) == 0 {
		names = []string{"linear", "notion", "github", "mixpanel", "datadog", "docs"}
	}
	lines := make([]string, 0, len(names))
	for _, name := range names {
		desc, ok := sourceDescriptions[name]
		if !ok {
			desc = "additional project data"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", name, desc))
	}
	return strings.Join(lines, "\n")
}

const answerSystem = `You are a project knowledge assistant. Answer using
only the provided context. If the context does not contain the answer, say
so plainly. Cite source URLs when present. Be concise.`

// Config holds configuration for the Anthropic service.
type Config struct {
	// APIKey is the Anthropic API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.anthropic.com).
	BaseURL string

	// Model is the model name.
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration

	// Sources are the registered source names offered to the routing
	// prompt (default: all known kinds).
	Sources []string
}

// Service provides LLM operations using the Anthropic API.
type Service struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	sourceList string
}

// messagesRequest is the Anthropic /v1/messages request format.
type messagesRequest struct {
	Model     string            `json:"model"`
	Messages  []messagesMessage `json:"messages"`
	MaxTokens int               `json:"max_tokens"`
	System    string            `json:"system,omitempty"`
}

// messagesMessage is the Anthropic message format.
type messagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse is the Anthropic /v1/messages response format.
type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// New creates a new Anthropic LLM service.
func New(cfg Config) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Service{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		sourceList: sourceLines(cfg.Sources),
	}, nil
}

// ClassifySources maps a question to relevant source names and a retrieval
// intent. An unparseable model response is an error; the classifier service
// handles the fallback.
func (s *Service) ClassifySources(ctx context.Context, question string) (driven.SourceClassification, error) {
	text, err := s.complete(ctx, "", fmt.Sprintf(classifyPrompt, s.sourceList, question), 256)
	if err != nil {
		return driven.SourceClassification{}, err
	}

	var parsed struct {
		Sources []string `json:"sources"`
		Intent  string   `json:"intent"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil {
		return driven.SourceClassification{}, fmt.Errorf("anthropic: unparseable classification %q: %w", text, err)
	}

	return driven.SourceClassification{
		Sources: parsed.Sources,
		Intent:  parsed.Intent,
	}, nil
}

// Answer synthesises an answer from the question and assembled context.
func (s *Service) Answer(ctx context.Context, question, contextText string) (string, error) {
	prompt := question
	if contextText != "" {
		prompt = fmt.Sprintf("Context:\n\n%s\n\n---\n\nQuestion: %s", contextText, question)
	}
	return s.complete(ctx, answerSystem, prompt, 1024)
}

// Ping validates the API key with a minimal request.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.complete(ctx, "", "ping", 1)
	return err
}

// Close releases resources.
func (s *Service) Close() error {
	return nil
}

// complete issues one messages request and returns the concatenated text
// content.
func (s *Service) complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	jsonBody, err := json.Marshal(messagesRequest{
		Model:     s.model,
		System:    system,
		MaxTokens: maxTokens,
		Messages:  []messagesMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, s.baseURL+"/v1/messages", bytes.NewReader(jsonBody),
	)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if msgResp.Error != nil {
		return "", fmt.Errorf("anthropic error: %s", msgResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic error (status %d): %s", resp.StatusCode, string(body))
	}

	var sb strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// extractJSON pulls the first JSON object out of a model response that may
// wrap it in prose or a code fence.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}
