// Package datadog implements the Datadog source connector. Monitor states
// are only meaningful at the moment of asking, so the connector is
// live-only: it reports currently alerting monitors and is never indexed.
package datadog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// DefaultBaseURL is the Datadog API base for the US1 site.
const DefaultBaseURL = "https://api.datadoghq.com"

// Connector queries the Datadog monitors API.
type Connector struct {
	apiKey  string
	appKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// Option configures a Connector.
type Option func(*Connector)

// WithBaseURL overrides the API base URL (other Datadog sites, tests).
func WithBaseURL(baseURL string) Option {
	return func(c *Connector) { c.baseURL = baseURL }
}

// New creates a Datadog connector.
func New(apiKey, appKey string, opts ...Option) (*Connector, error) {
	if apiKey == "" || appKey == "" {
		return nil, fmt.Errorf("%w: datadog api and application keys required", domain.ErrInvalidInput)
	}
	c := &Connector{
		apiKey:  apiKey,
		appKey:  appKey,
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(2), 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Kind returns the source kind.
func (c *Connector) Kind() domain.SourceKind {
	return domain.SourceDatadog
}

// Capabilities returns what this connector supports: live fetch only.
func (c *Connector) Capabilities() driven.ConnectorCapabilities {
	return driven.ConnectorCapabilities{SupportsLiveFetch: true}
}

// Close releases resources.
func (c *Connector) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// monitor is the subset of the Datadog monitor payload we report on.
type monitor struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Message      string `json:"message"`
	OverallState string `json:"overall_state"`
}

// LiveFetch returns monitors currently in alert or warn state.
func (c *Connector) LiveFetch(ctx context.Context, _ string) ([]domain.Snippet, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, wrapError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/monitor?group_states=alert,warn", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("DD-API-KEY", c.apiKey)
	req.Header.Set("DD-APPLICATION-KEY", c.appKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, wrapError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: datadog: status %d", domain.ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: datadog: status %d: %s", domain.ErrUpstream, resp.StatusCode, body)
	}

	var monitors []monitor
	if err := json.NewDecoder(resp.Body).Decode(&monitors); err != nil {
		return nil, fmt.Errorf("%w: datadog: decode response: %w", domain.ErrUpstream, err)
	}

	var snippets []domain.Snippet
	for _, m := range monitors {
		if m.OverallState != "Alert" && m.OverallState != "Warn" {
			continue
		}
		message := m.Message
		if len(message) > 300 {
			message = message[:300] + "..."
		}
		snippets = append(snippets, domain.Snippet{
			Kind:  domain.SourceDatadog,
			Title: fmt.Sprintf("[%s] %s", m.OverallState, m.Name),
			Text:  fmt.Sprintf("Monitor %q is in %s state. %s", m.Name, m.OverallState, message),
			URL:   fmt.Sprintf("%s/monitors/%d", c.baseURL, m.ID),
		})
	}

	if len(snippets) == 0 {
		snippets = append(snippets, domain.Snippet{
			Kind:  domain.SourceDatadog,
			Title: "All clear",
			Text:  "No monitors are currently alerting.",
		})
	}
	return snippets, nil
}

// ListDocumentsSince is unsupported: monitor states are live-only.
func (c *Connector) ListDocumentsSince(_ context.Context, _ time.Time) (<-chan domain.DocumentChange, <-chan error) {
	changesCh := make(chan domain.DocumentChange)
	errsCh := make(chan error, 1)
	errsCh <- fmt.Errorf("%w: datadog does not support indexing", domain.ErrNotSupported)
	close(changesCh)
	close(errsCh)
	return changesCh, errsCh
}

func wrapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: datadog: %w", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: datadog: %w", domain.ErrUpstream, err)
}
