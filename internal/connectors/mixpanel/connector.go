// Package mixpanel implements the Mixpanel source connector. Mixpanel data
// is aggregate and constantly moving, so the connector is live-only: it
// answers usage questions with current event counts and is never indexed.
package mixpanel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// DefaultBaseURL is the Mixpanel query API base.
const DefaultBaseURL = "https://mixpanel.com/api/2.0"

// topEventsLimit caps how many events one live fetch reports.
const topEventsLimit = 10

// Connector queries the Mixpanel aggregate event API with a service
// account.
type Connector struct {
	username  string
	secret    string
	projectID string
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
}

// Option configures a Connector.
type Option func(*Connector)

// WithBaseURL overrides the API base URL (used in tests).
func WithBaseURL(baseURL string) Option {
	return func(c *Connector) { c.baseURL = baseURL }
}

// New creates a Mixpanel connector using service account credentials.
func New(username, secret, projectID string, opts ...Option) (*Connector, error) {
	if username == "" || secret == "" {
		return nil, fmt.Errorf("%w: mixpanel service account credentials required", domain.ErrInvalidInput)
	}
	c := &Connector{
		username:  username,
		secret:    secret,
		projectID: projectID,
		baseURL:   DefaultBaseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(1), 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Kind returns the source kind.
func (c *Connector) Kind() domain.SourceKind {
	return domain.SourceMixpanel
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

// LiveFetch returns the project's top events over the last 7 days.
func (c *Connector) LiveFetch(ctx context.Context, _ string) ([]domain.Snippet, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, wrapError(err)
	}

	params := url.Values{
		"type":  {"general"},
		"limit": {strconv.Itoa(topEventsLimit)},
	}
	if c.projectID != "" {
		params.Set("project_id", c.projectID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/events/top?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.secret)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, wrapError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: mixpanel: status %d", domain.ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: mixpanel: status %d: %s", domain.ErrUpstream, resp.StatusCode, body)
	}

	var result struct {
		Events []struct {
			Event  string  `json:"event"`
			Amount int64   `json:"amount"`
			Change float64 `json:"percent_change"`
		} `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: mixpanel: decode response: %w", domain.ErrUpstream, err)
	}

	sort.Slice(result.Events, func(i, j int) bool {
		return result.Events[i].Amount > result.Events[j].Amount
	})

	snippets := make([]domain.Snippet, 0, len(result.Events))
	for _, event := range result.Events {
		snippets = append(snippets, domain.Snippet{
			Kind:  domain.SourceMixpanel,
			Title: event.Event,
			Text: fmt.Sprintf("%s: %d events this week (%+.1f%% vs previous)",
				event.Event, event.Amount, event.Change*100),
		})
	}
	return snippets, nil
}

// ListDocumentsSince is unsupported: Mixpanel data is live-only.
func (c *Connector) ListDocumentsSince(_ context.Context, _ time.Time) (<-chan domain.DocumentChange, <-chan error) {
	changesCh := make(chan domain.DocumentChange)
	errsCh := make(chan error, 1)
	errsCh <- fmt.Errorf("%w: mixpanel does not support indexing", domain.ErrNotSupported)
	close(changesCh)
	close(errsCh)
	return changesCh, errsCh
}

func wrapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: mixpanel: %w", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: mixpanel: %w", domain.ErrUpstream, err)
}
