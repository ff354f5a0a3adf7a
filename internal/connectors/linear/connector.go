// Package linear implements the Linear source connector over the Linear
// GraphQL API. It mirrors issues into the index and answers live queries
// about current, high-priority work.
package linear

import (
	"bytes"
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
	"github.com/theotherzach/project-brain-bot/internal/logger"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// DefaultEndpoint is the Linear GraphQL endpoint.
const DefaultEndpoint = "https://api.linear.app/graphql"

// pageSize is how many issues one GraphQL page returns during sync.
const pageSize = 50

// liveFetchLimit caps how many issues one live fetch returns.
const liveFetchLimit = 10

// Connector reads issues from a Linear workspace.
type Connector struct {
	apiKey   string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// Option configures a Connector.
type Option func(*Connector)

// WithEndpoint overrides the GraphQL endpoint (used in tests).
func WithEndpoint(endpoint string) Option {
	return func(c *Connector) { c.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connector) { c.client = client }
}

// New creates a Linear connector.
func New(apiKey string, opts ...Option) (*Connector, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: linear api key required", domain.ErrInvalidInput)
	}
	c := &Connector{
		apiKey:   apiKey,
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		// Linear allows 1500 requests/hour per key; stay well under.
		limiter: rate.NewLimiter(rate.Limit(0.3), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Kind returns the source kind.
func (c *Connector) Kind() domain.SourceKind {
	return domain.SourceLinear
}

// Capabilities returns what this connector supports. Linear reports
// archived and trashed issues through the same feed, so deletions
// propagate as tombstones.
func (c *Connector) Capabilities() driven.ConnectorCapabilities {
	return driven.ConnectorCapabilities{
		SupportsLiveFetch: true,
		SupportsIndexing:  true,
		SupportsDeletions: true,
	}
}

// Close releases resources.
func (c *Connector) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

const liveQuery = `query ActiveIssues($first: Int!) {
  issues(
    first: $first
    orderBy: priority
    filter: { state: { type: { in: ["started", "unstarted"] } } }
  ) {
    nodes {
      identifier
      title
      description
      url
      priorityLabel
      updatedAt
      state { name }
      assignee { name }
    }
  }
}`

// LiveFetch returns the current active issues ordered by priority.
func (c *Connector) LiveFetch(ctx context.Context, _ string) ([]domain.Snippet, error) {
	var result struct {
		Issues struct {
			Nodes []issueNode `json:"nodes"`
		} `json:"issues"`
	}
	vars := map[string]any{"first": liveFetchLimit}
	if err := c.query(ctx, liveQuery, vars, &result); err != nil {
		return nil, err
	}

	snippets := make([]domain.Snippet, 0, len(result.Issues.Nodes))
	for _, node := range result.Issues.Nodes {
		snippets = append(snippets, domain.Snippet{
			Kind:  domain.SourceLinear,
			Title: fmt.Sprintf("%s: %s", node.Identifier, node.Title),
			Text:  node.summary(),
			URL:   node.URL,
		})
	}
	return snippets, nil
}

const syncQuery = `query IssuesSince($first: Int!, $after: String, $since: DateTimeOrDuration!) {
  issues(
    first: $first
    after: $after
    orderBy: updatedAt
    filter: { updatedAt: { gt: $since } }
    includeArchived: true
  ) {
    pageInfo { hasNextPage endCursor }
    nodes {
      id
      identifier
      title
      description
      url
      priorityLabel
      updatedAt
      archivedAt
      trashed
      state { name }
      assignee { name }
    }
  }
}`

// ListDocumentsSince streams issues updated after the given timestamp.
// Archived and trashed issues come through as tombstones.
func (c *Connector) ListDocumentsSince(ctx context.Context, since time.Time) (<-chan domain.DocumentChange, <-chan error) {
	changesCh := make(chan domain.DocumentChange)
	errsCh := make(chan error, 1)

	go func() {
		defer close(changesCh)
		defer close(errsCh)

		var after *string
		for {
			var result struct {
				Issues struct {
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
					Nodes []issueNode `json:"nodes"`
				} `json:"issues"`
			}

			vars := map[string]any{
				"first": pageSize,
				"since": since.UTC().Format(time.RFC3339),
			}
			if after != nil {
				vars["after"] = *after
			}
			if err := c.query(ctx, syncQuery, vars, &result); err != nil {
				errsCh <- err
				return
			}

			for _, node := range result.Issues.Nodes {
				change := domain.DocumentChange{
					Type:     domain.ChangeUpserted,
					Document: node.document(),
				}
				if node.Trashed || node.ArchivedAt != "" {
					change.Type = domain.ChangeDeleted
				}
				select {
				case <-ctx.Done():
					errsCh <- ctx.Err()
					return
				case changesCh <- change:
				}
			}

			if !result.Issues.PageInfo.HasNextPage {
				return
			}
			cursor := result.Issues.PageInfo.EndCursor
			after = &cursor
			logger.Debug("Linear sync: next page after %s", cursor)
		}
	}()

	return changesCh, errsCh
}

// issueNode is the GraphQL issue shape shared by both queries.
type issueNode struct {
	ID            string `json:"id"`
	Identifier    string `json:"identifier"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	URL           string `json:"url"`
	PriorityLabel string `json:"priorityLabel"`
	UpdatedAt     string `json:"updatedAt"`
	ArchivedAt    string `json:"archivedAt"`
	Trashed       bool   `json:"trashed"`
	State         struct {
		Name string `json:"name"`
	} `json:"state"`
	Assignee struct {
		Name string `json:"name"`
	} `json:"assignee"`
}

func (n *issueNode) summary() string {
	text := fmt.Sprintf("[%s] %s", n.State.Name, n.Title)
	if n.PriorityLabel != "" {
		text += " (" + n.PriorityLabel + ")"
	}
	if n.Assignee.Name != "" {
		text += " assigned to " + n.Assignee.Name
	}
	if n.Description != "" {
		desc := n.Description
		if len(desc) > 300 {
			desc = desc[:300] + "..."
		}
		text += "\n" + desc
	}
	return text
}

func (n *issueNode) document() domain.Document {
	updatedAt, _ := time.Parse(time.RFC3339, n.UpdatedAt)

	body := n.Title
	if n.Description != "" {
		body += "\n\n" + n.Description
	}
	body += "\n\nState: " + n.State.Name
	if n.Assignee.Name != "" {
		body += "\nAssignee: " + n.Assignee.Name
	}

	return domain.Document{
		ID:        "linear:" + n.ID,
		Kind:      domain.SourceLinear,
		Title:     fmt.Sprintf("%s: %s", n.Identifier, n.Title),
		Body:      body,
		URL:       n.URL,
		UpdatedAt: updatedAt,
		Metadata: map[string]string{
			"identifier": n.Identifier,
			"state":      n.State.Name,
			"priority":   n.PriorityLabel,
		},
	}
}

// graphQLRequest is the wire shape of one GraphQL call.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// query executes one GraphQL request and decodes the data payload into out.
func (c *Connector) query(ctx context.Context, query string, vars map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return wrapError(err)
	}

	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return wrapError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: linear: status %d", domain.ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: linear: status %d: %s", domain.ErrUpstream, resp.StatusCode, body)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: linear: decode response: %w", domain.ErrUpstream, err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("%w: linear: %s", domain.ErrUpstream, envelope.Errors[0].Message)
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: linear: decode data: %w", domain.ErrUpstream, err)
	}
	return nil
}

// wrapError maps transport errors onto the failure taxonomy.
func wrapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: linear: %w", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: linear: %w", domain.ErrUpstream, err)
}
