// Package github implements the GitHub source connector. It mirrors issues
// and pull requests into the index and answers live queries about open and
// recently updated work.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
	"github.com/theotherzach/project-brain-bot/internal/logger"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// proactiveRate throttles requests below GitHub's secondary limits
// (~1.2 req/sec, well under the 5000/hour authenticated quota).
const proactiveRate = 1.2

// liveFetchLimit caps how many issues one live fetch returns per repo.
const liveFetchLimit = 5

// Connector reads issues and pull requests from a fixed set of repositories.
type Connector struct {
	client  *gh.Client
	repos   []repoRef
	limiter *rate.Limiter
}

type repoRef struct {
	owner string
	name  string
}

// Option configures a Connector.
type Option func(*Connector) error

// WithBaseURL points the client at a different API base (tests, GHES).
func WithBaseURL(baseURL string) Option {
	return func(c *Connector) error {
		client, err := c.client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return fmt.Errorf("set base url: %w", err)
		}
		c.client = client
		return nil
	}
}

// New creates a GitHub connector for the given "owner/name" repositories.
func New(token string, repos []string, opts ...Option) (*Connector, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: github token required", domain.ErrInvalidInput)
	}

	refs := make([]repoRef, 0, len(repos))
	for _, r := range repos {
		owner, name, ok := strings.Cut(r, "/")
		if !ok || owner == "" || name == "" {
			return nil, fmt.Errorf("%w: repository %q is not owner/name", domain.ErrInvalidInput, r)
		}
		refs = append(refs, repoRef{owner: owner, name: name})
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: at least one github repository required", domain.ErrInvalidInput)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), ts)

	c := &Connector{
		client:  gh.NewClient(httpClient),
		repos:   refs,
		limiter: rate.NewLimiter(rate.Limit(proactiveRate), 1),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Kind returns the source kind.
func (c *Connector) Kind() domain.SourceKind {
	return domain.SourceGitHub
}

// Capabilities returns what this connector supports. GitHub never reports
// issue deletions through the list API, so no tombstones.
func (c *Connector) Capabilities() driven.ConnectorCapabilities {
	return driven.ConnectorCapabilities{
		SupportsLiveFetch: true,
		SupportsIndexing:  true,
	}
}

// Close releases resources.
func (c *Connector) Close() error {
	return nil
}

// LiveFetch returns the most recently updated open issues across the
// configured repositories.
func (c *Connector) LiveFetch(ctx context.Context, _ string) ([]domain.Snippet, error) {
	var snippets []domain.Snippet

	for _, repo := range c.repos {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, wrapError(err)
		}

		opts := &gh.IssueListByRepoOptions{
			State:       "open",
			Sort:        "updated",
			Direction:   "desc",
			ListOptions: gh.ListOptions{PerPage: liveFetchLimit},
		}
		issues, resp, err := c.client.Issues.ListByRepo(ctx, repo.owner, repo.name, opts)
		if err != nil {
			return nil, wrapResponseError(err, resp)
		}

		for _, issue := range issues {
			snippets = append(snippets, domain.Snippet{
				Kind:  domain.SourceGitHub,
				Title: fmt.Sprintf("%s/%s#%d: %s", repo.owner, repo.name, issue.GetNumber(), issue.GetTitle()),
				Text:  issueSummary(issue),
				URL:   issue.GetHTMLURL(),
			})
		}
	}

	return snippets, nil
}

// ListDocumentsSince streams issues and pull requests updated after the
// given timestamp, one document per issue.
func (c *Connector) ListDocumentsSince(ctx context.Context, since time.Time) (<-chan domain.DocumentChange, <-chan error) {
	changesCh := make(chan domain.DocumentChange)
	errsCh := make(chan error, 1)

	go func() {
		defer close(changesCh)
		defer close(errsCh)

		for _, repo := range c.repos {
			if err := c.streamRepo(ctx, repo, since, changesCh); err != nil {
				errsCh <- err
				return
			}
		}
	}()

	return changesCh, errsCh
}

// streamRepo pages through one repository's updated issues.
func (c *Connector) streamRepo(ctx context.Context, repo repoRef, since time.Time, out chan<- domain.DocumentChange) error {
	opts := &gh.IssueListByRepoOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "asc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	if !since.IsZero() {
		opts.Since = since
	}

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return wrapError(err)
		}

		issues, resp, err := c.client.Issues.ListByRepo(ctx, repo.owner, repo.name, opts)
		if err != nil {
			return wrapResponseError(err, resp)
		}

		for _, issue := range issues {
			doc := c.document(repo, issue)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- domain.DocumentChange{Type: domain.ChangeUpserted, Document: doc}:
			}
		}

		if resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
		logger.Debug("GitHub %s/%s: next page %d", repo.owner, repo.name, resp.NextPage)
	}
}

// document converts one issue or pull request into a Document.
func (c *Connector) document(repo repoRef, issue *gh.Issue) domain.Document {
	kind := "issue"
	if issue.IsPullRequest() {
		kind = "pull_request"
	}

	labels := make([]string, len(issue.Labels))
	for i, l := range issue.Labels {
		labels[i] = l.GetName()
	}

	var body strings.Builder
	fmt.Fprintf(&body, "%s\n\n", issue.GetTitle())
	if issue.GetBody() != "" {
		body.WriteString(issue.GetBody())
		body.WriteString("\n\n")
	}
	fmt.Fprintf(&body, "State: %s", issue.GetState())
	if len(labels) > 0 {
		fmt.Fprintf(&body, "\nLabels: %s", strings.Join(labels, ", "))
	}

	return domain.Document{
		ID:        fmt.Sprintf("github:%s/%s#%d", repo.owner, repo.name, issue.GetNumber()),
		Kind:      domain.SourceGitHub,
		Title:     issue.GetTitle(),
		Body:      body.String(),
		URL:       issue.GetHTMLURL(),
		UpdatedAt: issue.GetUpdatedAt().Time,
		Metadata: map[string]string{
			"type":   kind,
			"repo":   repo.owner + "/" + repo.name,
			"state":  issue.GetState(),
			"author": issue.GetUser().GetLogin(),
		},
	}
}

// issueSummary builds a short live snippet body for an issue.
func issueSummary(issue *gh.Issue) string {
	body := issue.GetBody()
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	if body == "" {
		return fmt.Sprintf("open, updated %s", issue.GetUpdatedAt().Format(time.RFC3339))
	}
	return body
}

// wrapResponseError maps go-github errors onto the failure taxonomy using
// the response status when available.
func wrapResponseError(err error, resp *gh.Response) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusForbidden:
			return fmt.Errorf("%w: github: %w", domain.ErrRateLimited, err)
		}
	}
	return wrapError(err)
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: github: %w", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: github: %w", domain.ErrUpstream, err)
}
