// Package notion implements the Notion source connector using the Notion
// search and block APIs. It mirrors workspace pages into the index and
// answers live queries with recently edited pages.
package notion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"golang.org/x/time/rate"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
	"github.com/theotherzach/project-brain-bot/internal/logger"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// pageSize is how many search results one page returns during sync.
const pageSize = 50

// liveFetchLimit caps how many pages one live fetch returns.
const liveFetchLimit = 5

// maxBlockDepth bounds recursive block traversal when reading page bodies.
const maxBlockDepth = 2

// Connector reads pages shared with the integration.
type Connector struct {
	client  *notionapi.Client
	limiter *rate.Limiter
}

// New creates a Notion connector.
func New(token string) (*Connector, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: notion token required", domain.ErrInvalidInput)
	}
	return &Connector{
		client: notionapi.NewClient(notionapi.Token(token)),
		// Notion allows an average of 3 requests/second.
		limiter: rate.NewLimiter(rate.Limit(3), 3),
	}, nil
}

// Kind returns the source kind.
func (c *Connector) Kind() domain.SourceKind {
	return domain.SourceNotion
}

// Capabilities returns what this connector supports. The search API still
// returns archived pages, so deletions propagate as tombstones.
func (c *Connector) Capabilities() driven.ConnectorCapabilities {
	return driven.ConnectorCapabilities{
		SupportsLiveFetch: true,
		SupportsIndexing:  true,
		SupportsDeletions: true,
	}
}

// Close releases resources.
func (c *Connector) Close() error {
	return nil
}

// LiveFetch searches pages matching the retrieval intent, falling back to
// the most recently edited pages when the intent is empty.
func (c *Connector) LiveFetch(ctx context.Context, intent string) ([]domain.Snippet, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, wrapError(err)
	}

	req := &notionapi.SearchRequest{
		Query:    intent,
		PageSize: liveFetchLimit,
		Filter:   notionapi.SearchFilter{Value: "page", Property: "object"},
		Sort: &notionapi.SortObject{
			Direction: notionapi.SortOrderDESC,
			Timestamp: notionapi.TimestampLastEdited,
		},
	}
	resp, err := c.client.Search.Do(ctx, req)
	if err != nil {
		return nil, wrapError(err)
	}

	var snippets []domain.Snippet
	for _, result := range resp.Results {
		page, ok := result.(*notionapi.Page)
		if !ok || page.Archived {
			continue
		}
		snippets = append(snippets, domain.Snippet{
			Kind:  domain.SourceNotion,
			Title: pageTitle(page),
			Text:  fmt.Sprintf("%s (edited %s)", pageTitle(page), page.LastEditedTime.Format(time.RFC3339)),
			URL:   page.URL,
		})
	}
	return snippets, nil
}

// ListDocumentsSince streams pages edited after the given timestamp.
// The search API sorts by last edited time but cannot filter on it, so
// paging stops at the first page at or before the checkpoint.
func (c *Connector) ListDocumentsSince(ctx context.Context, since time.Time) (<-chan domain.DocumentChange, <-chan error) {
	changesCh := make(chan domain.DocumentChange)
	errsCh := make(chan error, 1)

	go func() {
		defer close(changesCh)
		defer close(errsCh)

		var cursor notionapi.Cursor
		for {
			if err := c.limiter.Wait(ctx); err != nil {
				errsCh <- wrapError(err)
				return
			}

			req := &notionapi.SearchRequest{
				PageSize:    pageSize,
				StartCursor: cursor,
				Filter:      notionapi.SearchFilter{Value: "page", Property: "object"},
				Sort: &notionapi.SortObject{
					Direction: notionapi.SortOrderDESC,
					Timestamp: notionapi.TimestampLastEdited,
				},
			}
			resp, err := c.client.Search.Do(ctx, req)
			if err != nil {
				errsCh <- wrapError(err)
				return
			}

			for _, result := range resp.Results {
				page, ok := result.(*notionapi.Page)
				if !ok {
					continue
				}
				if !page.LastEditedTime.After(since) {
					// Results are newest first; everything from here
					// on is already indexed.
					return
				}

				change, err := c.pageChange(ctx, page)
				if err != nil {
					errsCh <- err
					return
				}
				select {
				case <-ctx.Done():
					errsCh <- ctx.Err()
					return
				case changesCh <- change:
				}
			}

			if !resp.HasMore {
				return
			}
			cursor = resp.NextCursor
			logger.Debug("Notion sync: next cursor %s", cursor)
		}
	}()

	return changesCh, errsCh
}

// pageChange converts one page into a document change, reading its block
// content for upserts.
func (c *Connector) pageChange(ctx context.Context, page *notionapi.Page) (domain.DocumentChange, error) {
	doc := domain.Document{
		ID:        "notion:" + page.ID.String(),
		Kind:      domain.SourceNotion,
		Title:     pageTitle(page),
		URL:       page.URL,
		UpdatedAt: page.LastEditedTime,
		Metadata: map[string]string{
			"created": page.CreatedTime.Format(time.RFC3339),
		},
	}

	if page.Archived {
		return domain.DocumentChange{Type: domain.ChangeDeleted, Document: doc}, nil
	}

	body, err := c.pageBody(ctx, notionapi.BlockID(page.ID), 0)
	if err != nil {
		return domain.DocumentChange{}, err
	}
	doc.Body = doc.Title + "\n\n" + body
	return domain.DocumentChange{Type: domain.ChangeUpserted, Document: doc}, nil
}

// pageBody reads a page's block tree into plain text.
func (c *Connector) pageBody(ctx context.Context, id notionapi.BlockID, depth int) (string, error) {
	if depth > maxBlockDepth {
		return "", nil
	}

	var sb strings.Builder
	var cursor notionapi.Cursor
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", wrapError(err)
		}

		resp, err := c.client.Block.GetChildren(ctx, id, &notionapi.Pagination{
			StartCursor: cursor,
			PageSize:    100,
		})
		if err != nil {
			return "", wrapError(err)
		}

		for _, block := range resp.Results {
			if text := blockText(block); text != "" {
				sb.WriteString(text)
				sb.WriteString("\n\n")
			}
			if block.GetHasChildren() {
				child, err := c.pageBody(ctx, notionapi.BlockID(block.GetID()), depth+1)
				if err != nil {
					return "", err
				}
				sb.WriteString(child)
			}
		}

		if !resp.HasMore {
			break
		}
		cursor = notionapi.Cursor(resp.NextCursor)
	}

	return sb.String(), nil
}

// blockText extracts plain text from the block types worth indexing.
func blockText(block notionapi.Block) string {
	switch b := block.(type) {
	case *notionapi.ParagraphBlock:
		return richText(b.Paragraph.RichText)
	case *notionapi.Heading1Block:
		return richText(b.Heading1.RichText)
	case *notionapi.Heading2Block:
		return richText(b.Heading2.RichText)
	case *notionapi.Heading3Block:
		return richText(b.Heading3.RichText)
	case *notionapi.BulletedListItemBlock:
		return richText(b.BulletedListItem.RichText)
	case *notionapi.NumberedListItemBlock:
		return richText(b.NumberedListItem.RichText)
	case *notionapi.ToDoBlock:
		return richText(b.ToDo.RichText)
	case *notionapi.QuoteBlock:
		return richText(b.Quote.RichText)
	case *notionapi.CalloutBlock:
		return richText(b.Callout.RichText)
	case *notionapi.CodeBlock:
		return richText(b.Code.RichText)
	default:
		return ""
	}
}

// richText joins rich text spans into a plain string.
func richText(spans []notionapi.RichText) string {
	var sb strings.Builder
	for _, span := range spans {
		sb.WriteString(span.PlainText)
	}
	return sb.String()
}

// pageTitle finds the page's title property.
func pageTitle(page *notionapi.Page) string {
	for _, prop := range page.Properties {
		if title, ok := prop.(*notionapi.TitleProperty); ok {
			return richText(title.Title)
		}
	}
	return "Untitled"
}

// wrapError maps Notion client errors onto the failure taxonomy.
func wrapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: notion: %w", domain.ErrTimeout, err)
	}
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) && apiErr.Status == 429 {
		return fmt.Errorf("%w: notion: %w", domain.ErrRateLimited, err)
	}
	return fmt.Errorf("%w: notion: %w", domain.ErrUpstream, err)
}
