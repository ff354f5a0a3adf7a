package linear

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
)

// graphqlStub serves canned GraphQL responses keyed by operation name.
func graphqlStub(t *testing.T, respond func(query string, vars map[string]any) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NotEmpty(t, r.Header.Get("Authorization"))

		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		fmt.Fprint(w, respond(req.Query, req.Variables))
	}))
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCapabilities(t *testing.T) {
	c, err := New("lin_api_test")
	require.NoError(t, err)

	caps := c.Capabilities()
	assert.True(t, caps.SupportsLiveFetch)
	assert.True(t, caps.SupportsIndexing)
	assert.True(t, caps.SupportsDeletions)
}

func TestLiveFetch(t *testing.T) {
	server := graphqlStub(t, func(_ string, vars map[string]any) string {
		assert.EqualValues(t, 10, vars["first"])
		return `{"data":{"issues":{"nodes":[
			{"identifier":"ENG-42","title":"Login broken","description":"Users locked out",
			 "url":"https://linear.app/acme/issue/ENG-42","priorityLabel":"Urgent",
			 "state":{"name":"In Progress"},"assignee":{"name":"Sam"}}
		]}}}`
	})
	defer server.Close()

	c, err := New("lin_api_test", WithEndpoint(server.URL))
	require.NoError(t, err)

	snippets, err := c.LiveFetch(context.Background(), "open P0 issues")
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "ENG-42: Login broken", snippets[0].Title)
	assert.Contains(t, snippets[0].Text, "[In Progress]")
	assert.Contains(t, snippets[0].Text, "Urgent")
	assert.Contains(t, snippets[0].Text, "assigned to Sam")
	assert.Equal(t, domain.SourceLinear, snippets[0].Kind)
}

func TestLiveFetchRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, err := New("lin_api_test", WithEndpoint(server.URL))
	require.NoError(t, err)

	_, err = c.LiveFetch(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestLiveFetchGraphQLError(t *testing.T) {
	server := graphqlStub(t, func(_ string, _ map[string]any) string {
		return `{"errors":[{"message":"invalid api key"}]}`
	})
	defer server.Close()

	c, err := New("lin_api_test", WithEndpoint(server.URL))
	require.NoError(t, err)

	_, err = c.LiveFetch(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrUpstream)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestListDocumentsSincePaginates(t *testing.T) {
	page := 0
	server := graphqlStub(t, func(_ string, vars map[string]any) string {
		page++
		assert.NotEmpty(t, vars["since"])
		if page == 1 {
			assert.Nil(t, vars["after"])
			return `{"data":{"issues":{
				"pageInfo":{"hasNextPage":true,"endCursor":"cur-1"},
				"nodes":[
					{"id":"uuid-1","identifier":"ENG-1","title":"First","description":"d1",
					 "url":"u1","updatedAt":"2026-06-01T10:00:00Z","state":{"name":"Todo"}}
				]}}}`
		}
		assert.Equal(t, "cur-1", vars["after"])
		return `{"data":{"issues":{
			"pageInfo":{"hasNextPage":false,"endCursor":""},
			"nodes":[
				{"id":"uuid-2","identifier":"ENG-2","title":"Second","trashed":true,
				 "url":"u2","updatedAt":"2026-06-01T11:00:00Z","state":{"name":"Done"}}
			]}}}`
	})
	defer server.Close()

	c, err := New("lin_api_test", WithEndpoint(server.URL))
	require.NoError(t, err)
	c.limiter.SetLimit(rate.Inf)

	since := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	changesCh, errsCh := c.ListDocumentsSince(context.Background(), since)

	var changes []domain.DocumentChange
	for change := range changesCh {
		changes = append(changes, change)
	}
	require.NoError(t, <-errsCh)

	require.Len(t, changes, 2)
	assert.Equal(t, domain.ChangeUpserted, changes[0].Type)
	assert.Equal(t, "linear:uuid-1", changes[0].Document.ID)
	assert.Equal(t, "ENG-1: First", changes[0].Document.Title)
	assert.Equal(t, time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC), changes[0].Document.UpdatedAt)

	assert.Equal(t, domain.ChangeDeleted, changes[1].Type, "trashed issues become tombstones")
	assert.Equal(t, "linear:uuid-2", changes[1].Document.ID)
	assert.Equal(t, 2, page)
}

func TestListDocumentsSinceFeedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, err := New("lin_api_test", WithEndpoint(server.URL))
	require.NoError(t, err)

	changesCh, errsCh := c.ListDocumentsSince(context.Background(), time.Time{})
	for range changesCh {
	}
	assert.ErrorIs(t, <-errsCh, domain.ErrUpstream)
}
