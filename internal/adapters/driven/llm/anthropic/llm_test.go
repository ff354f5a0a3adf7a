package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestService points a Service at a stub messages endpoint returning the
// given text block.
func newTestService(t *testing.T, replyText string) *Service {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		resp := map[string]any{
			"content": []map[string]any{{"type": "text", "text": replyText}},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(server.Close)

	svc, err := New(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)
	return svc
}

func TestClassifySourcesParsesJSON(t *testing.T) {
	svc := newTestService(t, `{"sources": ["linear", "datadog"], "intent": "active alerts"}`)

	result, err := svc.ClassifySources(context.Background(), "are there any active alerts?")
	require.NoError(t, err)
	assert.Equal(t, []string{"linear", "datadog"}, result.Sources)
	assert.Equal(t, "active alerts", result.Intent)
}

func TestClassifySourcesStripsCodeFence(t *testing.T) {
	svc := newTestService(t, "```json\n{\"sources\": [\"github\"], \"intent\": \"recent PRs\"}\n```")

	result, err := svc.ClassifySources(context.Background(), "what merged recently?")
	require.NoError(t, err)
	assert.Equal(t, []string{"github"}, result.Sources)
}

func TestClassifySourcesUnparseableIsError(t *testing.T) {
	svc := newTestService(t, "I think you should check Linear for this one.")

	_, err := svc.ClassifySources(context.Background(), "what's in flight?")
	require.Error(t, err)
}

func TestAnswerIncludesContext(t *testing.T) {
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotPrompt = req.Messages[0].Content

		resp := map[string]any{
			"content": []map[string]any{{"type": "text", "text": "the answer"}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	svc, err := New(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	answer, err := svc.Answer(context.Background(), "what is the plan?", "[NOTION] Q3 roadmap")
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)
	assert.Contains(t, gotPrompt, "[NOTION] Q3 roadmap")
	assert.Contains(t, gotPrompt, "what is the plan?")
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestClassifyPromptOffersOnlyConfiguredSources(t *testing.T) {
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotPrompt = req.Messages[0].Content

		resp := map[string]any{
			"content": []map[string]any{{"type": "text", "text": `{"sources": ["github"], "intent": "recent PRs"}`}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	svc, err := New(Config{APIKey: "k", BaseURL: server.URL, Sources: []string{"github", "docs"}})
	require.NoError(t, err)

	_, err = svc.ClassifySources(context.Background(), "what merged recently?")
	require.NoError(t, err)
	assert.Contains(t, gotPrompt, "- github:")
	assert.Contains(t, gotPrompt, "- docs:")
	assert.NotContains(t, gotPrompt, "mixpanel")
	assert.NotContains(t, gotPrompt, "linear")
}

func TestClassifyPromptDefaultsToAllKnownSources(t *testing.T) {
	list := sourceLines(nil)
	for _, name := range []string{"linear", "notion", "github", "mixpanel", "datadog", "docs"} {
		assert.Contains(t, list, "- "+name+":")
	}
}
