package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driving"
)

type stubProvider struct {
	bundle   *domain.ContextBundle
	err      error
	question domain.Question
}

func (s *stubProvider) Gather(_ context.Context, q domain.Question) (*domain.ContextBundle, error) {
	s.question = q
	if s.err != nil {
		return nil, s.err
	}
	return s.bundle, nil
}

type stubScheduler struct {
	statuses  map[domain.SourceKind]driving.SyncStatus
	triggered []domain.SourceKind
	resumed   []domain.SourceKind
}

func (s *stubScheduler) Start(context.Context) error { return nil }
func (s *stubScheduler) Stop() error                 { return nil }

func (s *stubScheduler) TriggerNow(kind domain.SourceKind) error {
	if _, ok := s.statuses[kind]; !ok {
		return domain.ErrNotFound
	}
	s.triggered = append(s.triggered, kind)
	return nil
}

func (s *stubScheduler) Resume(kind domain.SourceKind) error {
	if _, ok := s.statuses[kind]; !ok {
		return domain.ErrNotFound
	}
	s.resumed = append(s.resumed, kind)
	return nil
}

func (s *stubScheduler) Status(kind domain.SourceKind) (driving.SyncStatus, error) {
	status, ok := s.statuses[kind]
	if !ok {
		return driving.SyncStatus{}, domain.ErrNotFound
	}
	return status, nil
}

type stubLLM struct {
	answer      string
	answerErr   error
	gotQuestion string
	gotContext  string
}

func (s *stubLLM) ClassifySources(context.Context, string) (driven.SourceClassification, error) {
	return driven.SourceClassification{}, nil
}

func (s *stubLLM) Answer(_ context.Context, question, contextText string) (string, error) {
	s.gotQuestion = question
	s.gotContext = contextText
	return s.answer, s.answerErr
}

func (s *stubLLM) Ping(context.Context) error { return nil }
func (s *stubLLM) Close() error               { return nil }

func newServer(provider driving.ContextProvider, scheduler driving.Scheduler, llm driven.LLMService) *httptest.Server {
	return httptest.NewServer(NewRouter(NewHandler(provider, scheduler, llm)))
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	srv := newServer(&stubProvider{}, &stubScheduler{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAsk(t *testing.T) {
	bundle := &domain.ContextBundle{
		Items: fixtureItems(),
		Failures: map[domain.SourceKind]string{
			domain.SourceDatadog: "rate limited",
		},
	}

	provider := &stubProvider{bundle: bundle}
	llm := &stubLLM{answer: "ENG-42 ships this sprint."}
	srv := newServer(provider, &stubScheduler{}, llm)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/ask", AskRequest{Question: "what ships next?", UserID: "U123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[AskResponse](t, resp)
	assert.Equal(t, "ENG-42 ships this sprint.", body.Answer)
	require.Len(t, body.Items, 2)
	assert.Equal(t, "linear", body.Items[0].Source)
	assert.False(t, body.Items[0].Live)
	assert.True(t, body.Items[1].Live)
	assert.Equal(t, "rate limited", body.Failures["datadog"])
	assert.False(t, body.Degraded)

	assert.Equal(t, "what ships next?", provider.question.Text)
	assert.Equal(t, "U123", provider.question.UserID)
	assert.NotEmpty(t, provider.question.ID)

	assert.Equal(t, "what ships next?", llm.gotQuestion)
	assert.Contains(t, llm.gotContext, "[linear https://linear.app/issue/ENG-42]")
	assert.Contains(t, llm.gotContext, "Ship the retrieval engine")
}

func fixtureItems() []domain.BundleItem {
	return []domain.BundleItem{
		{
			Text:       "Ship the retrieval engine",
			Kind:       domain.SourceLinear,
			Provenance: "https://linear.app/issue/ENG-42",
			Score:      0.91,
		},
		{
			Text:       "Deploy runbook updated last week",
			Kind:       domain.SourceNotion,
			Provenance: "https://notion.so/runbook",
			Live:       true,
		},
	}
}

func TestAskWithoutLLM(t *testing.T) {
	provider := &stubProvider{bundle: &domain.ContextBundle{Items: fixtureItems()}}
	srv := newServer(provider, &stubScheduler{}, nil)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/ask", AskRequest{Question: "anything"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[AskResponse](t, resp)
	assert.Empty(t, body.Answer)
	assert.Len(t, body.Items, 2)
}

func TestAskDegraded(t *testing.T) {
	bundle := &domain.ContextBundle{
		Degraded: true,
		Failures: map[domain.SourceKind]string{
			domain.SourceLinear: "timed out",
			domain.SourceGitHub: "rate limited",
		},
	}
	srv := newServer(&stubProvider{bundle: bundle}, &stubScheduler{}, nil)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/ask", AskRequest{Question: "anything"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[AskResponse](t, resp)
	assert.True(t, body.Degraded)
	assert.Empty(t, body.Items)
	assert.Len(t, body.Failures, 2)
}

func TestAskValidation(t *testing.T) {
	srv := newServer(&stubProvider{}, &stubScheduler{}, nil)
	defer srv.Close()

	t.Run("empty question", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/ask", AskRequest{Question: "   "})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/ask", "application/json", strings.NewReader("{not json"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAskAnswerFailureStillReturnsContext(t *testing.T) {
	provider := &stubProvider{bundle: &domain.ContextBundle{Items: fixtureItems()}}
	llm := &stubLLM{answerErr: domain.ErrUpstream}
	srv := newServer(provider, &stubScheduler{}, llm)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/ask", AskRequest{Question: "anything"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[AskResponse](t, resp)
	assert.Empty(t, body.Answer)
	assert.Len(t, body.Items, 2)
}

func TestTriggerSync(t *testing.T) {
	scheduler := &stubScheduler{statuses: map[domain.SourceKind]driving.SyncStatus{
		domain.SourceGitHub: {Kind: domain.SourceGitHub, State: driving.SyncIdle},
	}}
	srv := newServer(&stubProvider{}, scheduler, nil)
	defer srv.Close()

	t.Run("known source", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/sync/github", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, []domain.SourceKind{domain.SourceGitHub}, scheduler.triggered)
	})

	t.Run("no worker", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/sync/linear", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown source", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/sync/jira", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestResumeSync(t *testing.T) {
	scheduler := &stubScheduler{statuses: map[domain.SourceKind]driving.SyncStatus{
		domain.SourceNotion: {Kind: domain.SourceNotion, State: driving.SyncHalted},
	}}
	srv := newServer(&stubProvider{}, scheduler, nil)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/sync/notion/resume", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []domain.SourceKind{domain.SourceNotion}, scheduler.resumed)
}

func TestSyncStatus(t *testing.T) {
	lastRun := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	scheduler := &stubScheduler{statuses: map[domain.SourceKind]driving.SyncStatus{
		domain.SourceLinear: {
			Kind:      domain.SourceLinear,
			State:     driving.SyncFailed,
			LastRun:   lastRun,
			LastError: "upstream error",
		},
	}}
	srv := newServer(&stubProvider{}, scheduler, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/sync/linear")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[SyncStatusResponse](t, resp)
	assert.Equal(t, "linear", body.Source)
	assert.Equal(t, "failed", body.State)
	assert.Equal(t, "2025-06-01T12:00:00Z", body.LastRun)
	assert.Equal(t, "upstream error", body.LastError)
}
