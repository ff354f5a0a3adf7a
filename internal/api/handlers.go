// Package api exposes the engine over HTTP. The chat surface (Slack
// gateway or any other bot frontend) talks to these endpoints; they are
// a thin JSON layer over the driving ports.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driving"
	"github.com/theotherzach/project-brain-bot/internal/logger"
)

// Handler holds the services the HTTP endpoints delegate to.
type Handler struct {
	provider  driving.ContextProvider
	scheduler driving.Scheduler
	llm       driven.LLMService
}

// NewHandler builds a Handler. The LLM service is optional; without it
// the ask endpoint returns the raw context bundle and no answer.
func NewHandler(provider driving.ContextProvider, scheduler driving.Scheduler, llm driven.LLMService) *Handler {
	return &Handler{provider: provider, scheduler: scheduler, llm: llm}
}

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	Question string `json:"question"`
	UserID   string `json:"user_id,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

// BundleItemResponse is one retrieved passage in an ask response.
type BundleItemResponse struct {
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	Provenance string  `json:"provenance,omitempty"`
	Score      float64 `json:"score"`
	Live       bool    `json:"live"`
}

// AskResponse is the body of a successful POST /api/ask.
type AskResponse struct {
	Answer   string               `json:"answer,omitempty"`
	Items    []BundleItemResponse `json:"items"`
	Degraded bool                 `json:"degraded"`
	Failures map[string]string    `json:"failures,omitempty"`
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	question := domain.Question{
		ID:      uuid.NewString(),
		Text:    req.Question,
		UserID:  req.UserID,
		Channel: req.Channel,
		AskedAt: time.Now(),
	}

	bundle, err := h.provider.Gather(r.Context(), question)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("gather failed for question %s: %v", question.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to gather context")
		return
	}

	resp := AskResponse{
		Items:    make([]BundleItemResponse, 0, len(bundle.Items)),
		Degraded: bundle.Degraded,
	}
	for _, item := range bundle.Items {
		resp.Items = append(resp.Items, BundleItemResponse{
			Text:       item.Text,
			Source:     item.Kind.String(),
			Provenance: item.Provenance,
			Score:      item.Score,
			Live:       item.Live,
		})
	}
	if len(bundle.Failures) > 0 {
		resp.Failures = make(map[string]string, len(bundle.Failures))
		for kind, msg := range bundle.Failures {
			resp.Failures[kind.String()] = msg
		}
	}

	if h.llm != nil {
		answer, err := h.llm.Answer(r.Context(), question.Text, bundleText(bundle))
		if err != nil {
			logger.Warn("answer generation failed for question %s: %v", question.ID, err)
		} else {
			resp.Answer = answer
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// SyncStatusResponse is the body of GET /api/sync/{source}.
type SyncStatusResponse struct {
	Source    string `json:"source"`
	State     string `json:"state"`
	LastRun   string `json:"last_run,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.sourceParam(w, r)
	if !ok {
		return
	}
	if err := h.scheduler.TriggerNow(kind); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no sync worker for source "+kind.String())
			return
		}
		logger.Error("trigger sync for %s: %v", kind, err)
		writeError(w, http.StatusInternalServerError, "failed to trigger sync")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"source": kind.String(), "status": "triggered"})
}

func (h *Handler) ResumeSync(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.sourceParam(w, r)
	if !ok {
		return
	}
	if err := h.scheduler.Resume(kind); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no sync worker for source "+kind.String())
			return
		}
		logger.Error("resume sync for %s: %v", kind, err)
		writeError(w, http.StatusInternalServerError, "failed to resume sync")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"source": kind.String(), "status": "resumed"})
}

func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.sourceParam(w, r)
	if !ok {
		return
	}
	status, err := h.scheduler.Status(kind)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no sync worker for source "+kind.String())
			return
		}
		logger.Error("sync status for %s: %v", kind, err)
		writeError(w, http.StatusInternalServerError, "failed to read sync status")
		return
	}
	resp := SyncStatusResponse{
		Source:    status.Kind.String(),
		State:     string(status.State),
		LastError: status.LastError,
	}
	if !status.LastRun.IsZero() {
		resp.LastRun = status.LastRun.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) sourceParam(w http.ResponseWriter, r *http.Request) (domain.SourceKind, bool) {
	kind, err := domain.ParseSourceKind(chi.URLParam(r, "source"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown source: "+chi.URLParam(r, "source"))
		return "", false
	}
	return kind, true
}

func bundleText(bundle *domain.ContextBundle) string {
	var sb strings.Builder
	for i, item := range bundle.Items {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("[")
		sb.WriteString(item.Kind.String())
		if item.Provenance != "" {
			sb.WriteString(" ")
			sb.WriteString(item.Provenance)
		}
		sb.WriteString("]\n")
		sb.WriteString(item.Text)
	}
	return sb.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
