package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the HTTP routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})

		r.Post("/ask", h.Ask)

		r.Route("/sync/{source}", func(r chi.Router) {
			r.Get("/", h.SyncStatus)
			r.Post("/", h.TriggerSync)
			r.Post("/resume", h.ResumeSync)
		})
	})

	return r
}
