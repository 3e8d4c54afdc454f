package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dcvotebot/dcvotebot/internal/core/ports"
)

// NewHandler exposes the read-only ops surface: a liveness probe and
// the bot statistics. There are no mutating routes here; all writes go
// through the chat dispatcher.
func NewHandler(svc ports.VoteService) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			stats, err := svc.Stats(r.Context())
			if err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(stats); err != nil {
				http.Error(w, "failed to encode response", http.StatusInternalServerError)
			}
		})
	})

	return r
}
