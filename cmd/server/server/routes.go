package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter configures the HTTP routes exposed by the server binary:
// the health/ready contract plus a Prometheus scrape endpoint and an
// optional normalizer result feed. No query/mutation surface is wired
// here.
func NewRouter(s *Server) *chi.Mux {
	r := chi.NewRouter()
	r.Use(RequestLogger)

	r.Group(func(r chi.Router) {
		r.Use(JSONHeaders)
		r.Get("/health", s.HandleHealth)
		r.Get("/ready", s.HandleReady)
	})

	if s.Health != nil {
		r.Handle("/metrics", s.Health.MetricsHandler())
	}
	if s.Feed != nil {
		r.HandleFunc("/ws/normalizer", func(w http.ResponseWriter, r *http.Request) {
			s.Feed.ServeHTTP(w, r)
		})
	}

	return r
}
