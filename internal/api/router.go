package api

import (
	"log/slog"
	"net/http"

	"transit-ticketing/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// NewRouter builds the HTTP surface. redisClient may be nil, which turns
// idempotency off.
func NewRouter(h *Handlers, redisClient redis.Cmdable, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(ChiMiddleware.RequestID)
	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/tickets", func(r chi.Router) {
		r.With(middleware.Idempotency(redisClient, logger)).Post("/", h.CreateTicket)
		r.Get("/{id}", h.GetTicket)
		r.Get("/{id}/workflow", h.GetWorkflow)
		r.Post("/{id}/validate", h.ValidateTicket)
		r.Post("/{id}/expire", h.ExpireTicket)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
