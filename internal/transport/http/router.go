package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rahimunlu/humanID/internal/platform/health"
	"github.com/rahimunlu/humanID/internal/platform/middleware"
)

// NewRouter wires all public endpoints with the middleware stack.
func NewRouter(h *Handler, healthHandler *health.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(120 * time.Second))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/first_humanity_verification", h.handleEnroll)
	r.Post("/similarity_check", h.handleCheck)
	r.Get("/verification_status/{user_id}", h.handleStatus)
	r.Get("/latest_verification", h.handleLatestVerification)
	r.Get("/all_verifications", h.handleAllVerifications)
	r.Get("/verification-with-golem/{user_id}", h.handleMergedStatus)

	return r
}
