// Package httptransport assembles the process-wide HTTP surface: the citizen
// API, the operator API, health, and metrics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"impfportal/internal/platform/middleware"
	"impfportal/internal/ratelimit"
	"impfportal/pkg/platform/httputil"
)

// Registrar is anything that mounts routes on the router; the dossier and
// admin handlers both satisfy it.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck probes one dependency for the readiness endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Options carries the cross-cutting pieces the router wires around the
// handlers.
type Options struct {
	Logger  *slog.Logger
	Limiter *ratelimit.Limiter
	Checks  []HealthCheck
}

// NewRouter builds the top-level router. Health and metrics stay outside the
// rate limit so probes and scrapes never compete with citizen traffic.
func NewRouter(opts Options, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", handleLiveness)
	r.Get("/readyz", handleReadiness(opts.Checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(middleware.ClientMetadata)
		api.Use(ratelimit.Middleware(opts.Limiter, opts.Logger))
		for _, h := range handlers {
			h.Register(api)
		}
	})

	return r
}

func handleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness runs every dependency check with a short deadline and
// reports per-dependency status, so a stuck dependency is visible by name.
func handleReadiness(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[check.Name] = err.Error()
				continue
			}
			results[check.Name] = "ok"
		}
		httputil.WriteJSON(w, status, results)
	}
}
