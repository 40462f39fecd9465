// Package http assembles the public router: the registry and instance
// surfaces behind bearer auth, plus health and metrics.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	escrowhandler "rentvault/internal/escrow/handler"
	"rentvault/internal/platform/middleware"
	registryhandler "rentvault/internal/registry/handler"
)

// Deps carries everything the router mounts.
type Deps struct {
	Escrow    *escrowhandler.Handler
	Registry  *registryhandler.Handler
	Validator middleware.TokenValidator
	Logger    *slog.Logger
	// Health reports readiness of the backing stores; nil means always ready.
	Health func(r *http.Request) error
}

// NewRouter wires all public endpoints. Every business route requires a valid
// bearer token; health and metrics stay open.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(deps.Logger))
	r.Use(middleware.Logging(deps.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if deps.Health != nil {
			if err := deps.Health(req); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Validator, deps.Logger))
		deps.Registry.Register(r)
		deps.Escrow.Register(r)
	})

	return r
}
