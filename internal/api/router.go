// Package api serves the strata tool set over HTTP for editor integrations
// that cannot speak MCP. Every tool call goes through the engine's
// dispatcher, so the HTTP surface degrades the same way the MCP one does.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/strata"
)

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(engine *strata.Engine, apiKey string, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	toolsH := NewToolsHandler(engine)
	statusH := NewStatusHandler(engine)

	r.Get("/healthz", statusH.Health)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiKey))

		r.Route("/v1", func(r chi.Router) {
			r.Get("/tools", toolsH.List)
			r.Post("/tools/{name}", toolsH.Call)
			r.Get("/stats", statusH.Stats)
		})
	})

	return r
}
