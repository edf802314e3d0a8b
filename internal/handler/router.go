package handler

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"daraja-mcp/internal/middleware"
)

// NewRouter assembles the callback server routes
func NewRouter(
	callback *CallbackHandler,
	health *HealthHandler,
	index *IndexHandler,
	tools *ToolsHandler,
	requestLogger *middleware.RequestLogger,
) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger.Handler)

	router.Get("/", index.Index)
	router.Get("/favicon.ico", index.Favicon)
	router.Get("/health", health.CheckHealth)
	router.Handle("/metrics", promhttp.Handler())

	// Gateway-facing webhook endpoints
	router.Post("/mpesa/callback", callback.HandleCallback)
	router.Post("/mpesa/timeout", callback.HandleTimeout)

	// HTTP bridge onto the MCP tool set
	router.Get("/mcp/tools", tools.ListTools)
	router.Post("/mcp/call_tool", tools.CallTool)

	return router
}
