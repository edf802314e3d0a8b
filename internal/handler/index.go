package handler

import (
	"net/http"

	"github.com/goccy/go-json"

	"daraja-mcp/internal/config"
)

// IndexHandler serves the service index and keeps browsers quiet
type IndexHandler struct {
	config *config.Config
}

// NewIndexHandler creates a new index handler
func NewIndexHandler(cfg *config.Config) *IndexHandler {
	return &IndexHandler{config: cfg}
}

// Index handles GET /
func (h *IndexHandler) Index(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"service": "Daraja MCP Server",
		"status":  "running",
		"endpoints": map[string]string{
			"health":         "/health",
			"metrics":        "/metrics",
			"mpesa_callback": "/mpesa/callback",
			"mpesa_timeout":  "/mpesa/timeout",
			"mcp_tools":      "/mcp/tools",
			"mcp_call":       "/mcp/call_tool",
		},
		"callback_url": h.config.CallbackURL(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// Favicon handles GET /favicon.ico so browser probes don't 404
func (h *IndexHandler) Favicon(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
