package handler

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"daraja-mcp/internal/config"
	"daraja-mcp/internal/store"
	"daraja-mcp/pkg/logger"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	store     *store.NotificationStore
	config    *config.Config
	logger    *logger.Logger
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(st *store.NotificationStore, cfg *config.Config, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		store:     st,
		config:    cfg,
		logger:    log,
		startTime: time.Now(),
	}
}

// CheckHealth handles GET /health
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)

	response := map[string]interface{}{
		"status":          "healthy",
		"service":         "daraja-mcp",
		"environment":     h.config.Daraja.Environment,
		"callback_url":    h.config.CallbackURL(),
		"unread_payments": h.store.UnreadCount(),
		"uptime":          uptime.String(),
		"timestamp":       time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
