package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"daraja-mcp/internal/config"
	"daraja-mcp/internal/daraja"
	"daraja-mcp/internal/handler"
	"daraja-mcp/internal/mcp"
	"daraja-mcp/internal/middleware"
	"daraja-mcp/internal/store"
	"daraja-mcp/pkg/logger"
)

func main() {
	// Create .env from .env.example if not exists
	if err := ensureEnvFile(); err != nil {
		log.Printf("Warning: Failed to create .env file: %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger (stderr only: stdout carries the MCP stream)
	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Starting Daraja MCP service",
		"environment", cfg.Daraja.Environment,
		"callback_url", cfg.CallbackURL(),
	)

	// Initialize notification store
	notificationStore := store.NewNotificationStore(cfg.Store.MaxNotifications)

	// Initialize Daraja client
	darajaClient := daraja.NewClient(&cfg.Daraja, cfg.CallbackURL(), appLogger)

	// Initialize MCP tool handler (shared by stdio and the HTTP bridge)
	toolHandler := mcp.NewToolHandler(darajaClient, notificationStore, cfg, appLogger)

	// Initialize HTTP handlers
	callbackHandler := handler.NewCallbackHandler(notificationStore, appLogger)
	healthHandler := handler.NewHealthHandler(notificationStore, cfg, appLogger)
	indexHandler := handler.NewIndexHandler(cfg)
	toolsHandler := handler.NewToolsHandler(toolHandler, appLogger)

	// Initialize middleware
	requestLogger := middleware.NewRequestLogger(appLogger)

	// Setup HTTP routes
	router := handler.NewRouter(callbackHandler, healthHandler, indexHandler, toolsHandler, requestLogger)

	// Create HTTP server
	addr := cfg.Server.ListenAddr()
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start callback server in goroutine
	go func() {
		appLogger.Info("Callback server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Callback server error", "error", err)
			log.Fatalf("Callback server error: %v", err)
		}
	}()

	// Run MCP server on stdio in its own goroutine
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mcpServer := mcp.NewServer(toolHandler, appLogger)
	mcpDone := make(chan error, 1)
	go func() {
		mcpDone <- mcpServer.Run(ctx)
	}()

	appLogger.Info("Daraja MCP service started",
		"address", addr,
		"environment", cfg.Daraja.Environment,
	)

	// Wait for interrupt signal or the MCP client hanging up
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down on signal...")
	case err := <-mcpDone:
		if err != nil && err != context.Canceled {
			appLogger.Error("MCP server stopped", "error", err)
		} else {
			appLogger.Info("MCP client disconnected, shutting down...")
		}
	}

	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("Server stopped gracefully")
}

// ensureEnvFile creates .env from .env.example if .env doesn't exist
func ensureEnvFile() error {
	// Check if .env already exists
	if _, err := os.Stat(".env"); err == nil {
		return nil // .env already exists
	}

	// Check if .env.example exists
	if _, err := os.Stat(".env.example"); os.IsNotExist(err) {
		return fmt.Errorf(".env.example not found")
	}

	// Copy .env.example to .env
	source, err := os.Open(".env.example")
	if err != nil {
		return fmt.Errorf("failed to open .env.example: %w", err)
	}
	defer source.Close()

	destination, err := os.Create(".env")
	if err != nil {
		return fmt.Errorf("failed to create .env: %w", err)
	}
	defer destination.Close()

	_, err = io.Copy(destination, source)
	if err != nil {
		return fmt.Errorf("failed to copy .env.example to .env: %w", err)
	}

	log.Println("✅ Created .env file from .env.example")
	return nil
}
