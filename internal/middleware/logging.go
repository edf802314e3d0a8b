package middleware

import (
	"net/http"
	"time"

	"daraja-mcp/pkg/logger"
)

// RequestLogger logs each HTTP request with status and latency
type RequestLogger struct {
	logger *logger.Logger
}

// NewRequestLogger creates a new request logging middleware
func NewRequestLogger(log *logger.Logger) *RequestLogger {
	return &RequestLogger{logger: log}
}

// Handler wraps next with request logging
func (m *RequestLogger) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		m.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// statusWriter captures the response status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
