package middleware

import (
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
)

// Logging returns middleware that logs every completed request. A nil logger
// uses slog.Default().
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)

			level := slog.LevelInfo
			if m.Code >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "handled",
				"method", r.Method,
				"path", r.URL.Path,
				"status", m.Code,
				"duration", m.Duration,
				"bytes", m.Written,
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}
