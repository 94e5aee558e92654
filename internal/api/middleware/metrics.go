package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/capstonehub/projectchat/internal/metrics"
)

// statusWriter wraps http.ResponseWriter to capture status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Metrics returns middleware that records Prometheus metrics.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(wrapped.status),
		).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// normalizePath collapses per-project paths so metric cardinality stays
// bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/ws/chat/"):
		return "/ws/chat/{id}"
	case strings.HasPrefix(path, "/api/chats/unread"):
		return "/api/chats/unread"
	case strings.HasPrefix(path, "/api/chats/stats"):
		return "/api/chats/stats"
	case strings.HasPrefix(path, "/api/chats/"):
		rest := strings.TrimPrefix(path, "/api/chats/")
		if i := strings.Index(rest, "/"); i >= 0 {
			return "/api/chats/{id}" + rest[i:]
		}
		return "/api/chats/{id}"
	default:
		return path
	}
}
