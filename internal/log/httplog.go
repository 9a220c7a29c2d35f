package log

import (
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"go.uber.org/zap"
)

// HTTPLogEntry describes one served HTTP request.
type HTTPLogEntry struct {
	Method     string
	Path       string
	Route      string
	Status     int
	Duration   time.Duration
	Size       int64
	RemoteAddr string
	UserAgent  string
}

// HTTPObserver receives every HTTPLogEntry after it is logged.
type HTTPObserver func(HTTPLogEntry)

// RouteFunc names the route that served r, for low-cardinality labels.
type RouteFunc func(r *http.Request) string

// HTTPMiddleware logs each request through logger and passes the entry to
// observe, which may be nil. Server errors are logged at error level.
func HTTPMiddleware(logger *zap.SugaredLogger, route RouteFunc, observe HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)

			entry := HTTPLogEntry{
				Method:     r.Method,
				Path:       r.URL.Path,
				Route:      r.URL.Path,
				Status:     m.Code,
				Duration:   m.Duration,
				Size:       m.Written,
				RemoteAddr: r.RemoteAddr,
				UserAgent:  r.UserAgent(),
			}
			if route != nil {
				entry.Route = route(r)
			}
			LogHTTPRequest(logger, entry)
			if observe != nil {
				observe(entry)
			}
		})
	}
}

// LogHTTPRequest writes entry as a structured log line.
func LogHTTPRequest(logger *zap.SugaredLogger, entry HTTPLogEntry) {
	kv := []interface{}{
		"method", entry.Method,
		"path", entry.Path,
		"status", entry.Status,
		"duration_ms", entry.Duration.Milliseconds(),
		"size", entry.Size,
		"remote_addr", entry.RemoteAddr,
		"user_agent", entry.UserAgent,
	}
	if entry.Status >= http.StatusInternalServerError {
		logger.Errorw("http request", kv...)
		return
	}
	logger.Debugw("http request", kv...)
}
