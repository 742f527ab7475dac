package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"media-digest-go/internal/logger"
)

type wrappedWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *wrappedWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// quietPrefixes are polled by clients and only logged at debug level unless they fail.
var quietPrefixes = []string{"/status/", "/healthz"}

func quiet(path string) bool {
	for _, p := range quietPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// RequestLogger logs one line per request with the request id attached.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &wrappedWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			entry := log.WithRequest(r).WithFields(logrus.Fields{
				"status":      wrapped.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			switch {
			case wrapped.statusCode >= 500:
				entry.Error("request failed")
			case quiet(r.URL.Path) && wrapped.statusCode < 400:
				entry.Debug("request")
			default:
				entry.Info("request")
			}
		})
	}
}
