// Package middleware holds the HTTP middleware of the search service:
// request IDs, Prometheus request metrics and request timeouts.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/metrics"
)

// Metrics records request count, latency and the in-flight gauge. A nil m
// disables it.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			path := routeLabel(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

// routeLabel keeps the path label bounded: unknown paths share one label.
func routeLabel(path string) string {
	switch {
	case path == "/api/v1/search",
		strings.HasPrefix(path, "/api/v1/cache/"),
		strings.HasPrefix(path, "/health/"):
		return path
	}
	return "other"
}
