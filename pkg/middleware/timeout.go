package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Timeout cancels the request context after timeout and answers 504 if the
// handler has not started writing by then.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			done := make(chan struct{})
			tw := &timeoutWriter{ResponseWriter: w}
			go func() {
				next.ServeHTTP(tw, r.WithContext(ctx))
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				if tw.expire() {
					slog.Warn("request timed out", "method", r.Method, "path", r.URL.Path, "timeout", timeout)
					http.Error(w, `{"error":"request timeout"}`, http.StatusGatewayTimeout)
				}
			}
		})
	}
}

// timeoutWriter drops writes once the deadline response has been sent.
type timeoutWriter struct {
	http.ResponseWriter
	mu      sync.Mutex
	written bool
	expired bool
}

func (tw *timeoutWriter) expire() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.written {
		return false
	}
	tw.expired = true
	return true
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.expired {
		return
	}
	tw.written = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.expired {
		return 0, http.ErrHandlerTimeout
	}
	tw.written = true
	return tw.ResponseWriter.Write(b)
}
