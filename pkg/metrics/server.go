package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartServer serves /metrics on port in the background and returns its
// shutdown function.
func StartServer(port int) (shutdown func(context.Context) error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><h1>SPIMI Search Metrics</h1><p><a href="/metrics">/metrics</a></p></body></html>`)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}
