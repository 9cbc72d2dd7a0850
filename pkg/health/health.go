// Package health aggregates dependency checks of the search service (index
// loaded, Redis reachable) into liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"
)

// Status represents the health state of a component or the system overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check is a function that probes a single dependency and returns its status.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth holds the result of a single component check.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is the aggregated result of all component checks.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// FromError adapts a probe returning an error into a Check. A nil error is
// up; otherwise the component is reported as failing with the error text.
func FromError(failing Status, probe func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := probe(ctx); err != nil {
			return ComponentHealth{Status: failing, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Checker manages registered health checks and runs them concurrently.
type Checker struct {
	checks map[string]Check
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]Check),
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds a named health check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes all registered checks concurrently. The overall status is
// the worst component status.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := maps.Clone(c.checks)
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, check := range checks {
		wg.Go(func() {
			start := time.Now()
			result := check(ctx)
			result.Latency = time.Since(start).Round(time.Millisecond).String()
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
		})
	}
	wg.Wait()

	for name, comp := range report.Components {
		if severity(comp.Status) > severity(report.Status) {
			report.Status = comp.Status
		}
		if comp.Status != StatusUp {
			c.logger.Debug("component unhealthy", "name", name, "status", comp.Status, "message", comp.Message)
		}
	}
	return report
}

func severity(s Status) int {
	switch s {
	case StatusDown:
		return 2
	case StatusDegraded:
		return 1
	}
	return 0
}

// LiveHandler answers as long as the process serves HTTP.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
		})
	}
}

// ReadyHandler serves the report; only a down component fails readiness,
// so a service running without its cache still takes traffic.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}
