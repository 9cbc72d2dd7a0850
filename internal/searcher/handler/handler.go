// Package handler exposes the searcher over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/middleware"
)

type SearchExecutor interface {
	Execute(ctx context.Context, req executor.Request) (*executor.SearchResult, error)
}

type Handler struct {
	executor   SearchExecutor
	cache      *cache.QueryCache
	maxResults int
	logger     *slog.Logger
}

// New returns a Handler. queryCache may be nil.
func New(exec SearchExecutor, queryCache *cache.QueryCache, maxResults int) *Handler {
	return &Handler{
		executor:   exec,
		cache:      queryCache,
		maxResults: maxResults,
		logger:     slog.Default().With("component", "search-handler"),
	}
}

// Search serves GET /api/v1/search?q=...&mode=boolean|ranked&limit=N.
// Ranked requests may repeat the relevant parameter to supply feedback
// documents.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	params := r.URL.Query()

	req, appErr := parseRequest(params, h.maxResults)
	if appErr != nil {
		h.writeError(w, appErr.StatusCode, appErr.Message)
		return
	}
	query, mode := req.Query, req.Mode

	var (
		result   *executor.SearchResult
		cacheHit bool
		err      error
	)
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, req, func() (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, req)
		})
	} else {
		result, err = h.executor.Execute(ctx, req)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = apperrors.Wrap(apperrors.ErrTimeout, err, "evaluating %q", query)
	}
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error("search execution failed", "query", query, "mode", mode, "error", err)
		}
		h.writeError(w, status, errorMessage(err, status))
		return
	}

	log.Info("search completed",
		"query", query,
		"mode", mode,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
		"request_id", middleware.GetRequestID(ctx),
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func parseRequest(params url.Values, maxResults int) (executor.Request, *apperrors.AppError) {
	query := params.Get("q")
	if strings.TrimSpace(query) == "" {
		return executor.Request{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required")
	}

	mode := executor.ModeRanked
	if m := params.Get("mode"); m != "" {
		parsed, err := executor.ParseMode(m)
		if err != nil {
			return executor.Request{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "mode must be boolean or ranked, got %q", m)
		}
		mode = parsed
	}

	limit := 0
	if limitStr := params.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			return executor.Request{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}
	if maxResults > 0 && (limit == 0 && mode == executor.ModeBoolean || limit > maxResults) {
		limit = maxResults
	}

	return executor.Request{
		Mode:     mode,
		Query:    query,
		Limit:    limit,
		Relevant: relevantIDs(params["relevant"]),
	}, nil
}

// relevantIDs accepts both repeated and comma-separated values.
func relevantIDs(values []string) []string {
	var ids []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func errorMessage(err error, status int) string {
	switch {
	case errors.Is(err, apperrors.ErrIndexNotLoaded):
		return "index not loaded"
	case errors.Is(err, apperrors.ErrTimeout):
		return "search timed out"
	case status >= http.StatusInternalServerError:
		return "search failed"
	}
	return err.Error()
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
