// Package executor answers search requests against the current index. It
// owns the loaded store, hands each request a private postings cache, and
// dispatches to the boolean or the ranked evaluator.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/searcher/boolean"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/metrics"
)

// Mode selects the evaluator.
type Mode string

const (
	ModeBoolean Mode = "boolean"
	ModeRanked  Mode = "ranked"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case ModeBoolean:
		return ModeBoolean, nil
	case ModeRanked:
		return ModeRanked, nil
	}
	return "", apperrors.Wrap(apperrors.ErrInvalidInput, nil, "unknown search mode %q", s)
}

// Store is a loaded index. *segment.Reader satisfies it.
type Store interface {
	Lookup(term string) (index.DictEntry, bool)
	Postings(term string) (index.PostingList, error)
	DocCount() int
	DocIDs(nums []uint32) []string
	DocNum(id string) (uint32, bool)
	Fingerprint() string
	io.Closer
}

// Request is one search.
type Request struct {
	Mode  Mode   `json:"mode"`
	Query string `json:"query"`
	// Limit caps the returned hits. Zero means the configured default for
	// ranked queries and no cap for boolean ones.
	Limit int `json:"limit"`
	// Relevant lists external IDs of documents known to be relevant; ranked
	// queries use them for relevance feedback.
	Relevant []string `json:"relevant,omitempty"`
}

// Hit is a matching document.
type Hit struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score,omitempty"`
}

type SearchResult struct {
	Query     string `json:"query"`
	Mode      Mode   `json:"mode"`
	TotalHits int    `json:"total_hits"`
	Results   []Hit  `json:"results"`
	// IndexVersion is the fingerprint of the store that produced the result.
	IndexVersion string `json:"index_version,omitempty"`
}

// IDs returns the external IDs of the hits, in rank order.
func (r *SearchResult) IDs() []string {
	ids := make([]string, len(r.Results))
	for i, h := range r.Results {
		ids[i] = h.DocID
	}
	return ids
}

type Executor struct {
	mu      sync.RWMutex
	store   Store
	cfg     config.SearchConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns an Executor over store, which may be nil until the first
// Swap.
func New(store Store, cfg config.SearchConfig, m *metrics.Metrics) *Executor {
	return &Executor{
		store:   store,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

// Swap installs a new store and returns the previous one. It waits for
// in-flight requests on the old store to finish, so the caller may close
// it immediately.
func (e *Executor) Swap(store Store) Store {
	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.store
	e.store = store
	return old
}

// Ready reports whether a store is loaded.
func (e *Executor) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store != nil
}

// IndexVersion returns the fingerprint of the loaded store, or the empty
// string when none is loaded.
func (e *Executor) IndexVersion() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.store == nil {
		return ""
	}
	return e.store.Fingerprint()
}

// DocCount returns the size of the loaded collection.
func (e *Executor) DocCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.store == nil {
		return 0
	}
	return e.store.DocCount()
}

func (e *Executor) Execute(ctx context.Context, req Request) (*SearchResult, error) {
	start := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.store == nil {
		return nil, apperrors.ErrIndexNotLoaded
	}

	result, err := e.execute(ctx, e.store, req)
	outcome := "ok"
	hits := 0
	switch {
	case errors.Is(err, apperrors.ErrInvalidQuery):
		outcome = "invalid"
		e.logger.Warn("invalid query", "mode", req.Mode, "query", req.Query, "error", err)
	case err != nil:
		outcome = "error"
	case len(result.Results) == 0:
		outcome = "zero_result"
	default:
		hits = len(result.Results)
	}
	e.metrics.ObserveQuery(string(req.Mode), outcome, time.Since(start).Seconds(), hits)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("query executed",
		"mode", req.Mode,
		"query", req.Query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (e *Executor) execute(ctx context.Context, store Store, req Request) (*SearchResult, error) {
	cached := newRequestCache(store)
	result := &SearchResult{
		Query:        req.Query,
		Mode:         req.Mode,
		Results:      []Hit{},
		IndexVersion: store.Fingerprint(),
	}
	switch req.Mode {
	case ModeBoolean:
		docs, err := boolean.NewEvaluator(cached).Search(ctx, req.Query)
		if err != nil {
			return nil, err
		}
		result.TotalHits = len(docs)
		if req.Limit > 0 && len(docs) > req.Limit {
			docs = docs[:req.Limit]
		}
		for _, id := range store.DocIDs(docs) {
			result.Results = append(result.Results, Hit{DocID: id})
		}
	case ModeRanked:
		limit := req.Limit
		if limit <= 0 {
			limit = e.cfg.DefaultLimit
		}
		opts := ranker.Options{Limit: limit, Policy: ranker.PhrasePolicy(e.cfg.PhrasePolicy)}
		q := ranker.ParseQuery(req.Query)
		rk := ranker.New(cached)
		var docs []ranker.ScoredDoc
		var err error
		if len(req.Relevant) > 0 {
			docs, err = rk.RankWithFeedback(ctx, q, opts, ranker.Feedback{
				Relevant: e.resolve(store, req.Relevant),
				Alpha:    e.cfg.FeedbackAlpha,
				Beta:     e.cfg.FeedbackBeta,
			})
		} else {
			docs, err = rk.Rank(ctx, q, opts)
		}
		if err != nil {
			return nil, err
		}
		result.TotalHits = len(docs)
		for _, d := range docs {
			result.Results = append(result.Results, Hit{
				DocID: store.DocIDs([]uint32{d.Doc})[0],
				Score: d.Score,
			})
		}
	default:
		return nil, fmt.Errorf("%w: unknown search mode %q", apperrors.ErrInvalidInput, req.Mode)
	}
	return result, nil
}

// resolve maps external IDs to document numbers in ascending order,
// dropping IDs that are not indexed.
func (e *Executor) resolve(store Store, ids []string) []uint32 {
	nums := make([]uint32, 0, len(ids))
	seen := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		n, ok := store.DocNum(id)
		if !ok {
			e.logger.Warn("relevant document not in index", "doc_id", id)
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		nums = append(nums, n)
	}
	slices.Sort(nums)
	return nums
}
