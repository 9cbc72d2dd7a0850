// Package indexer drives an index build end to end: documents are inverted
// into blocks, the blocks are merged, and the resulting dictionary and
// postings files are committed atomically.
package indexer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/block"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/merge"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/tracing"
)

// Notifier announces committed builds. *kafka.Producer satisfies it.
type Notifier interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Result summarizes a committed build.
type Result struct {
	BuildID        string
	Docs           int
	Terms          int
	Postings       int
	Blocks         int
	BlockBytes     int64
	DictionaryPath string
	PostingsPath   string
	Duration       time.Duration
}

// Engine runs builds with a fixed configuration.
type Engine struct {
	cfg      config.IndexerConfig
	metrics  *metrics.Metrics
	notifier Notifier
	logger   *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMetrics records build metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithNotifier publishes an IndexBuilt event after every committed build.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func NewEngine(cfg config.IndexerConfig, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		logger: slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build indexes every document of src. The phases run strictly in order:
// block building, norm computation, postings merge. Nothing is published at
// the configured index paths unless every phase succeeds.
func (e *Engine) Build(ctx context.Context, src corpus.Source) (res Result, err error) {
	start := time.Now()
	res = Result{
		BuildID:        newBuildID(),
		DictionaryPath: e.cfg.DictionaryPath(),
		PostingsPath:   e.cfg.PostingsPath(),
	}
	ctx, span := tracing.StartSpan(ctx, "index.build", res.BuildID)
	defer func() {
		span.End()
		status := "ok"
		if err != nil {
			status = "error"
			span.SetAttr("error", err.Error())
		}
		e.metrics.ObserveBuild(status, res.Terms)
		span.Log(e.logger)
	}()

	manifest, err := e.buildBlocks(ctx, src)
	if err != nil {
		return res, err
	}
	res.Docs = len(manifest.DocIDs)
	res.Blocks = len(manifest.Blocks)
	for _, b := range manifest.Blocks {
		res.BlockBytes += b.Bytes
	}
	if !e.cfg.KeepBlocks {
		// Blocks of a failed merge stay for inspection; the next build
		// clears them.
		defer func() {
			if err != nil {
				e.logger.Warn("keeping blocks of failed build", "build_id", res.BuildID, "blocks", len(manifest.Blocks))
				return
			}
			if rmErr := block.Remove(manifest); rmErr != nil {
				e.logger.Warn("removing blocks failed", "error", rmErr)
			}
		}()
	}

	stats, err := e.merge(ctx, manifest)
	if err != nil {
		return res, err
	}
	res.Terms = stats.Terms
	res.Postings = stats.Postings
	res.Duration = time.Since(start)
	span.SetAttr("docs", res.Docs)
	span.SetAttr("terms", res.Terms)

	e.logger.Info("index build complete",
		"build_id", res.BuildID,
		"docs", res.Docs,
		"terms", res.Terms,
		"postings", res.Postings,
		"blocks", res.Blocks,
		"duration_ms", res.Duration.Milliseconds(),
	)
	e.notify(ctx, res)
	return res, nil
}

func (e *Engine) buildBlocks(ctx context.Context, src corpus.Source) (block.Manifest, error) {
	_, span := tracing.StartChildSpan(ctx, "index.blocks")
	defer span.End()
	start := time.Now()

	builder, err := block.NewBuilder(e.cfg.BlockPath(), e.cfg.BlockMemoryBytes, func(info block.Info) {
		e.metrics.ObserveBlock(info.Docs, info.Bytes)
	})
	if err != nil {
		return block.Manifest{}, err
	}
	err = src.Each(ctx, func(doc corpus.Document) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return builder.Add(doc)
	})
	if err != nil {
		return block.Manifest{}, fmt.Errorf("building blocks: %w", err)
	}
	manifest, err := builder.Finish()
	if err != nil {
		return block.Manifest{}, err
	}
	e.metrics.ObservePhase("blocks", time.Since(start).Seconds())
	span.SetAttr("blocks", len(manifest.Blocks))
	e.logger.Info("block phase complete",
		"docs", len(manifest.DocIDs),
		"blocks", len(manifest.Blocks),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return manifest, nil
}

func (e *Engine) merge(ctx context.Context, manifest block.Manifest) (merge.Stats, error) {
	m, err := merge.New(manifest, e.cfg.MergeMemoryBytes)
	if err != nil {
		return merge.Stats{}, err
	}

	_, normSpan := tracing.StartChildSpan(ctx, "index.norms")
	start := time.Now()
	_, err = m.Norms(ctx)
	normSpan.End()
	if err != nil {
		return merge.Stats{}, fmt.Errorf("computing document norms: %w", err)
	}
	e.metrics.ObservePhase("norms", time.Since(start).Seconds())

	_, mergeSpan := tracing.StartChildSpan(ctx, "index.merge")
	defer mergeSpan.End()
	start = time.Now()
	w, err := segment.Create(e.cfg.DictionaryPath(), e.cfg.PostingsPath())
	if err != nil {
		return merge.Stats{}, err
	}
	stats, err := m.Merge(ctx, w)
	if err != nil {
		w.Abort()
		return merge.Stats{}, fmt.Errorf("merging blocks: %w", err)
	}
	if err := w.Commit(m.DocTable()); err != nil {
		return merge.Stats{}, fmt.Errorf("committing index: %w", err)
	}
	e.metrics.ObservePhase("merge", time.Since(start).Seconds())
	mergeSpan.SetAttr("terms", stats.Terms)
	mergeSpan.SetAttr("flushes", stats.Flushes)
	e.logger.Info("merge phase complete",
		"terms", stats.Terms,
		"postings", stats.Postings,
		"flushes", stats.Flushes,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return stats, nil
}

// notify failures are logged only: the index is already committed.
func (e *Engine) notify(ctx context.Context, res Result) {
	if e.notifier == nil {
		return
	}
	event := kafka.Event{
		Key: kafka.IndexBuiltKey,
		Value: kafka.IndexBuilt{
			BuildID:        res.BuildID,
			DictionaryPath: res.DictionaryPath,
			PostingsPath:   res.PostingsPath,
			Docs:           res.Docs,
			Terms:          res.Terms,
			Blocks:         res.Blocks,
		},
	}
	if err := e.notifier.Publish(ctx, event); err != nil {
		e.logger.Warn("publishing index.built event failed",
			"build_id", res.BuildID,
			"error", err,
		)
	}
}

func newBuildID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("build-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
