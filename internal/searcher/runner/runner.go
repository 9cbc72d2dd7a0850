// Package runner evaluates query files in batch: one query per input line,
// one result line per query, IDs separated by single spaces.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/errors"
)

// Searcher executes one request. *executor.Executor satisfies it.
type Searcher interface {
	Execute(ctx context.Context, req executor.Request) (*executor.SearchResult, error)
}

type Runner struct {
	searcher    Searcher
	mode        executor.Mode
	limit       int
	concurrency int
	logger      *slog.Logger
}

// New returns a Runner evaluating up to concurrency queries at once. limit
// is passed through to every request.
func New(s Searcher, mode executor.Mode, limit, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{
		searcher:    s,
		mode:        mode,
		limit:       limit,
		concurrency: concurrency,
		logger:      slog.Default().With("component", "batch-runner", "mode", string(mode)),
	}
}

// Stats summarizes a batch.
type Stats struct {
	Queries int
	Invalid int
	Empty   int
}

// Run reads every query from in and writes the results to out in input
// order. Invalid queries produce an empty line; any other failure aborts
// the batch.
func (r *Runner) Run(ctx context.Context, in io.Reader, out io.Writer) (Stats, error) {
	queries, err := readLines(in)
	if err != nil {
		return Stats{}, err
	}
	lines := make([]string, len(queries))
	invalid := make([]bool, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, q := range queries {
		g.Go(func() error {
			res, err := r.searcher.Execute(gctx, executor.Request{Mode: r.mode, Query: q, Limit: r.limit})
			if errors.Is(err, apperrors.ErrInvalidQuery) {
				invalid[i] = true
				return nil
			}
			if err != nil {
				return fmt.Errorf("query %d %q: %w", i+1, q, err)
			}
			lines[i] = strings.Join(res.IDs(), " ")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	stats := Stats{Queries: len(queries)}
	for i, line := range lines {
		if invalid[i] {
			stats.Invalid++
		}
		if line == "" {
			stats.Empty++
		}
	}
	if err := writeLines(out, lines); err != nil {
		return stats, err
	}
	r.logger.Info("batch complete",
		"queries", stats.Queries,
		"invalid", stats.Invalid,
		"empty", stats.Empty,
	)
	return stats, nil
}

// RunFeedback reads a single ranked query from the first line of in and
// relevant document IDs from the following lines, and writes one result
// line.
func (r *Runner) RunFeedback(ctx context.Context, in io.Reader, out io.Writer) error {
	lines, err := readLines(in)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return apperrors.Wrap(apperrors.ErrInvalidInput, nil, "query file is empty")
	}
	var relevant []string
	for _, l := range lines[1:] {
		if id := strings.TrimSpace(l); id != "" {
			relevant = append(relevant, id)
		}
	}
	res, err := r.searcher.Execute(ctx, executor.Request{
		Mode:     executor.ModeRanked,
		Query:    lines[0],
		Limit:    r.limit,
		Relevant: relevant,
	})
	var line string
	switch {
	case errors.Is(err, apperrors.ErrInvalidQuery):
	case err != nil:
		return fmt.Errorf("feedback query %q: %w", lines[0], err)
	default:
		line = strings.Join(res.IDs(), " ")
	}
	return writeLines(out, []string{line})
}

func readLines(in io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "reading queries")
	}
	return lines, nil
}

func writeLines(out io.Writer, lines []string) error {
	w := bufio.NewWriter(out)
	for _, l := range lines {
		if _, err := w.WriteString(l); err != nil {
			return apperrors.Wrap(apperrors.ErrIO, err, "writing results")
		}
		if err := w.WriteByte('\n'); err != nil {
			return apperrors.Wrap(apperrors.ErrIO, err, "writing results")
		}
	}
	if err := w.Flush(); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "writing results")
	}
	return nil
}
