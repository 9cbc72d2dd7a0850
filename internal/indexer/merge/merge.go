// Package merge combines the blocks of a build into the final postings.
//
// The merge runs in two passes over the block files. The first pass
// accumulates every document's length norm; the second performs a k-way
// merge of the term-sorted blocks, turning raw positions into normalized
// weights and streaming finished lists to a Sink in bounded batches.
package merge

import (
	"cmp"
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/block"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/skiplist"
	apperrors "github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/errors"
)

const (
	termOverhead    = 48
	postingOverhead = 32
	positionSize    = 4
)

// Sink receives merged postings lists in ascending term order.
type Sink interface {
	Add(term string, idf float64, pl index.PostingList) error
}

// Stats summarizes a completed merge.
type Stats struct {
	Terms    int
	Postings int
	Flushes  int
}

// Merger owns the state of the merge phase. It is not safe for concurrent
// use and is discarded once Merge returns.
type Merger struct {
	manifest block.Manifest
	memLimit int64
	logger   *slog.Logger

	docNums  []uint32
	docTable []string
	norms    []float64

	pending     []pendingList
	pendingSize int64
	stats       Stats
}

type pendingList struct {
	term string
	idf  float64
	list index.PostingList
}

// New assigns every document its final number: the rank of its external ID
// in natural order.
func New(manifest block.Manifest, memLimit int64) (*Merger, error) {
	if memLimit <= 0 {
		return nil, fmt.Errorf("merge memory limit must be positive, got %d", memLimit)
	}
	ordinals := make([]uint32, len(manifest.DocIDs))
	for i := range ordinals {
		ordinals[i] = uint32(i)
	}
	slices.SortFunc(ordinals, func(a, b uint32) int {
		return corpus.CompareIDs(manifest.DocIDs[a], manifest.DocIDs[b])
	})
	docNums := make([]uint32, len(ordinals))
	docTable := make([]string, len(ordinals))
	for num, ord := range ordinals {
		docNums[ord] = uint32(num)
		docTable[num] = manifest.DocIDs[ord]
	}
	return &Merger{
		manifest: manifest,
		memLimit: memLimit,
		logger:   slog.Default().With("component", "merger"),
		docNums:  docNums,
		docTable: docTable,
	}, nil
}

// DocTable returns the external document IDs indexed by document number.
func (m *Merger) DocTable() []string {
	return m.docTable
}

// Norms runs the first pass: for every document, sqrt of the sum of squared
// log-dampened term frequencies. The result is indexed by arrival ordinal.
func (m *Merger) Norms(ctx context.Context) ([]float64, error) {
	sums := make([]float64, len(m.manifest.DocIDs))
	for _, info := range m.manifest.Blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := m.scanBlock(info, sums); err != nil {
			return nil, err
		}
	}
	for i, s := range sums {
		sums[i] = math.Sqrt(s)
	}
	m.norms = sums
	return sums, nil
}

func (m *Merger) scanBlock(info block.Info, sums []float64) error {
	c, err := block.OpenCursor(info.Path, info.Number)
	if err != nil {
		return err
	}
	defer c.Close()
	for {
		ok, err := c.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		for _, p := range c.Entry().Postings {
			if int(p.Ordinal) >= len(sums) {
				return apperrors.Wrap(apperrors.ErrCorruptBlock, nil, "%s: unknown document ordinal %d", info.Path, p.Ordinal)
			}
			w := index.LogTF(len(p.Positions))
			sums[p.Ordinal] += w * w
		}
	}
}

// Merge runs the second pass and streams every term to sink. Norms must
// have been computed first.
func (m *Merger) Merge(ctx context.Context, sink Sink) (Stats, error) {
	if m.norms == nil && len(m.manifest.DocIDs) > 0 {
		return Stats{}, fmt.Errorf("merge pass started before norms were computed")
	}
	h := &cursorHeap{}
	opened := make([]*block.Cursor, 0, len(m.manifest.Blocks))
	defer func() {
		for _, c := range opened {
			c.Close()
		}
	}()
	for _, info := range m.manifest.Blocks {
		c, err := block.OpenCursor(info.Path, info.Number)
		if err != nil {
			return Stats{}, err
		}
		opened = append(opened, c)
		ok, err := c.Next()
		if err != nil {
			return Stats{}, err
		}
		if ok {
			*h = append(*h, c)
		}
	}
	heap.Init(h)

	var raw []index.RawPosting
	for h.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return Stats{}, err
		}
		term := (*h)[0].Term()
		raw = raw[:0]
		for h.Len() > 0 && (*h)[0].Term() == term {
			c := heap.Pop(h).(*block.Cursor)
			raw = append(raw, c.Entry().Postings...)
			ok, err := c.Next()
			if err != nil {
				return Stats{}, err
			}
			if ok {
				heap.Push(h, c)
			}
		}
		list, err := m.finalize(term, raw)
		if err != nil {
			return Stats{}, err
		}
		m.enqueue(term, list)
		if m.pendingSize >= m.memLimit {
			if err := m.flush(sink); err != nil {
				return Stats{}, err
			}
		}
	}
	if err := m.flush(sink); err != nil {
		return Stats{}, err
	}
	return m.stats, nil
}

// finalize remaps ordinals to document numbers, sorts, and converts term
// frequencies to normalized weights.
func (m *Merger) finalize(term string, raw []index.RawPosting) (index.PostingList, error) {
	list := make(index.PostingList, len(raw))
	for i, p := range raw {
		if int(p.Ordinal) >= len(m.docNums) {
			return nil, apperrors.Wrap(apperrors.ErrCorruptBlock, nil, "term %q: unknown document ordinal %d", term, p.Ordinal)
		}
		var weight float64
		if norm := m.norms[p.Ordinal]; norm > 0 {
			weight = index.LogTF(len(p.Positions)) / norm
		}
		list[i] = index.Posting{
			Doc:       m.docNums[p.Ordinal],
			Weight:    weight,
			Skip:      index.NoSkip,
			Positions: p.Positions,
		}
	}
	slices.SortFunc(list, func(a, b index.Posting) int {
		return cmp.Compare(a.Doc, b.Doc)
	})
	for i := 1; i < len(list); i++ {
		if list[i].Doc == list[i-1].Doc {
			return nil, apperrors.Wrap(apperrors.ErrCorruptBlock, nil, "term %q: document %s appears in two blocks", term, m.docTable[list[i].Doc])
		}
	}
	return list, nil
}

func (m *Merger) enqueue(term string, list index.PostingList) {
	size := int64(len(term) + termOverhead)
	for _, p := range list {
		size += postingOverhead + int64(len(p.Positions))*positionSize
	}
	m.pending = append(m.pending, pendingList{
		term: term,
		idf:  index.IDF(len(m.docTable), len(list)),
		list: list,
	})
	m.pendingSize += size
}

func (m *Merger) flush(sink Sink) error {
	if len(m.pending) == 0 {
		return nil
	}
	for _, p := range m.pending {
		skiplist.Attach(p.list)
		if err := sink.Add(p.term, p.idf, p.list); err != nil {
			return fmt.Errorf("writing postings of %q: %w", p.term, err)
		}
		m.stats.Terms++
		m.stats.Postings += len(p.list)
	}
	m.stats.Flushes++
	m.logger.Debug("postings flushed",
		"terms", len(m.pending),
		"bytes", m.pendingSize,
		"total_terms", m.stats.Terms,
	)
	clear(m.pending)
	m.pending = m.pending[:0]
	m.pendingSize = 0
	return nil
}

// cursorHeap orders block cursors by current term, then block number.
type cursorHeap []*block.Cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	if c := strings.Compare(h[i].Term(), h[j].Term()); c != 0 {
		return c < 0
	}
	return h[i].Number < h[j].Number
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) {
	*h = append(*h, x.(*block.Cursor))
}

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
