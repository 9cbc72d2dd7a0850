// Package block implements the first phase of the index build: documents
// are inverted into an in-memory partial index that is flushed to an
// immutable, term-sorted block file whenever its estimated footprint
// crosses the configured budget.
package block

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/errors"
)

const (
	fileSuffix      = ".blk"
	termOverhead    = 64
	postingOverhead = 24
	positionSize    = 4
)

// Info describes one flushed block.
type Info struct {
	Number  int
	Path    string
	Entries int
	Docs    int
	Bytes   int64
}

// Manifest is the output of the build phase: every block written, in order,
// and the external IDs of all documents indexed, in arrival order. A
// document's arrival ordinal is its index in DocIDs.
type Manifest struct {
	Blocks []Info
	DocIDs []string
}

// FileName returns the canonical name of block number n.
func FileName(n int) string {
	return fmt.Sprintf("block-%06d%s", n, fileSuffix)
}

// Builder accumulates term -> document ordinal -> positions and spills it
// to disk as blocks. It is not safe for concurrent use.
type Builder struct {
	dir      string
	memLimit int64
	onFlush  func(Info)
	logger   *slog.Logger

	postings  map[string]map[uint32][]uint32
	size      int64
	blockDocs int

	docIDs []string
	seen   map[string]struct{}
	blocks []Info
}

// NewBuilder prepares dir for a fresh build, removing block files left by a
// previous run. onFlush, if non-nil, is called after every block is written.
func NewBuilder(dir string, memLimit int64, onFlush func(Info)) (*Builder, error) {
	if memLimit <= 0 {
		return nil, fmt.Errorf("block memory limit must be positive, got %d", memLimit)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "creating block directory")
	}
	if err := clean(dir); err != nil {
		return nil, err
	}
	return &Builder{
		dir:      dir,
		memLimit: memLimit,
		onFlush:  onFlush,
		logger:   slog.Default().With("component", "block-builder"),
		postings: make(map[string]map[uint32][]uint32),
		seen:     make(map[string]struct{}),
	}, nil
}

// Add inverts one document into the accumulator, flushing a block once the
// memory budget is reached. Flushes happen only between documents, so a
// document's postings for a term never span two blocks.
func (b *Builder) Add(doc corpus.Document) error {
	if _, dup := b.seen[doc.ID]; dup {
		return apperrors.Wrap(apperrors.ErrInvalidInput, nil, "duplicate document id %q", doc.ID)
	}
	b.seen[doc.ID] = struct{}{}
	ordinal := uint32(len(b.docIDs))
	b.docIDs = append(b.docIDs, doc.ID)

	for tok := range tokenizer.Tokens(doc.Text()) {
		docs, ok := b.postings[tok.Term]
		if !ok {
			docs = make(map[uint32][]uint32)
			b.postings[tok.Term] = docs
			b.size += int64(len(tok.Term) + termOverhead)
		}
		positions, ok := docs[ordinal]
		if !ok {
			b.size += postingOverhead
		}
		docs[ordinal] = append(positions, uint32(tok.Position))
		b.size += positionSize
	}
	b.blockDocs++

	if b.size >= b.memLimit {
		b.logger.Debug("block memory budget reached",
			"size", b.size,
			"threshold", b.memLimit,
		)
		return b.flush()
	}
	return nil
}

// Size returns the estimated footprint of the accumulator in bytes.
func (b *Builder) Size() int64 {
	return b.size
}

// Finish flushes the last partial block and returns the manifest. At least
// one block is always written, even for an empty collection.
func (b *Builder) Finish() (Manifest, error) {
	if len(b.postings) > 0 || b.blockDocs > 0 || len(b.blocks) == 0 {
		if err := b.flush(); err != nil {
			return Manifest{}, err
		}
	}
	m := Manifest{Blocks: b.blocks, DocIDs: b.docIDs}
	b.postings = nil
	b.seen = nil
	return m, nil
}

func (b *Builder) flush() error {
	entries := b.snapshot()
	number := len(b.blocks) + 1
	path := filepath.Join(b.dir, FileName(number))
	if err := writeFile(path, entries, b.blockDocs); err != nil {
		return fmt.Errorf("flushing block %d: %w", number, err)
	}
	var size int64
	if st, err := os.Stat(path); err == nil {
		size = st.Size()
	}
	info := Info{
		Number:  number,
		Path:    path,
		Entries: len(entries),
		Docs:    b.blockDocs,
		Bytes:   size,
	}
	b.blocks = append(b.blocks, info)
	b.logger.Info("block flushed",
		"block", filepath.Base(path),
		"terms", info.Entries,
		"docs", info.Docs,
		"bytes", info.Bytes,
	)
	if b.onFlush != nil {
		b.onFlush(info)
	}
	b.postings = make(map[string]map[uint32][]uint32)
	b.size = 0
	b.blockDocs = 0
	return nil
}

// snapshot returns the accumulator as term-sorted entries with postings
// sorted by ordinal.
func (b *Builder) snapshot() []index.TermEntry {
	entries := make([]index.TermEntry, 0, len(b.postings))
	for term, docs := range b.postings {
		postings := make([]index.RawPosting, 0, len(docs))
		for ordinal, positions := range docs {
			postings = append(postings, index.RawPosting{Ordinal: ordinal, Positions: positions})
		}
		slices.SortFunc(postings, func(x, y index.RawPosting) int {
			return cmp.Compare(x.Ordinal, y.Ordinal)
		})
		entries = append(entries, index.TermEntry{Term: term, Postings: postings})
	}
	slices.SortFunc(entries, func(x, y index.TermEntry) int {
		return strings.Compare(x.Term, y.Term)
	})
	return entries
}

// Remove deletes the block files listed in m.
func Remove(m Manifest) error {
	for _, blk := range m.Blocks {
		if err := os.Remove(blk.Path); err != nil && !os.IsNotExist(err) {
			return apperrors.Wrap(apperrors.ErrIO, err, "removing block %s", blk.Path)
		}
	}
	return nil
}

func clean(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "reading block directory")
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, fileSuffix) || strings.HasSuffix(name, fileSuffix+".tmp")) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return apperrors.Wrap(apperrors.ErrIO, err, "removing stale block %s", name)
		}
	}
	return nil
}
