package segment

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"slices"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/errors"
)

// Reader serves postings lookups from a committed store. The dictionary is
// held in memory; postings are read with ReadAt, so a Reader is safe for
// concurrent use.
type Reader struct {
	file  *os.File
	size  int64
	crc   uint32
	docs  []string
	terms []index.DictEntry
}

// Open loads the dictionary and validates both file headers. A missing file
// yields ErrMissingIndexFile; a malformed one ErrCorruptIndex.
func Open(dictPath, postingsPath string) (*Reader, error) {
	data, err := os.ReadFile(dictPath)
	if err != nil {
		return nil, openError(dictPath, err)
	}
	if err := checkHeader(data, DictionaryMagic); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCorruptIndex, err, "%s", dictPath)
	}
	var d dictionary
	if err := msgpack.Unmarshal(data[HeaderSize:], &d); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCorruptIndex, err, "%s", dictPath)
	}

	f, err := os.Open(postingsPath)
	if err != nil {
		return nil, openError(postingsPath, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "stat %s", postingsPath)
	}
	header := make([]byte, HeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		f.Close()
		return nil, apperrors.Wrap(apperrors.ErrCorruptIndex, err, "%s", postingsPath)
	}
	if err := checkHeader(header, PostingsMagic); err != nil {
		f.Close()
		return nil, apperrors.Wrap(apperrors.ErrCorruptIndex, err, "%s", postingsPath)
	}
	if err := checkPostings(f, st.Size(), d); err != nil {
		f.Close()
		return nil, apperrors.Wrap(apperrors.ErrCorruptIndex, err, "%s does not belong to %s", postingsPath, dictPath)
	}
	for i, t := range d.Terms {
		if i > 0 && d.Terms[i-1].Term >= t.Term {
			f.Close()
			return nil, apperrors.Wrap(apperrors.ErrCorruptIndex, nil, "%s: terms out of order at %q", dictPath, t.Term)
		}
		if t.Offset < uint64(HeaderSize) || t.Offset+uint64(t.Length) > uint64(st.Size()) {
			f.Close()
			return nil, apperrors.Wrap(apperrors.ErrCorruptIndex, nil, "%s: postings of %q out of bounds", dictPath, t.Term)
		}
	}
	return &Reader{
		file:  f,
		size:  st.Size(),
		crc:   d.PostingsCRC,
		docs:  d.Docs,
		terms: d.Terms,
	}, nil
}

// checkPostings compares the postings file against the size and checksum
// recorded in its dictionary at commit time.
func checkPostings(f *os.File, size int64, d dictionary) error {
	if uint64(size) != d.PostingsSize {
		return fmt.Errorf("postings size %d, dictionary says %d", size, d.PostingsSize)
	}
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, size)); err != nil {
		return err
	}
	if sum := h.Sum32(); sum != d.PostingsCRC {
		return fmt.Errorf("postings checksum %08x, dictionary says %08x", sum, d.PostingsCRC)
	}
	return nil
}

func openError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return apperrors.Wrap(apperrors.ErrMissingIndexFile, err, "%s", path)
	}
	return apperrors.Wrap(apperrors.ErrIO, err, "opening %s", path)
}

// Lookup returns the dictionary entry of term.
func (r *Reader) Lookup(term string) (index.DictEntry, bool) {
	i := sort.Search(len(r.terms), func(i int) bool {
		return r.terms[i].Term >= term
	})
	if i >= len(r.terms) || r.terms[i].Term != term {
		return index.DictEntry{}, false
	}
	return r.terms[i], true
}

// Postings reads and decodes the postings list of term. Unknown terms yield
// an empty list and no error.
func (r *Reader) Postings(term string) (index.PostingList, error) {
	entry, ok := r.Lookup(term)
	if !ok {
		return nil, nil
	}
	data := make([]byte, entry.Length)
	if _, err := r.file.ReadAt(data, int64(entry.Offset)); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "reading postings of %q", term)
	}
	pl, err := decodeRecord(data)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCorruptIndex, err, "postings of %q", term)
	}
	if uint32(len(pl)) != entry.DocFreq {
		return nil, apperrors.Wrap(apperrors.ErrCorruptIndex, nil, "postings of %q: %d entries, dictionary says %d", term, len(pl), entry.DocFreq)
	}
	if n := len(pl); n > 0 && int(pl[n-1].Doc) >= len(r.docs) {
		return nil, apperrors.Wrap(apperrors.ErrCorruptIndex, nil, "postings of %q reference unknown document %d", term, pl[n-1].Doc)
	}
	return pl, nil
}

// Fingerprint identifies the committed postings content. Identical builds
// share a fingerprint.
func (r *Reader) Fingerprint() string {
	return fmt.Sprintf("%08x-%d", r.crc, r.size)
}

// DocCount returns N, the number of indexed documents.
func (r *Reader) DocCount() int {
	return len(r.docs)
}

// DocID returns the external ID of document number n.
func (r *Reader) DocID(n uint32) string {
	return r.docs[n]
}

// DocIDs maps document numbers to external IDs.
func (r *Reader) DocIDs(nums []uint32) []string {
	ids := make([]string, len(nums))
	for i, n := range nums {
		ids[i] = r.docs[n]
	}
	return ids
}

// DocNum returns the document number of an external ID.
func (r *Reader) DocNum(id string) (uint32, bool) {
	i, ok := slices.BinarySearchFunc(r.docs, id, corpus.CompareIDs)
	return uint32(i), ok
}

// Terms returns the number of distinct terms.
func (r *Reader) Terms() int {
	return len(r.terms)
}

// Size returns the postings file size in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

func (r *Reader) Close() error {
	return r.file.Close()
}
