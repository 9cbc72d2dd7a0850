package segment

import (
	"bufio"
	"fmt"
	"hash"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/errors"
)

// Writer streams postings records into a temporary postings file and
// collects dictionary entries. Nothing is visible at the final paths until
// Commit renames both files into place.
type Writer struct {
	dictPath     string
	postingsPath string
	file         *os.File
	buf          *bufio.Writer
	crc          hash.Hash32
	offset       uint64
	terms        []index.DictEntry
	scratch      []byte
	done         bool
}

// Create opens a new postings file next to postingsPath.
func Create(dictPath, postingsPath string) (*Writer, error) {
	for _, p := range []string{dictPath, postingsPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrIO, err, "creating index directory")
		}
	}
	f, err := os.Create(postingsPath + ".tmp")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "creating postings file")
	}
	w := &Writer{
		dictPath:     dictPath,
		postingsPath: postingsPath,
		file:         f,
		buf:          bufio.NewWriterSize(f, 1<<16),
		crc:          crc32.NewIEEE(),
	}
	header := make([]byte, HeaderSize)
	putHeader(header, PostingsMagic)
	if err := w.write(header); err != nil {
		w.Abort()
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "writing postings header")
	}
	w.offset = uint64(HeaderSize)
	return w, nil
}

// Add appends the postings of term. Terms must arrive in ascending order.
func (w *Writer) Add(term string, idf float64, pl index.PostingList) error {
	if n := len(w.terms); n > 0 && w.terms[n-1].Term >= term {
		return fmt.Errorf("term %q added after %q", term, w.terms[n-1].Term)
	}
	w.scratch = appendRecord(w.scratch[:0], pl)
	if err := w.write(w.scratch); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "writing postings for %q", term)
	}
	w.terms = append(w.terms, index.DictEntry{
		Term:    term,
		IDF:     idf,
		DocFreq: uint32(len(pl)),
		Offset:  w.offset,
		Length:  uint32(len(w.scratch)),
	})
	w.offset += uint64(len(w.scratch))
	return nil
}

func (w *Writer) write(p []byte) error {
	w.crc.Write(p)
	_, err := w.buf.Write(p)
	return err
}

// Terms returns the number of terms added so far.
func (w *Writer) Terms() int {
	return len(w.terms)
}

// Commit writes the dictionary with the given document table and publishes
// both files. The postings file is renamed first so a visible dictionary
// always refers to a complete postings file.
func (w *Writer) Commit(docs []string) (err error) {
	defer func() {
		if err != nil {
			w.Abort()
		}
	}()
	if err := w.buf.Flush(); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "flushing postings file")
	}
	if err := w.file.Sync(); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "syncing postings file")
	}
	if err := w.file.Close(); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "closing postings file")
	}

	dictTmp := w.dictPath + ".tmp"
	d := dictionary{
		Docs:         docs,
		Terms:        w.terms,
		PostingsSize: w.offset,
		PostingsCRC:  w.crc.Sum32(),
	}
	if err := writeDictionary(dictTmp, d); err != nil {
		return err
	}
	if err := os.Rename(w.postingsPath+".tmp", w.postingsPath); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "renaming postings file")
	}
	if err := os.Rename(dictTmp, w.dictPath); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "renaming dictionary file")
	}
	w.done = true
	return nil
}

// Abort discards the temporary files. It is a no-op after Commit.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.file.Close()
	os.Remove(w.postingsPath + ".tmp")
	os.Remove(w.dictPath + ".tmp")
}

func writeDictionary(path string, d dictionary) error {
	body, err := msgpack.Marshal(&d)
	if err != nil {
		return fmt.Errorf("encoding dictionary: %w", err)
	}
	data := make([]byte, HeaderSize, HeaderSize+len(body))
	putHeader(data, DictionaryMagic)
	data = append(data, body...)

	f, err := os.Create(path)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "creating dictionary file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return apperrors.Wrap(apperrors.ErrIO, err, "writing dictionary file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return apperrors.Wrap(apperrors.ErrIO, err, "syncing dictionary file")
	}
	if err := f.Close(); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "closing dictionary file")
	}
	return nil
}
