package block

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/errors"
)

// MagicBytes identifies a valid block file.
const (
	MagicBytes    uint32 = 0x5350424B
	FormatVersion uint32 = 1
	HeaderSize    int    = 16
	FooterSize    int    = 4

	maxRecordSize = 1 << 30
)

// Header is the fixed-size prefix of every block file.
type Header struct {
	Magic   uint32
	Version uint32
	Entries uint32
	Docs    uint32
}

// writeFile atomically creates a block file containing entries, which must
// already be sorted by term. Records are length-prefixed msgpack documents
// followed by a CRC32 of all record bytes.
func writeFile(path string, entries []index.TermEntry, docs int) (err error) {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "creating block file %s", tmpPath)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriterSize(f, 1<<16)
	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(entries)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(docs))
	if _, err := w.Write(header); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "writing block header")
	}

	crc := crc32.NewIEEE()
	body := io.MultiWriter(w, crc)
	var lenBuf [4]byte
	for _, entry := range entries {
		data, err := msgpack.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("encoding block entry %q: %w", entry.Term, err)
		}
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
		if _, err := body.Write(lenBuf[:]); err != nil {
			return apperrors.Wrap(apperrors.ErrIO, err, "writing block entry %q", entry.Term)
		}
		if _, err := body.Write(data); err != nil {
			return apperrors.Wrap(apperrors.ErrIO, err, "writing block entry %q", entry.Term)
		}
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer, crc.Sum32())
	if _, err := w.Write(footer); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "writing block footer")
	}
	if err := w.Flush(); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "flushing block file")
	}
	if err := f.Sync(); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "syncing block file")
	}
	if err := f.Close(); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "closing block file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "renaming block file")
	}
	return nil
}

// Cursor decodes a block file one term entry at a time.
type Cursor struct {
	Number int

	file    *os.File
	path    string
	r       *bufio.Reader
	header  Header
	read    uint32
	crc     uint32
	current index.TermEntry
	done    bool
}

// OpenCursor opens the block file at path and validates its header. number
// is the block's sequence number, used to break ties between cursors.
func OpenCursor(path string, number int) (*Cursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "opening block %s", path)
	}
	c := &Cursor{
		Number: number,
		file:   f,
		path:   path,
		r:      bufio.NewReaderSize(f, 1<<16),
	}
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		f.Close()
		return nil, apperrors.Wrap(apperrors.ErrCorruptBlock, err, "reading header of %s", path)
	}
	c.header = Header{
		Magic:   binary.LittleEndian.Uint32(buf[0:4]),
		Version: binary.LittleEndian.Uint32(buf[4:8]),
		Entries: binary.LittleEndian.Uint32(buf[8:12]),
		Docs:    binary.LittleEndian.Uint32(buf[12:16]),
	}
	if c.header.Magic != MagicBytes {
		f.Close()
		return nil, apperrors.Wrap(apperrors.ErrCorruptBlock, nil, "%s: bad magic bytes %x", path, c.header.Magic)
	}
	if c.header.Version != FormatVersion {
		f.Close()
		return nil, apperrors.Wrap(apperrors.ErrCorruptBlock, nil, "%s: unsupported version %d", path, c.header.Version)
	}
	return c, nil
}

// Header returns the block header.
func (c *Cursor) Header() Header {
	return c.header
}

// Next advances to the following entry. It returns false once every entry
// has been read and the checksum verified.
func (c *Cursor) Next() (bool, error) {
	if c.done {
		return false, nil
	}
	if c.read == c.header.Entries {
		c.done = true
		return false, c.verifyFooter()
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return false, c.corrupt(err, "reading entry %d length", c.read)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxRecordSize {
		return false, c.corrupt(nil, "entry %d length %d exceeds limit", c.read, n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(c.r, data); err != nil {
		return false, c.corrupt(err, "reading entry %d", c.read)
	}
	c.crc = crc32.Update(c.crc, crc32.IEEETable, lenBuf[:])
	c.crc = crc32.Update(c.crc, crc32.IEEETable, data)

	var entry index.TermEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return false, c.corrupt(err, "decoding entry %d", c.read)
	}
	c.current = entry
	c.read++
	return true, nil
}

// Entry returns the entry the cursor is positioned on.
func (c *Cursor) Entry() index.TermEntry {
	return c.current
}

// Term returns the term the cursor is positioned on.
func (c *Cursor) Term() string {
	return c.current.Term
}

// Close releases the underlying file.
func (c *Cursor) Close() error {
	return c.file.Close()
}

func (c *Cursor) verifyFooter() error {
	footer := make([]byte, FooterSize)
	if _, err := io.ReadFull(c.r, footer); err != nil {
		return c.corrupt(err, "reading footer")
	}
	if want := binary.LittleEndian.Uint32(footer); want != c.crc {
		return apperrors.Wrap(apperrors.ErrCorruptBlock, nil, "%s: checksum mismatch (stored %08x, computed %08x)", c.path, want, c.crc)
	}
	if _, err := c.r.ReadByte(); !errors.Is(err, io.EOF) {
		return apperrors.Wrap(apperrors.ErrCorruptBlock, nil, "%s: trailing data after footer", c.path)
	}
	return nil
}

func (c *Cursor) corrupt(err error, format string, args ...any) error {
	return apperrors.Wrap(apperrors.ErrCorruptBlock, err, "%s: %s", c.path, fmt.Sprintf(format, args...))
}
