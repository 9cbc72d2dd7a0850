// Package segment is the on-disk dictionary/postings store. The dictionary
// file holds the document table and every term's statistics; the postings
// file holds one independently decodable record per term, addressed by
// (offset, length) from the dictionary.
package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/index"
)

// Magic numbers of the two store files.
const (
	DictionaryMagic uint32 = 0x53504458 // SPDX
	PostingsMagic   uint32 = 0x53505053 // SPPS
	FormatVersion   uint32 = 1
	HeaderSize      int    = 8
)

// dictionary is the msgpack document following the dictionary header.
// PostingsSize and PostingsCRC pin the postings file it was committed with.
type dictionary struct {
	Docs         []string          `msgpack:"docs"`
	Terms        []index.DictEntry `msgpack:"terms"`
	PostingsSize uint64            `msgpack:"postings_size"`
	PostingsCRC  uint32            `msgpack:"postings_crc"`
}

var errShortRecord = errors.New("short postings record")

func putHeader(buf []byte, magic uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], FormatVersion)
}

func checkHeader(buf []byte, magic uint32) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("header truncated: %d bytes", len(buf))
	}
	if got := binary.LittleEndian.Uint32(buf[0:4]); got != magic {
		return fmt.Errorf("bad magic bytes %x", got)
	}
	if v := binary.LittleEndian.Uint32(buf[4:8]); v != FormatVersion {
		return fmt.Errorf("unsupported format version %d", v)
	}
	return nil
}

// appendRecord encodes pl onto buf: a uvarint count, then per posting the
// document delta, the weight as a little-endian float64, the skip target
// plus one (zero for none) and the delta-encoded positions.
func appendRecord(buf []byte, pl index.PostingList) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(pl)))
	var prevDoc uint32
	for i, p := range pl {
		delta := p.Doc
		if i > 0 {
			delta = p.Doc - prevDoc
		}
		prevDoc = p.Doc
		buf = binary.AppendUvarint(buf, uint64(delta))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Weight))
		buf = binary.AppendUvarint(buf, uint64(p.Skip+1))
		buf = binary.AppendUvarint(buf, uint64(len(p.Positions)))
		var prevPos uint32
		for _, pos := range p.Positions {
			buf = binary.AppendUvarint(buf, uint64(pos-prevPos))
			prevPos = pos
		}
	}
	return buf
}

// decodeRecord is the inverse of appendRecord. It rejects records whose
// document numbers are not strictly ascending or whose skips point backwards
// or out of range.
func decodeRecord(data []byte) (index.PostingList, error) {
	r := recordReader{data: data}
	count := r.uvarint()
	if r.err != nil {
		return nil, r.err
	}
	if count > uint64(len(data)) {
		return nil, fmt.Errorf("posting count %d exceeds record size", count)
	}
	pl := make(index.PostingList, count)
	var doc uint64
	for i := range pl {
		delta := r.uvarint()
		if i > 0 && delta == 0 && r.err == nil {
			return nil, fmt.Errorf("posting %d: document numbers not ascending", i)
		}
		doc += delta
		weight := r.float64()
		skip := r.uvarint()
		npos := r.uvarint()
		if r.err != nil {
			return nil, fmt.Errorf("posting %d: %w", i, r.err)
		}
		if doc > math.MaxUint32 {
			return nil, fmt.Errorf("posting %d: document number overflow", i)
		}
		if skip != 0 && (skip-1 <= uint64(i) || skip-1 >= count) {
			return nil, fmt.Errorf("posting %d: skip target %d out of range", i, skip-1)
		}
		if npos > uint64(len(data)) {
			return nil, fmt.Errorf("posting %d: position count %d exceeds record size", i, npos)
		}
		var positions []uint32
		if npos > 0 {
			positions = make([]uint32, npos)
			var pos uint64
			for j := range positions {
				pos += r.uvarint()
				positions[j] = uint32(pos)
			}
			if r.err != nil {
				return nil, fmt.Errorf("posting %d positions: %w", i, r.err)
			}
		}
		pl[i] = index.Posting{
			Doc:       uint32(doc),
			Weight:    weight,
			Skip:      int32(skip) - 1,
			Positions: positions,
		}
	}
	if r.off != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after postings record", len(data)-r.off)
	}
	return pl, nil
}

type recordReader struct {
	data []byte
	off  int
	err  error
}

func (r *recordReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.data[r.off:])
	if n <= 0 {
		r.err = errShortRecord
		return 0
	}
	r.off += n
	return v
}

func (r *recordReader) float64() float64 {
	if r.err != nil {
		return 0
	}
	if len(r.data)-r.off < 8 {
		r.err = errShortRecord
		return 0
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.data[r.off:]))
	r.off += 8
	return v
}
