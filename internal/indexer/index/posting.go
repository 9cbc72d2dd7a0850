// Package index defines the posting and dictionary value types shared by
// the build pipeline and the query evaluators.
package index

import "math"

// NoSkip marks a posting without a skip pointer.
const NoSkip int32 = -1

// Posting is one document entry of a term's postings list. Weight is the
// log-dampened term frequency divided by the document's length norm. Skip is
// the index of another posting in the same list, or NoSkip.
type Posting struct {
	Doc       uint32
	Weight    float64
	Skip      int32
	Positions []uint32
}

// PostingList is ordered strictly ascending by Doc.
type PostingList []Posting

// Docs returns the document numbers of the list.
func (pl PostingList) Docs() []uint32 {
	docs := make([]uint32, len(pl))
	for i, p := range pl {
		docs[i] = p.Doc
	}
	return docs
}

// RawPosting is a posting as accumulated during block building: a document
// ordinal (arrival order) and the token positions of the term in it.
type RawPosting struct {
	Ordinal   uint32   `msgpack:"o"`
	Positions []uint32 `msgpack:"p"`
}

// TermEntry is one term of a block.
type TermEntry struct {
	Term     string       `msgpack:"t"`
	Postings []RawPosting `msgpack:"p"`
}

// DictEntry maps a term to its scoring statistic and the location of its
// postings record.
type DictEntry struct {
	Term    string  `msgpack:"t"`
	IDF     float64 `msgpack:"i"`
	DocFreq uint32  `msgpack:"d"`
	Offset  uint64  `msgpack:"o"`
	Length  uint32  `msgpack:"l"`
}

// LogTF returns 1 + log10(tf), or 0 for tf == 0.
func LogTF(tf int) float64 {
	if tf <= 0 {
		return 0
	}
	return 1 + math.Log10(float64(tf))
}

// IDF returns log10(n / df), or 0 when df is zero.
func IDF(n, df int) float64 {
	if df <= 0 || n <= 0 {
		return 0
	}
	return math.Log10(float64(n) / float64(df))
}
