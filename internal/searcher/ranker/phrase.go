package ranker

import (
	"slices"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/index"
)

// phraseDocs returns the documents in which words occur consecutively. lists
// holds the postings of each word, in phrase order.
func phraseDocs(lists []index.PostingList) map[uint32]struct{} {
	matches := make(map[uint32]struct{})
	if len(lists) == 0 {
		return matches
	}
	cursors := make([]int, len(lists))
	for _, first := range lists[0] {
		postings := make([]index.Posting, len(lists))
		postings[0] = first
		found := true
		for i := 1; i < len(lists); i++ {
			l := lists[i]
			c := cursors[i]
			for c < len(l) && l[c].Doc < first.Doc {
				c++
			}
			cursors[i] = c
			if c == len(l) || l[c].Doc != first.Doc {
				found = false
				break
			}
			postings[i] = l[c]
		}
		if found && aligned(postings) {
			matches[first.Doc] = struct{}{}
		}
	}
	return matches
}

// aligned reports whether some position p of the first word has word i at
// p+i for every i.
func aligned(postings []index.Posting) bool {
	for _, p := range postings[0].Positions {
		ok := true
		for i := 1; i < len(postings); i++ {
			if _, found := slices.BinarySearch(postings[i].Positions, p+uint32(i)); !found {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
