package ranker

import (
	"container/heap"
)

// ScoredDoc is a document number with its cosine score.
type ScoredDoc struct {
	Doc   uint32
	Score float64
}

// better reports whether a ranks above b: higher score, then lower number.
func better(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Doc < b.Doc
}

// topK returns the k best documents of scores accepted by keep, best first.
// Zero scores are never returned.
func topK(scores map[uint32]float64, k int, keep func(uint32) bool) []ScoredDoc {
	if k <= 0 {
		return nil
	}
	h := &scoredDocHeap{}
	for doc, score := range scores {
		if score <= 0 || (keep != nil && !keep(doc)) {
			continue
		}
		sd := ScoredDoc{Doc: doc, Score: score}
		if h.Len() < k {
			heap.Push(h, sd)
			continue
		}
		if better(sd, (*h)[0]) {
			(*h)[0] = sd
			heap.Fix(h, 0)
		}
	}
	result := make([]ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ScoredDoc)
	}
	return result
}

// scoredDocHeap keeps the worst retained document at the root.
type scoredDocHeap []ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return better(h[j], h[i]) }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
