// Package ranker scores free-text queries by TF-IDF cosine similarity. Query
// terms are weighted 1+log10(tf)*idf and unit-normalized; document weights
// are precomputed in the postings, so a document's score is the dot product
// of the two vectors over the query terms only.
package ranker

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/index"
)

// PhrasePolicy selects how phrase blocks combine with the free-text score.
type PhrasePolicy string

const (
	// PolicyIntersect ranks only documents matching every phrase.
	PolicyIntersect PhrasePolicy = "intersect"
	// PolicyAppend ranks phrase matches first, then everything else.
	PolicyAppend PhrasePolicy = "append"
)

const DefaultLimit = 10

// Index is the read side of the store the ranker needs.
type Index interface {
	Lookup(term string) (index.DictEntry, bool)
	Postings(term string) (index.PostingList, error)
}

// Options tune a single ranking.
type Options struct {
	Limit  int
	Policy PhrasePolicy
}

// Feedback is a set of documents known to be relevant to the query.
type Feedback struct {
	Relevant []uint32
	Alpha    float64
	Beta     float64
}

type Ranker struct {
	idx    Index
	logger *slog.Logger
}

func New(idx Index) *Ranker {
	return &Ranker{
		idx:    idx,
		logger: slog.Default().With("component", "ranker"),
	}
}

// Rank returns the top documents for q, best first, ties broken by
// ascending document number.
func (r *Ranker) Rank(ctx context.Context, q Query, opts Options) ([]ScoredDoc, error) {
	return r.rank(ctx, q, opts, nil)
}

// RankWithFeedback moves the query vector towards the centroid of the
// relevant documents (Rocchio) before ranking. The adjustment is limited
// to the query's own terms.
func (r *Ranker) RankWithFeedback(ctx context.Context, q Query, opts Options, fb Feedback) ([]ScoredDoc, error) {
	return r.rank(ctx, q, opts, &fb)
}

func (r *Ranker) rank(ctx context.Context, q Query, opts Options, fb *Feedback) ([]ScoredDoc, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	lists := make(map[string]index.PostingList)
	load := func(term string) (index.PostingList, error) {
		if pl, ok := lists[term]; ok {
			return pl, nil
		}
		pl, err := r.idx.Postings(term)
		if err != nil {
			return nil, fmt.Errorf("loading postings of %q: %w", term, err)
		}
		lists[term] = pl
		return pl, nil
	}

	terms, weights := r.queryVector(q.Terms)
	if fb != nil && len(fb.Relevant) > 0 {
		for i, term := range terms {
			pl, err := load(term)
			if err != nil {
				return nil, err
			}
			weights[i] = fb.Alpha*weights[i] + fb.Beta*centroid(pl, fb.Relevant)
		}
		normalize(weights)
	}

	scores := make(map[uint32]float64)
	for i, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if weights[i] == 0 {
			continue
		}
		pl, err := load(term)
		if err != nil {
			return nil, err
		}
		for _, p := range pl {
			scores[p.Doc] += weights[i] * p.Weight
		}
	}

	var result []ScoredDoc
	if len(q.Phrases) == 0 {
		result = topK(scores, limit, nil)
	} else {
		qualified, err := r.phraseMatches(q.Phrases, load)
		if err != nil {
			return nil, err
		}
		inPhrase := func(doc uint32) bool {
			_, ok := qualified[doc]
			return ok
		}
		result = topK(scores, limit, inPhrase)
		if len(result) < limit {
			result = append(result, unscored(qualified, scores, limit-len(result))...)
		}
		if opts.Policy == PolicyAppend && len(result) < limit {
			rest := topK(scores, limit-len(result), func(doc uint32) bool { return !inPhrase(doc) })
			result = append(result, rest...)
		}
	}
	r.logger.Debug("ranked query evaluated",
		"query", q.Raw,
		"terms", len(terms),
		"phrases", len(q.Phrases),
		"candidates", len(scores),
		"results", len(result),
	)
	return result, nil
}

// queryVector returns the distinct query terms in sorted order with their
// unit-normalized ltc weights. Unknown terms weigh zero.
func (r *Ranker) queryVector(words []string) ([]string, []float64) {
	tf := make(map[string]int)
	for _, w := range words {
		tf[w]++
	}
	terms := make([]string, 0, len(tf))
	for t := range tf {
		terms = append(terms, t)
	}
	slices.Sort(terms)
	weights := make([]float64, len(terms))
	for i, t := range terms {
		if entry, ok := r.idx.Lookup(t); ok {
			weights[i] = index.LogTF(tf[t]) * entry.IDF
		}
	}
	normalize(weights)
	return terms, weights
}

// phraseMatches returns the documents satisfying every phrase.
func (r *Ranker) phraseMatches(phrases [][]string, load func(string) (index.PostingList, error)) (map[uint32]struct{}, error) {
	var qualified map[uint32]struct{}
	for _, words := range phrases {
		lists := make([]index.PostingList, len(words))
		for i, w := range words {
			pl, err := load(w)
			if err != nil {
				return nil, err
			}
			lists[i] = pl
		}
		docs := phraseDocs(lists)
		if qualified == nil {
			qualified = docs
			continue
		}
		for doc := range qualified {
			if _, ok := docs[doc]; !ok {
				delete(qualified, doc)
			}
		}
	}
	return qualified, nil
}

// unscored returns up to k phrase matches that earned no free-text score,
// such as phrases made only of words present in every document. They rank
// after every scored match, by ascending document number.
func unscored(qualified map[uint32]struct{}, scores map[uint32]float64, k int) []ScoredDoc {
	var docs []uint32
	for doc := range qualified {
		if scores[doc] <= 0 {
			docs = append(docs, doc)
		}
	}
	slices.Sort(docs)
	if len(docs) > k {
		docs = docs[:k]
	}
	result := make([]ScoredDoc, len(docs))
	for i, doc := range docs {
		result[i] = ScoredDoc{Doc: doc}
	}
	return result
}

func normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] /= norm
	}
}

// centroid is the mean weight of pl's term over the relevant documents.
func centroid(pl index.PostingList, relevant []uint32) float64 {
	var sum float64
	for _, doc := range relevant {
		i, found := slices.BinarySearchFunc(pl, doc, func(p index.Posting, d uint32) int {
			return cmp.Compare(p.Doc, d)
		})
		if found {
			sum += pl[i].Weight
		}
	}
	return sum / float64(len(relevant))
}
