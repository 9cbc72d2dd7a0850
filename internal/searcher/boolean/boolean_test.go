package boolean

import (
	"context"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/skiplist"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/errors"
)

type memIndex struct {
	n     int
	lists map[string][]uint32
}

func (m memIndex) Postings(term string) (index.PostingList, error) {
	return toList(m.lists[term]), nil
}

func (m memIndex) DocCount() int { return m.n }

func toList(docs []uint32) index.PostingList {
	if len(docs) == 0 {
		return nil
	}
	pl := make(index.PostingList, len(docs))
	for i, d := range docs {
		pl[i] = index.Posting{Doc: d}
	}
	skiplist.Attach(pl)
	return pl
}

// doc1 "the cat sat", doc2 "the cat ran", doc3 "a dog ran"
var catIndex = memIndex{
	n: 3,
	lists: map[string][]uint32{
		"a":   {2},
		"cat": {0, 1},
		"dog": {2},
		"ran": {1, 2},
		"sat": {0},
		"the": {0, 1},
	},
}

func search(t *testing.T, idx Index, query string) []uint32 {
	t.Helper()
	docs, err := NewEvaluator(idx).Search(context.Background(), query)
	require.NoError(t, err, query)
	return docs
}

func TestSearchCatCorpus(t *testing.T) {
	tests := []struct {
		query string
		want  []uint32
	}{
		{"cat AND the", []uint32{0, 1}},
		{"cat AND NOT ran", []uint32{0}},
		{"dog OR cat", []uint32{0, 1, 2}},
		{"NOT cat", []uint32{2}},
		{"NOT (cat OR dog)", []uint32{}},
		{"unicorn", []uint32{}},
		{"unicorn OR dog", []uint32{2}},
		{"NOT unicorn", []uint32{0, 1, 2}},
		{"Cats AND Ran", []uint32{1}},
		{"(cat AND sat) OR (dog AND ran)", []uint32{0, 2}},
		{"NOT NOT sat", []uint32{0}},
		{"the AND cat OR dog", []uint32{0, 1, 2}},
		{"the AND (cat OR dog) AND NOT sat", []uint32{1}},
		{"((ran))", []uint32{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := search(t, catIndex, tt.query)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInvalidQueries(t *testing.T) {
	for _, q := range []string{
		"",
		"   ",
		"AND cat",
		"OR cat",
		"cat AND",
		"cat OR",
		"cat AND OR dog",
		"cat AND (OR dog)",
		"cat NOT",
		"NOT",
		"(cat",
		"cat)",
		"()",
		"cat dog",
		"cat NOT dog",
		"(cat) (dog)",
		"cat AND NOT",
	} {
		t.Run(q, func(t *testing.T) {
			_, err := NewEvaluator(catIndex).Search(context.Background(), q)
			assert.ErrorIs(t, err, apperrors.ErrInvalidQuery)
			assert.ErrorIs(t, Validate(q), apperrors.ErrInvalidQuery)
		})
	}
}

// tokenIndex indexes docs with the document tokenizer.
func tokenIndex(docs ...string) memIndex {
	idx := memIndex{n: len(docs), lists: map[string][]uint32{}}
	for i, d := range docs {
		for _, term := range tokenizer.Terms(d) {
			list := idx.lists[term]
			if n := len(list); n == 0 || list[n-1] != uint32(i) {
				idx.lists[term] = append(list, uint32(i))
			}
		}
	}
	return idx
}

func TestOperandsSplitLikeDocuments(t *testing.T) {
	idx := tokenIndex(
		"O'Brien filed in re:Smith",
		"brien alone",
		"smith v. jones",
	)
	tests := []struct {
		query string
		want  []uint32
	}{
		{"o'brien", []uint32{0}},
		{"re:smith", []uint32{0}},
		{"O'Brien AND re:smith", []uint32{0}},
		{"NOT o'brien", []uint32{1, 2}},
		{"re:smith OR jones", []uint32{0, 2}},
		{"(o'brien)", []uint32{0}},
		{"brien AND NOT o'brien", []uint32{1}},
		{"smith AND NOT !!!", []uint32{0, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, search(t, idx, tt.query))
		})
	}
	assert.ErrorIs(t, Validate("o'brien smith"), apperrors.ErrInvalidQuery)
}

func TestLowerCaseOperatorsAreTerms(t *testing.T) {
	assert.ErrorIs(t, Validate("cat and dog"), apperrors.ErrInvalidQuery)
	assert.NoError(t, Validate("cat AND and"))
}

func TestPrecedenceAndAssociativity(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"a OR b AND c", "(a OR (b AND c))"},
		{"a AND b OR c", "((a AND b) OR c)"},
		{"a OR b OR c", "((a OR b) OR c)"},
		{"a AND b AND c", "((a AND b) AND c)"},
		{"NOT a AND b", "(NOT a AND b)"},
		{"(a OR b) AND c", "((a OR b) AND c)"},
	}
	for _, tt := range tests {
		q, err := Parse(tt.query)
		require.NoError(t, err)
		assert.Equal(t, tt.want, q.Root.String(), tt.query)
	}
}

func TestNotFlattening(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"NOT (a AND b)", "(NOT a OR NOT b)"},
		{"NOT (a OR b)", "(NOT a AND NOT b)"},
		{"NOT NOT a", "a"},
		{"NOT (NOT a AND b)", "(a OR NOT b)"},
		{"NOT ((a OR b) AND NOT c)", "((NOT a AND NOT b) OR c)"},
	}
	for _, tt := range tests {
		q, err := Parse(tt.query)
		require.NoError(t, err)
		assert.Equal(t, tt.want, q.Root.String(), tt.query)
	}
}

func TestPostfixProgram(t *testing.T) {
	q, err := Parse("a AND NOT (b OR c)")
	require.NoError(t, err)
	var ops []string
	for _, op := range q.Program {
		ops = append(ops, op.String())
	}
	assert.Equal(t, []string{"a", "b", "NOT", "c", "NOT", "AND", "AND"}, ops)
}

func naiveIntersect(a, b index.PostingList) []uint32 {
	out := []uint32{}
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Doc == b[j].Doc:
			out = append(out, a[i].Doc)
			i++
			j++
		case a[i].Doc < b[j].Doc:
			i++
		default:
			j++
		}
	}
	return out
}

func randomDocs(r *rand.Rand, universe, n int) []uint32 {
	set := map[uint32]struct{}{}
	for len(set) < n {
		set[uint32(r.Intn(universe))] = struct{}{}
	}
	docs := make([]uint32, 0, n)
	for d := range set {
		docs = append(docs, d)
	}
	slices.Sort(docs)
	return docs
}

func TestSkipIntersectMatchesNaive(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 500; round++ {
		universe := 1 + r.Intn(2000)
		a := toList(randomDocs(r, universe, r.Intn(min(universe, 300)+1)))
		b := toList(randomDocs(r, universe, r.Intn(min(universe, 300)+1)))

		want := naiveIntersect(a, b)
		got := intersect(a, b).Docs()
		assert.Equal(t, want, got, "round %d", round)
		assert.Equal(t, got, intersect(b, a).Docs(), "commutative, round %d", round)
		assert.Equal(t, a.Docs(), intersect(a, a).Docs(), "idempotent, round %d", round)
	}
}

func TestSetAlgebraProperties(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	n := 500
	idx := memIndex{n: n, lists: map[string][]uint32{
		"x": randomDocs(r, n, 120),
		"y": randomDocs(r, n, 200),
		"z": randomDocs(r, n, 60),
	}}

	assert.Empty(t, search(t, idx, "x AND NOT x"))
	assert.Len(t, search(t, idx, "x OR NOT x"), n)
	assert.Equal(t, search(t, idx, "(x AND y) AND z"), search(t, idx, "x AND (y AND z)"))
	assert.Equal(t, search(t, idx, "x AND y"), search(t, idx, "y AND x"))
	assert.Equal(t, search(t, idx, "x OR y"), search(t, idx, "y OR x"))
	assert.Equal(t, search(t, idx, "NOT (x OR y)"), search(t, idx, "NOT x AND NOT y"))
	assert.Equal(t, search(t, idx, "x AND (y OR z)"), search(t, idx, "(x AND y) OR (x AND z)"))

	for _, q := range []string{"x AND y OR z", "NOT z OR x", "NOT (x AND NOT y)"} {
		docs := search(t, idx, q)
		assert.True(t, slices.IsSorted(docs), q)
		assert.Equal(t, len(docs), len(slices.Compact(slices.Clone(docs))), q)
	}
}

func TestComplementAndUnion(t *testing.T) {
	assert.Equal(t, []uint32{1, 3, 4}, complement(toList([]uint32{0, 2}), 5).Docs())
	assert.Empty(t, complement(nil, 0))
	assert.Equal(t, []uint32{0, 1, 2, 5}, union(toList([]uint32{0, 2}), toList([]uint32{1, 2, 5})).Docs())
	assert.Empty(t, union(nil, nil))
}

func TestEvaluateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEvaluator(catIndex).Search(ctx, "cat AND dog")
	assert.ErrorIs(t, err, context.Canceled)
}

func BenchmarkIntersect(b *testing.B) {
	r := rand.New(rand.NewSource(1))
	long := toList(randomDocs(r, 1_000_000, 100_000))
	short := toList(randomDocs(r, 1_000_000, 1_000))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		intersect(long, short)
	}
}
