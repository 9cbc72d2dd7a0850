package merge

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/block"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/index"
)

type memSink struct {
	terms []string
	idf   map[string]float64
	lists map[string]index.PostingList
}

func newMemSink() *memSink {
	return &memSink{idf: map[string]float64{}, lists: map[string]index.PostingList{}}
}

func (s *memSink) Add(term string, idf float64, pl index.PostingList) error {
	s.terms = append(s.terms, term)
	s.idf[term] = idf
	s.lists[term] = append(index.PostingList(nil), pl...)
	return nil
}

func buildBlocks(t *testing.T, memLimit int64, docs ...corpus.Document) block.Manifest {
	t.Helper()
	b, err := block.NewBuilder(t.TempDir(), memLimit, nil)
	require.NoError(t, err)
	for _, d := range docs {
		require.NoError(t, b.Add(d))
	}
	m, err := b.Finish()
	require.NoError(t, err)
	return m
}

func runMerge(t *testing.T, m block.Manifest, memLimit int64) (*Merger, *memSink, Stats) {
	t.Helper()
	mg, err := New(m, memLimit)
	require.NoError(t, err)
	_, err = mg.Norms(context.Background())
	require.NoError(t, err)
	sink := newMemSink()
	stats, err := mg.Merge(context.Background(), sink)
	require.NoError(t, err)
	return mg, sink, stats
}

func sampleDocs() []corpus.Document {
	return []corpus.Document{
		{ID: "doc3", Content: "a dog ran"},
		{ID: "doc1", Content: "the cat sat"},
		{ID: "doc2", Content: "the cat ran"},
	}
}

func TestMergeAcrossBlocks(t *testing.T) {
	single := buildBlocks(t, 1<<30, sampleDocs()...)
	multi := buildBlocks(t, 1, sampleDocs()...)
	require.Len(t, single.Blocks, 1)
	require.Len(t, multi.Blocks, 3)

	_, a, statsA := runMerge(t, single, 1<<30)
	mg, b, statsB := runMerge(t, multi, 1)

	assert.Equal(t, a.terms, b.terms)
	assert.Equal(t, a.lists, b.lists)
	assert.Equal(t, statsA.Terms, statsB.Terms)
	assert.Equal(t, 1, statsA.Flushes)
	assert.Equal(t, statsB.Terms, statsB.Flushes)

	assert.Equal(t, []string{"doc1", "doc2", "doc3"}, mg.DocTable())
	assert.Equal(t, []string{"a", "cat", "dog", "ran", "sat", "the"}, b.terms)
	assert.Equal(t, []uint32{0, 1}, b.lists["cat"].Docs())
	assert.Equal(t, []uint32{1, 2}, b.lists["ran"].Docs())
	assert.InDelta(t, math.Log10(3.0/2.0), b.idf["cat"], 1e-12)
	assert.InDelta(t, math.Log10(3.0), b.idf["dog"], 1e-12)
}

func TestMergeWeightsAreUnitNormalized(t *testing.T) {
	docs := []corpus.Document{
		{ID: "1", Content: "rose rose rose is a rose"},
		{ID: "2", Content: "a rose by any other name"},
		{ID: "3", Content: "name name name"},
	}
	_, sink, _ := runMerge(t, buildBlocks(t, 64, docs...), 128)

	sums := map[uint32]float64{}
	for _, term := range sink.terms {
		pl := sink.lists[term]
		for i, p := range pl {
			if i > 0 {
				assert.Greater(t, p.Doc, pl[i-1].Doc, "term %s", term)
			}
			sums[p.Doc] += p.Weight * p.Weight
		}
	}
	require.Len(t, sums, 3)
	for doc, s := range sums {
		assert.InDelta(t, 1.0, s, 1e-9, "doc %d", doc)
	}

	rose := sink.lists["rose"]
	require.Len(t, rose, 2)
	assert.Equal(t, []uint32{0, 1, 2, 5}, rose[0].Positions)
}

func TestMergeAttachesSkips(t *testing.T) {
	var docs []corpus.Document
	for i := 0; i < 16; i++ {
		docs = append(docs, corpus.Document{ID: fmt.Sprint(i), Content: "common"})
	}
	_, sink, _ := runMerge(t, buildBlocks(t, 256, docs...), 1<<20)
	pl := sink.lists["common"]
	require.Len(t, pl, 16)
	assert.Equal(t, int32(4), pl[0].Skip)
	assert.Equal(t, index.NoSkip, pl[1].Skip)
	assert.Equal(t, int32(8), pl[4].Skip)
	for i, p := range pl {
		assert.Equal(t, uint32(i), p.Doc)
	}
}

func TestMergeNumericIDsSortNaturally(t *testing.T) {
	docs := []corpus.Document{
		{ID: "10", Content: "x"},
		{ID: "9", Content: "x"},
		{ID: "100", Content: "x"},
	}
	mg, sink, _ := runMerge(t, buildBlocks(t, 1, docs...), 1<<20)
	assert.Equal(t, []string{"9", "10", "100"}, mg.DocTable())
	assert.Equal(t, []uint32{0, 1, 2}, sink.lists["x"].Docs())
}

func TestMergeEmptyCollection(t *testing.T) {
	mg, sink, stats := runMerge(t, buildBlocks(t, 1024), 1024)
	assert.Empty(t, mg.DocTable())
	assert.Empty(t, sink.terms)
	assert.Zero(t, stats.Terms)
}

func TestMergeRequiresNorms(t *testing.T) {
	mg, err := New(buildBlocks(t, 1024, sampleDocs()...), 1024)
	require.NoError(t, err)
	_, err = mg.Merge(context.Background(), newMemSink())
	assert.Error(t, err)
}

func TestMergeHonoursCancellation(t *testing.T) {
	mg, err := New(buildBlocks(t, 1024, sampleDocs()...), 1024)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = mg.Norms(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
