package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/block"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/metrics"
)

func testConfig(t *testing.T) config.IndexerConfig {
	cfg := config.Default().Indexer
	cfg.DataDir = t.TempDir()
	return cfg
}

var catCorpus = corpus.Static{
	{ID: "doc1", Content: "the cat sat"},
	{ID: "doc2", Content: "the cat ran"},
	{ID: "doc3", Content: "a dog ran"},
}

type recordingNotifier struct {
	events []kafka.Event
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, ev kafka.Event) error {
	n.events = append(n.events, ev)
	return n.err
}

func TestBuildRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	notifier := &recordingNotifier{}
	e := NewEngine(cfg, WithNotifier(notifier), WithMetrics(metrics.New(prometheus.NewRegistry())))

	res, err := e.Build(context.Background(), catCorpus)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Docs)
	assert.Equal(t, 6, res.Terms)
	assert.Equal(t, 1, res.Blocks)

	r, err := segment.Open(cfg.DictionaryPath(), cfg.PostingsPath())
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 3, r.DocCount())

	cat, err := r.Postings("cat")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1", "doc2"}, r.DocIDs(cat.Docs()))
	ran, err := r.Postings("ran")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc2", "doc3"}, r.DocIDs(ran.Docs()))

	require.Len(t, notifier.events, 1)
	ev := notifier.events[0].Value.(kafka.IndexBuilt)
	assert.Equal(t, res.BuildID, ev.BuildID)
	assert.Equal(t, 6, ev.Terms)

	entries, err := os.ReadDir(cfg.BlockPath())
	require.NoError(t, err)
	assert.Empty(t, entries, "blocks are removed after a successful build")
}

func TestBuildIsDeterministic(t *testing.T) {
	var docs corpus.Static
	for i := 0; i < 200; i++ {
		docs = append(docs, corpus.Document{
			ID:      fmt.Sprint(200 - i),
			Title:   fmt.Sprintf("case %d", i%7),
			Content: fmt.Sprintf("term%d shared words appear %d times in document %d", i%13, i%5, i),
		})
	}
	build := func() ([]byte, []byte) {
		cfg := testConfig(t)
		cfg.BlockMemoryBytes = 2048
		cfg.MergeMemoryBytes = 512
		_, err := NewEngine(cfg).Build(context.Background(), docs)
		require.NoError(t, err)
		dict, err := os.ReadFile(cfg.DictionaryPath())
		require.NoError(t, err)
		post, err := os.ReadFile(cfg.PostingsPath())
		require.NoError(t, err)
		return dict, post
	}
	dictA, postA := build()
	dictB, postB := build()
	assert.Equal(t, dictA, dictB)
	assert.Equal(t, postA, postB)
}

func TestBuildIndependentOfBlockBudget(t *testing.T) {
	read := func(budget int64) ([]byte, []byte) {
		cfg := testConfig(t)
		cfg.BlockMemoryBytes = budget
		res, err := NewEngine(cfg).Build(context.Background(), catCorpus)
		require.NoError(t, err)
		if budget == 1 {
			assert.Equal(t, 3, res.Blocks)
		}
		dict, err := os.ReadFile(cfg.DictionaryPath())
		require.NoError(t, err)
		post, err := os.ReadFile(cfg.PostingsPath())
		require.NoError(t, err)
		return dict, post
	}
	dictA, postA := read(1)
	dictB, postB := read(1 << 20)
	assert.Equal(t, dictA, dictB)
	assert.Equal(t, postA, postB)
}

func TestBuildKeepBlocks(t *testing.T) {
	cfg := testConfig(t)
	cfg.KeepBlocks = true
	cfg.BlockMemoryBytes = 1
	_, err := NewEngine(cfg).Build(context.Background(), catCorpus)
	require.NoError(t, err)
	for n := 1; n <= 3; n++ {
		assert.FileExists(t, filepath.Join(cfg.BlockPath(), block.FileName(n)))
	}
}

func TestBuildEmptyCorpus(t *testing.T) {
	cfg := testConfig(t)
	res, err := NewEngine(cfg).Build(context.Background(), corpus.Static{})
	require.NoError(t, err)
	assert.Zero(t, res.Docs)
	assert.Equal(t, 1, res.Blocks)

	r, err := segment.Open(cfg.DictionaryPath(), cfg.PostingsPath())
	require.NoError(t, err)
	defer r.Close()
	assert.Zero(t, r.DocCount())
	assert.Zero(t, r.Terms())
}

type failingSource struct{ after int }

func (s failingSource) Each(_ context.Context, fn func(corpus.Document) error) error {
	for i := 0; ; i++ {
		if i == s.after {
			return errors.New("source exploded")
		}
		if err := fn(corpus.Document{ID: fmt.Sprint(i), Content: "text"}); err != nil {
			return err
		}
	}
}

func TestBuildFailurePublishesNothing(t *testing.T) {
	cfg := testConfig(t)
	notifier := &recordingNotifier{}
	_, err := NewEngine(cfg, WithNotifier(notifier)).Build(context.Background(), failingSource{after: 5})
	require.Error(t, err)
	assert.NoFileExists(t, cfg.DictionaryPath())
	assert.NoFileExists(t, cfg.PostingsPath())
	assert.Empty(t, notifier.events)
}

func TestBuildMergeFailureKeepsBlocks(t *testing.T) {
	cfg := testConfig(t)
	cfg.BlockMemoryBytes = 1
	notAdir := filepath.Join(cfg.DataDir, "occupied")
	require.NoError(t, os.WriteFile(notAdir, []byte("x"), 0644))
	good := cfg.PostingsFile
	cfg.PostingsFile = filepath.Join(notAdir, "postings.bin")

	_, err := NewEngine(cfg).Build(context.Background(), catCorpus)
	require.Error(t, err)
	for n := 1; n <= 3; n++ {
		assert.FileExists(t, filepath.Join(cfg.BlockPath(), block.FileName(n)))
	}
	assert.NoFileExists(t, cfg.DictionaryPath())

	cfg.PostingsFile = good
	_, err = NewEngine(cfg).Build(context.Background(), catCorpus)
	require.NoError(t, err)
	for n := 1; n <= 3; n++ {
		assert.NoFileExists(t, filepath.Join(cfg.BlockPath(), block.FileName(n)))
	}
}

func TestBuildNotifierFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	notifier := &recordingNotifier{err: errors.New("broker down")}
	_, err := NewEngine(cfg, WithNotifier(notifier)).Build(context.Background(), catCorpus)
	require.NoError(t, err)
	assert.FileExists(t, cfg.DictionaryPath())
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(testConfig(t)).Build(ctx, catCorpus)
	assert.ErrorIs(t, err, context.Canceled)
}

func BenchmarkBuild(b *testing.B) {
	var docs corpus.Static
	for i := 0; i < 1000; i++ {
		docs = append(docs, corpus.Document{
			ID:      fmt.Sprint(i),
			Content: fmt.Sprintf("benchmark document %d with some shared vocabulary and term%d", i, i%50),
		})
	}
	cfg := config.Default().Indexer
	cfg.DataDir = b.TempDir()
	cfg.BlockMemoryBytes = 64 << 10
	e := NewEngine(cfg)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Build(context.Background(), docs); err != nil {
			b.Fatal(err)
		}
	}
}
