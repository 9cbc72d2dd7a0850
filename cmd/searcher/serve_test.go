package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/metrics"
)

type capture struct{ events []kafka.Event }

func (c *capture) Publish(_ context.Context, ev kafka.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func TestReloadOnIndexBuilt(t *testing.T) {
	cfg := config.Default()
	cfg.Indexer.DataDir = t.TempDir()
	notifier := &capture{}
	_, err := indexer.NewEngine(cfg.Indexer, indexer.WithNotifier(notifier)).Build(context.Background(), corpus.Static{
		{ID: "doc1", Content: "the cat sat"},
		{ID: "doc2", Content: "a dog ran"},
	})
	require.NoError(t, err)
	require.Len(t, notifier.events, 1)

	exec := executor.New(nil, cfg.Search, nil)
	t.Cleanup(func() { exec.Close() })
	require.False(t, exec.Ready())

	payload, err := json.Marshal(notifier.events[0].Value)
	require.NoError(t, err)
	require.NoError(t, reloadHandler(exec, nil)(context.Background(), []byte(kafka.IndexBuiltKey), payload))
	require.True(t, exec.Ready())

	res, err := exec.Execute(context.Background(), executor.Request{Mode: executor.ModeBoolean, Query: "cat"})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1"}, res.IDs())
}

func TestReloadRejectsBadEvent(t *testing.T) {
	exec := executor.New(nil, config.Default().Search, nil)
	err := reloadHandler(exec, nil)(context.Background(), nil, []byte("{"))
	assert.Error(t, err)
	assert.False(t, exec.Ready())
}

func TestRoutesServeSearchAndHealth(t *testing.T) {
	cfg := config.Default()
	cfg.Indexer.DataDir = t.TempDir()
	_, err := indexer.NewEngine(cfg.Indexer).Build(context.Background(), corpus.Static{
		{ID: "doc1", Content: "the cat sat"},
		{ID: "doc2", Content: "the cat ran"},
		{ID: "doc3", Content: "a dog ran"},
	})
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	exec := executor.New(nil, cfg.Search, m)
	require.NoError(t, exec.Load(cfg.Indexer.DictionaryPath(), cfg.Indexer.PostingsPath()))
	t.Cleanup(func() { exec.Close() })

	checker := health.NewChecker()
	srv := httptest.NewServer(routes(cfg, handler.New(exec, nil, cfg.Search.MaxResults), checker, m))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/v1/search?mode=boolean&q=cat+AND+NOT+ran")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var result executor.SearchResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, []string{"doc1"}, result.IDs())

	ready, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	ready.Body.Close()
	assert.Equal(t, http.StatusOK, ready.StatusCode)
}
