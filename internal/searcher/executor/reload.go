package executor

import (
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/segment"
)

// Load opens the dictionary/postings pair and makes it the current store,
// closing the store it replaces. On error the current store is kept.
func (e *Executor) Load(dictPath, postingsPath string) error {
	r, err := segment.Open(dictPath, postingsPath)
	if err != nil {
		e.metrics.ObserveReload("error")
		return err
	}
	if old := e.Swap(r); old != nil {
		if err := old.Close(); err != nil {
			e.logger.Warn("closing previous index failed", "error", err)
		}
	}
	e.metrics.ObserveReload("ok")
	e.logger.Info("index loaded",
		"dictionary", dictPath,
		"postings", postingsPath,
		"docs", r.DocCount(),
		"terms", r.Terms(),
	)
	return nil
}

// Close releases the current store.
func (e *Executor) Close() error {
	if old := e.Swap(nil); old != nil {
		return old.Close()
	}
	return nil
}
