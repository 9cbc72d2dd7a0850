package executor

import (
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/index"
)

// requestCache memoizes decoded postings for the lifetime of one request,
// so a term repeated in a query is read from disk once. It is not safe for
// concurrent use.
type requestCache struct {
	Store
	lists map[string]index.PostingList
	reads int
}

func newRequestCache(s Store) *requestCache {
	return &requestCache{Store: s, lists: make(map[string]index.PostingList)}
}

func (c *requestCache) Postings(term string) (index.PostingList, error) {
	if pl, ok := c.lists[term]; ok {
		return pl, nil
	}
	pl, err := c.Store.Postings(term)
	if err != nil {
		return nil, err
	}
	c.reads++
	c.lists[term] = pl
	return pl, nil
}
