package ranker

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/tokenizer"
)

// Query is a free-text query with optional quoted phrases.
type Query struct {
	Raw string
	// Terms holds every normalized word of the query, phrase words
	// included, in order and with repetitions.
	Terms   []string
	Phrases [][]string
}

// ParseQuery splits text on the literal " AND " into blocks. A block that
// starts with a double quote is a phrase; any other block is free text.
func ParseQuery(text string) Query {
	q := Query{Raw: text}
	for _, part := range strings.Split(text, " AND ") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		words := tokenizer.Terms(part)
		q.Terms = append(q.Terms, words...)
		if strings.HasPrefix(part, `"`) && len(words) > 0 {
			q.Phrases = append(q.Phrases, words)
		}
	}
	return q
}
