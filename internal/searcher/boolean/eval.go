package boolean

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/skiplist"
)

// Index is the read side of the store the evaluator needs.
type Index interface {
	Postings(term string) (index.PostingList, error)
	DocCount() int
}

// Evaluator runs boolean queries. It holds no per-query state and is safe
// for concurrent use if idx is.
type Evaluator struct {
	idx    Index
	logger *slog.Logger
}

func NewEvaluator(idx Index) *Evaluator {
	return &Evaluator{
		idx:    idx,
		logger: slog.Default().With("component", "boolean-evaluator"),
	}
}

// Search parses and evaluates query, returning matching document numbers
// in ascending order.
func (e *Evaluator) Search(ctx context.Context, query string) ([]uint32, error) {
	q, err := Parse(query)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, q)
}

// Evaluate runs the postfix program of q with an operand stack. Unknown
// terms evaluate to the empty list.
func (e *Evaluator) Evaluate(ctx context.Context, q *Query) ([]uint32, error) {
	var stack []index.PostingList
	pop := func() index.PostingList {
		pl := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return pl
	}
	for _, op := range q.Program {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch op.Kind {
		case OpTerm:
			pl, err := e.idx.Postings(op.Term)
			if err != nil {
				return nil, fmt.Errorf("loading postings of %q: %w", op.Term, err)
			}
			stack = append(stack, pl)
		case OpNot:
			stack = append(stack, complement(pop(), e.idx.DocCount()))
		case OpAnd:
			r, l := pop(), pop()
			stack = append(stack, intersect(l, r))
		case OpOr:
			r, l := pop(), pop()
			stack = append(stack, union(l, r))
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("evaluating %q: %d operands left on stack", q.Raw, len(stack))
	}
	result := stack[0].Docs()
	e.logger.Debug("boolean query evaluated",
		"query", q.Raw,
		"normalized", q.Root.String(),
		"results", len(result),
	)
	return result, nil
}

// intersect walks both lists, following a skip pointer whenever its target
// does not pass the other list's current document.
func intersect(a, b index.PostingList) index.PostingList {
	out := make(index.PostingList, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Doc == b[j].Doc:
			out = append(out, index.Posting{Doc: a[i].Doc, Skip: index.NoSkip})
			i++
			j++
		case a[i].Doc < b[j].Doc:
			if s := a[i].Skip; s != index.NoSkip && a[s].Doc <= b[j].Doc {
				i = int(s)
			} else {
				i++
			}
		default:
			if s := b[j].Skip; s != index.NoSkip && b[s].Doc <= a[i].Doc {
				j = int(s)
			} else {
				j++
			}
		}
	}
	skiplist.Attach(out)
	return out
}

func union(a, b index.PostingList) index.PostingList {
	out := make(index.PostingList, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i].Doc < b[j].Doc):
			out = append(out, index.Posting{Doc: a[i].Doc})
			i++
		case i == len(a) || b[j].Doc < a[i].Doc:
			out = append(out, index.Posting{Doc: b[j].Doc})
			j++
		default:
			out = append(out, index.Posting{Doc: a[i].Doc})
			i++
			j++
		}
	}
	skiplist.Attach(out)
	return out
}

// complement returns every document of [0, n) not in pl.
func complement(pl index.PostingList, n int) index.PostingList {
	out := make(index.PostingList, 0, max(n-len(pl), 0))
	j := 0
	for doc := uint32(0); int(doc) < n; doc++ {
		if j < len(pl) && pl[j].Doc == doc {
			j++
			continue
		}
		out = append(out, index.Posting{Doc: doc})
	}
	skiplist.Attach(out)
	return out
}
