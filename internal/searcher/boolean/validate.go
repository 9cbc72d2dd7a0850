package boolean

import (
	apperrors "github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/errors"
)

// Validate reports whether query is well formed. The returned error wraps
// ErrInvalidQuery.
func Validate(query string) error {
	return validate(lex(query))
}

func validate(tokens []token) error {
	if len(tokens) == 0 {
		return invalid("empty query")
	}
	expectOperand := true
	depth := 0
	for i, t := range tokens {
		switch t.kind {
		case tokTerm:
			if !expectOperand {
				return invalid("missing operator before %q at token %d", t.text, i+1)
			}
			expectOperand = false
		case tokNot:
			if !expectOperand {
				return invalid("NOT follows an operand at token %d", i+1)
			}
		case tokAnd, tokOr:
			if expectOperand {
				if i == 0 {
					return invalid("query starts with %s", t.text)
				}
				return invalid("%s at token %d has no left operand", t.text, i+1)
			}
			expectOperand = true
		case tokLParen:
			if !expectOperand {
				return invalid("missing operator before ( at token %d", i+1)
			}
			depth++
		case tokRParen:
			if expectOperand {
				return invalid("missing operand before ) at token %d", i+1)
			}
			depth--
			if depth < 0 {
				return invalid("unbalanced ) at token %d", i+1)
			}
		}
	}
	if expectOperand {
		last := tokens[len(tokens)-1]
		if last.kind == tokNot {
			return invalid("query ends with NOT")
		}
		return invalid("query ends with %s", last.text)
	}
	if depth != 0 {
		return invalid("%d unclosed (", depth)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return apperrors.Wrap(apperrors.ErrInvalidQuery, nil, format, args...)
}
