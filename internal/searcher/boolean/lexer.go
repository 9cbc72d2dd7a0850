// Package boolean evaluates exact set-algebra queries over the inverted
// index. A query such as
//
//	(court AND NOT appeal) OR "damages"
//
// is validated, parsed into an AST, rewritten so that NOT applies only to
// terms, and evaluated over postings lists. AND binds tighter than OR;
// operators of equal precedence associate to the left.
package boolean

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/tokenizer"
)

type tokenKind int

const (
	tokTerm tokenKind = iota
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

// lex splits a query into operators, parentheses and normalized operands.
// Operators are recognized only in upper case. Operands go through the same
// tokenizer as documents; one the tokenizer splits, such as o'brien, becomes
// a parenthesized AND of its parts.
func lex(query string) []token {
	query = strings.NewReplacer("(", " ( ", ")", " ) ").Replace(query)
	fields := strings.Fields(query)
	tokens := make([]token, 0, len(fields))
	for _, f := range fields {
		switch f {
		case "AND":
			tokens = append(tokens, token{kind: tokAnd, text: f})
		case "OR":
			tokens = append(tokens, token{kind: tokOr, text: f})
		case "NOT":
			tokens = append(tokens, token{kind: tokNot, text: f})
		case "(":
			tokens = append(tokens, token{kind: tokLParen, text: f})
		case ")":
			tokens = append(tokens, token{kind: tokRParen, text: f})
		default:
			tokens = appendOperand(tokens, f)
		}
	}
	return tokens
}

func appendOperand(tokens []token, word string) []token {
	terms := tokenizer.Terms(word)
	switch len(terms) {
	case 0:
		// Matches nothing but keeps the query's shape.
		return append(tokens, token{kind: tokTerm})
	case 1:
		return append(tokens, token{kind: tokTerm, text: terms[0]})
	}
	tokens = append(tokens, token{kind: tokLParen, text: "("})
	for i, t := range terms {
		if i > 0 {
			tokens = append(tokens, token{kind: tokAnd, text: "AND"})
		}
		tokens = append(tokens, token{kind: tokTerm, text: t})
	}
	return append(tokens, token{kind: tokRParen, text: ")"})
}
