// Package tokenizer turns raw document and query text into normalised
// terms. Text is split on whitespace and a fixed delimiter class, while
// hyphens, slashes, dots and commas survive inside tokens so that numbers,
// dates and compound terms stay intact. Each token is stripped of leading
// and trailing punctuation, case-folded and Snowball-stemmed.
package tokenizer

import (
	"iter"
	"strings"

	"github.com/kljensen/snowball/english"
)

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Tokens returns a lazy sequence over the normalised tokens of text. The
// sequence can be ranged over any number of times.
func Tokens(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		s := strings.ReplaceAll(text, "...", " ")
		pos := 0
		for _, word := range strings.FieldsFunc(s, isDelimiter) {
			term := Normalize(word)
			if term == "" {
				continue
			}
			if !yield(Token{Term: term, Position: pos}) {
				return
			}
			pos++
		}
	}
}

// Tokenize breaks text into a slice of stemmed, lowercased Tokens.
func Tokenize(text string) []Token {
	tokens := make([]Token, 0, len(text)/6)
	for tok := range Tokens(text) {
		tokens = append(tokens, tok)
	}
	return tokens
}

// Terms returns only the normalised terms of text, in order.
func Terms(text string) []string {
	terms := make([]string, 0, len(text)/6)
	for tok := range Tokens(text) {
		terms = append(terms, tok.Term)
	}
	return terms
}

// Normalize reduces a single word to its index form. It returns the empty
// string for words made only of punctuation.
func Normalize(word string) string {
	word = strings.Trim(word, punctuation)
	if word == "" {
		return ""
	}
	return english.Stem(strings.ToLower(word), true)
}

// isDelimiter reports whether r separates tokens. Hyphen, slash, dot and
// comma are deliberately absent.
func isDelimiter(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f',
		';', '&', '<', '>', '(', ')', '`', '[', ']', '{', '}',
		'"', '\'', '+', ':', '!', '?', '#', '%':
		return true
	}
	return false
}
