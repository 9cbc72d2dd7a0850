// Package corpus provides the document sources the indexer consumes: a CSV
// dataset, a directory of plain-text files, a PostgreSQL table, or an
// in-memory slice. Every source yields documents in a fixed, reproducible
// order.
package corpus

import (
	"cmp"
	"context"
	"strings"
)

// Document is a single unit of the collection.
type Document struct {
	ID      string
	Title   string
	Content string
	Date    string
	Court   string
}

// Text returns the indexed text of the document. Fields are joined in a
// fixed order so token positions are reproducible.
func (d Document) Text() string {
	parts := make([]string, 0, 3)
	for _, f := range []string{d.Title, d.Content, d.Court} {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, "\n")
}

// Source streams documents to fn in source order. Returning an error from fn
// stops the iteration and is returned unchanged.
type Source interface {
	Each(ctx context.Context, fn func(Document) error) error
}

// Static is a Source over an in-memory slice.
type Static []Document

func (s Static) Each(ctx context.Context, fn func(Document) error) error {
	for _, doc := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// CompareIDs orders document identifiers naturally: all-digit IDs compare
// numerically and sort before any other ID, which compare byte-wise. IDs
// that are numerically equal ("007", "7") fall back to byte order so the
// ordering stays total.
func CompareIDs(a, b string) int {
	da, db := isDigits(a), isDigits(b)
	switch {
	case da && db:
		ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if c := cmp.Compare(len(ta), len(tb)); c != 0 {
			return c
		}
		if c := strings.Compare(ta, tb); c != 0 {
			return c
		}
	case da:
		return -1
	case db:
		return 1
	}
	return strings.Compare(a, b)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
