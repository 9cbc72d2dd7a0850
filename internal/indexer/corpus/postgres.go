package corpus

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresSource streams documents from a table with the columns
// document_id, title, content, date_posted and court, ordered by
// document_id.
type PostgresSource struct {
	db    *sql.DB
	table string
}

// NewPostgresSource returns a Source reading table through db.
func NewPostgresSource(db *sql.DB, table string) *PostgresSource {
	return &PostgresSource{db: db, table: table}
}

func (s *PostgresSource) Each(ctx context.Context, fn func(Document) error) error {
	query := fmt.Sprintf(
		`SELECT document_id::text, COALESCE(title, ''), COALESCE(content, ''),
		        COALESCE(date_posted::text, ''), COALESCE(court, '')
		   FROM %s ORDER BY document_id`,
		pq.QuoteIdentifier(s.table),
	)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Date, &doc.Court); err != nil {
			return fmt.Errorf("scanning document row: %w", err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating document rows: %w", err)
	}
	return nil
}
