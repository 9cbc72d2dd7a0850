package corpus

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVSource reads a dataset laid out as
// document_id,title,content,date_posted,court with a header row.
type CSVSource struct {
	path string
}

// NewCSVSource returns a Source over the CSV file at path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) Each(ctx context.Context, fn func(Document) error) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()
	return readCSV(ctx, f, fn)
}

func readCSV(ctx context.Context, r io.Reader, fn func(Document) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("reading dataset header: %w", err)
	}
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading dataset line %d: %w", line, err)
		}
		if len(record) < 3 {
			return fmt.Errorf("dataset line %d: expected at least 3 columns, got %d", line, len(record))
		}
		doc := Document{
			ID:      strings.TrimSpace(record[0]),
			Title:   record[1],
			Content: record[2],
		}
		if len(record) > 3 {
			doc.Date = record[3]
		}
		if len(record) > 4 {
			doc.Court = record[4]
		}
		if doc.ID == "" {
			return fmt.Errorf("dataset line %d: empty document id", line)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
}
