package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// DirSource treats every regular file of a directory as one document whose
// ID is the file name. Files are read in natural name order.
type DirSource struct {
	dir string
}

// NewDirSource returns a Source over the files in dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Each(ctx context.Context, fn func(Document) error) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reading document directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		names = append(names, entry.Name())
	}
	slices.SortFunc(names, CompareIDs)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return fmt.Errorf("reading document %s: %w", name, err)
		}
		if err := fn(Document{ID: name, Content: string(data)}); err != nil {
			return err
		}
	}
	return nil
}
