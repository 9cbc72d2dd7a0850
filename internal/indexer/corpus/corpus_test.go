package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, src Source) []Document {
	t.Helper()
	var docs []Document
	require.NoError(t, src.Each(context.Background(), func(d Document) error {
		docs = append(docs, d)
		return nil
	}))
	return docs
}

func TestCompareIDs(t *testing.T) {
	assert.Equal(t, -1, CompareIDs("2", "10"))
	assert.Equal(t, 1, CompareIDs("100", "99"))
	assert.Equal(t, -1, CompareIDs("007", "7"))
	assert.Equal(t, 0, CompareIDs("42", "42"))
	assert.Equal(t, -1, CompareIDs("doc1", "doc2"))
	assert.Equal(t, 1, CompareIDs("doc10", "doc1"))
	assert.Equal(t, -1, CompareIDs("10", "a"))
	assert.Equal(t, -1, CompareIDs("10", "1a"))
	assert.Equal(t, 1, CompareIDs("1a", "2"))
}

func TestDocumentText(t *testing.T) {
	d := Document{ID: "1", Title: "Smith v Jones", Content: "body text", Court: "High Court"}
	assert.Equal(t, "Smith v Jones\nbody text\nHigh Court", d.Text())
	assert.Equal(t, "only", Document{Content: "only"}.Text())
}

func TestCSVSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dataset.csv")
	data := "document_id,title,content,date_posted,court\n" +
		"246391,\"Title, one\",\"multi\nline body\",2010-01-01 00:00:00,SG Court of Appeal\n" +
		"246400,Title two,short,2011-02-02 00:00:00,UK High Court\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	docs := collect(t, NewCSVSource(path))
	require.Len(t, docs, 2)
	assert.Equal(t, "246391", docs[0].ID)
	assert.Equal(t, "Title, one", docs[0].Title)
	assert.Equal(t, "multi\nline body", docs[0].Content)
	assert.Equal(t, "SG Court of Appeal", docs[0].Court)
	assert.Equal(t, "246400", docs[1].ID)
}

func TestCSVSourceRejectsShortRows(t *testing.T) {
	err := readCSV(context.Background(), strings.NewReader("h1,h2,h3\n1,only\n"), func(Document) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestCSVSourceMissingFile(t *testing.T) {
	err := NewCSVSource(filepath.Join(t.TempDir(), "nope.csv")).Each(context.Background(), func(Document) error { return nil })
	require.Error(t, err)
}

func TestDirSourceNaturalOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"10", "2", "1", ".DS_Store"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("text "+name), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	docs := collect(t, NewDirSource(dir))
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"1", "2", "10"}, ids)
	assert.Equal(t, "text 10", docs[2].Content)
}

func TestStaticStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	seen := 0
	err := Static{{ID: "a"}, {ID: "b"}}.Each(context.Background(), func(Document) error {
		seen++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, seen)
}
