package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/errors"
)

func paths(t *testing.T) (string, string) {
	dir := t.TempDir()
	return filepath.Join(dir, "dictionary.bin"), filepath.Join(dir, "postings.bin")
}

func sampleStore(t *testing.T) (string, string) {
	t.Helper()
	dictPath, postPath := paths(t)
	w, err := Create(dictPath, postPath)
	require.NoError(t, err)
	require.NoError(t, w.Add("cat", 0.176, index.PostingList{
		{Doc: 0, Weight: 0.5, Skip: index.NoSkip, Positions: []uint32{1}},
		{Doc: 1, Weight: 0.25, Skip: index.NoSkip, Positions: []uint32{1, 7}},
	}))
	require.NoError(t, w.Add("dog", 0.477, index.PostingList{
		{Doc: 0, Weight: 0.1, Skip: 2, Positions: []uint32{3}},
		{Doc: 130, Weight: 0.2, Skip: index.NoSkip},
		{Doc: 1000, Weight: 0.3, Skip: index.NoSkip, Positions: []uint32{0, 300}},
	}))
	assert.Equal(t, 2, w.Terms())
	require.NoError(t, w.Commit([]string{"a", "b", "c"}))
	return dictPath, postPath
}

func TestWriterCommitPublishesFiles(t *testing.T) {
	dictPath, postPath := paths(t)
	w, err := Create(dictPath, postPath)
	require.NoError(t, err)
	require.NoError(t, w.Add("x", 0, index.PostingList{{Doc: 0, Weight: 1, Skip: index.NoSkip}}))

	assert.NoFileExists(t, dictPath)
	assert.NoFileExists(t, postPath)
	require.NoError(t, w.Commit([]string{"1"}))
	assert.FileExists(t, dictPath)
	assert.FileExists(t, postPath)
	assert.NoFileExists(t, dictPath+".tmp")
	assert.NoFileExists(t, postPath+".tmp")
}

func TestWriterAbortLeavesNothing(t *testing.T) {
	dictPath, postPath := paths(t)
	w, err := Create(dictPath, postPath)
	require.NoError(t, err)
	w.Abort()
	assert.NoFileExists(t, postPath+".tmp")
	assert.NoFileExists(t, postPath)
}

func TestWriterRejectsUnsortedTerms(t *testing.T) {
	dictPath, postPath := paths(t)
	w, err := Create(dictPath, postPath)
	require.NoError(t, err)
	defer w.Abort()
	require.NoError(t, w.Add("b", 0, nil))
	assert.Error(t, w.Add("a", 0, nil))
	assert.Error(t, w.Add("b", 0, nil))
}

func TestReaderRoundTrip(t *testing.T) {
	dictPath, postPath := sampleStore(t)
	r, err := Open(dictPath, postPath)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 3, r.DocCount())
	assert.Equal(t, 2, r.Terms())
	assert.Equal(t, "b", r.DocID(1))
	assert.Equal(t, []string{"a", "c"}, r.DocIDs([]uint32{0, 2}))

	entry, ok := r.Lookup("dog")
	require.True(t, ok)
	assert.Equal(t, uint32(3), entry.DocFreq)
	assert.InDelta(t, 0.477, entry.IDF, 1e-12)

	pl, err := r.Postings("dog")
	require.NoError(t, err)
	require.Len(t, pl, 3)
	assert.Equal(t, []uint32{0, 130, 1000}, pl.Docs())
	assert.Equal(t, int32(2), pl[0].Skip)
	assert.Equal(t, index.NoSkip, pl[1].Skip)
	assert.Equal(t, 0.3, pl[2].Weight)
	assert.Equal(t, []uint32{0, 300}, pl[2].Positions)
	assert.Nil(t, pl[1].Positions)

	pl, err = r.Postings("cat")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 7}, pl[1].Positions)
}

func TestReaderUnknownTerm(t *testing.T) {
	dictPath, postPath := sampleStore(t)
	r, err := Open(dictPath, postPath)
	require.NoError(t, err)
	defer r.Close()

	_, ok := r.Lookup("zebra")
	assert.False(t, ok)
	pl, err := r.Postings("zebra")
	assert.NoError(t, err)
	assert.Empty(t, pl)
}

func TestReaderDocNum(t *testing.T) {
	dictPath, postPath := paths(t)
	w, err := Create(dictPath, postPath)
	require.NoError(t, err)
	require.NoError(t, w.Commit([]string{"2", "10", "100", "doc1"}))

	r, err := Open(dictPath, postPath)
	require.NoError(t, err)
	defer r.Close()
	n, ok := r.DocNum("100")
	assert.True(t, ok)
	assert.Equal(t, uint32(2), n)
	_, ok = r.DocNum("11")
	assert.False(t, ok)
}

func TestOpenMissingFiles(t *testing.T) {
	dictPath, postPath := paths(t)
	_, err := Open(dictPath, postPath)
	assert.ErrorIs(t, err, apperrors.ErrMissingIndexFile)

	dictPath, postPath = sampleStore(t)
	require.NoError(t, os.Remove(postPath))
	_, err = Open(dictPath, postPath)
	assert.ErrorIs(t, err, apperrors.ErrMissingIndexFile)
}

func TestOpenCorruptFiles(t *testing.T) {
	t.Run("dictionary magic", func(t *testing.T) {
		dictPath, postPath := sampleStore(t)
		data, err := os.ReadFile(dictPath)
		require.NoError(t, err)
		data[0] ^= 0xFF
		require.NoError(t, os.WriteFile(dictPath, data, 0644))
		_, err = Open(dictPath, postPath)
		assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
	})

	t.Run("truncated postings", func(t *testing.T) {
		dictPath, postPath := sampleStore(t)
		data, err := os.ReadFile(postPath)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(postPath, data[:len(data)-4], 0644))
		_, err = Open(dictPath, postPath)
		assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
	})

	t.Run("postings magic", func(t *testing.T) {
		dictPath, postPath := sampleStore(t)
		data, err := os.ReadFile(postPath)
		require.NoError(t, err)
		data[1] ^= 0xFF
		require.NoError(t, os.WriteFile(postPath, data, 0644))
		_, err = Open(dictPath, postPath)
		assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
	})
}

func TestDecodeRecordRejectsMalformed(t *testing.T) {
	good := appendRecord(nil, index.PostingList{
		{Doc: 3, Weight: 1, Skip: 1},
		{Doc: 9, Weight: 1, Skip: index.NoSkip},
	})
	_, err := decodeRecord(good)
	require.NoError(t, err)

	_, err = decodeRecord(good[:len(good)-3])
	assert.Error(t, err)

	_, err = decodeRecord(append(append([]byte(nil), good...), 0))
	assert.Error(t, err, "trailing bytes")

	backwards := appendRecord(nil, index.PostingList{
		{Doc: 3, Weight: 1, Skip: index.NoSkip},
		{Doc: 3, Weight: 1, Skip: index.NoSkip},
	})
	_, err = decodeRecord(backwards)
	assert.Error(t, err, "duplicate document")

	badSkip := appendRecord(nil, index.PostingList{
		{Doc: 1, Weight: 1, Skip: 5},
		{Doc: 2, Weight: 1, Skip: index.NoSkip},
	})
	_, err = decodeRecord(badSkip)
	assert.Error(t, err, "skip out of range")
}

func TestOpenRejectsMismatchedPair(t *testing.T) {
	dictA, postA := sampleStore(t)

	dictB, postB := paths(t)
	w, err := Create(dictB, postB)
	require.NoError(t, err)
	require.NoError(t, w.Add("cat", 0.5, index.PostingList{{Doc: 0, Weight: 1, Skip: index.NoSkip}}))
	require.NoError(t, w.Commit([]string{"x"}))

	_, err = Open(dictA, postB)
	assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
	_, err = Open(dictB, postA)
	assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)

	t.Run("same size different bytes", func(t *testing.T) {
		dictPath, postPath := sampleStore(t)
		data, err := os.ReadFile(postPath)
		require.NoError(t, err)
		data[len(data)-1] ^= 0x01
		require.NoError(t, os.WriteFile(postPath, data, 0644))
		_, err = Open(dictPath, postPath)
		assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
	})
}
