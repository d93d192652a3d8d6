package fichiers

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *Index) {
	t.Helper()
	dir := t.TempDir()
	idx, err := OpenIndex(filepath.Join(dir, "db", "fichiers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	s, err := NewStore(filepath.Join(dir, "uploads_files"), idx, nil)
	require.NoError(t, err)
	return s, idx
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	_, err := NewStore(dir, nil, nil)
	require.NoError(t, err)

	fi, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, idx := newTestStore(t)
	uploaded := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return uploaded }

	e, err := s.Save(ctx, "notes.txt", strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), e.Size)
	assert.NotZero(t, e.ID)
	assert.True(t, strings.HasPrefix(e.FileType, "text/plain"))

	assert.True(t, s.Exists("notes.txt"))
	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.txt"}, names)

	md, err := s.Metadata(ctx, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(11), md.Size)
	assert.True(t, md.UploadedAt.Equal(uploaded))

	f, _, err := s.Open("notes.txt")
	require.NoError(t, err)
	b, err := io.ReadAll(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(b))

	require.NoError(t, s.Delete(ctx, "notes.txt"))
	assert.False(t, s.Exists("notes.txt"))
	_, err = idx.Get(ctx, "notes.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "notes.txt"), ErrNotFound)
}

func TestSaveReplacesExisting(t *testing.T) {
	ctx := context.Background()
	s, idx := newTestStore(t)

	first, err := s.Save(ctx, "a.txt", strings.NewReader("one"))
	require.NoError(t, err)
	second, err := s.Save(ctx, "a.txt", strings.NewReader("three"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	all, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(5), all[0].Size)
}

func TestListIsSortedAndSkipsHiddenFiles(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, name := range []string{"b.txt", "a.txt", "c.csv"} {
		_, err := s.Save(ctx, name, strings.NewReader(name))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), ".upload-123"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), ".hidden"), nil, 0644))
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "sub"), 0755))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.csv"}, names)
}

func TestInvalidNames(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, name := range []string{"", ".", "..", ".hidden", ".upload-x", "../escape.txt", "a/b.txt", `a\b.txt`} {
		_, err := s.Save(ctx, name, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidName, name)
		_, err = s.Metadata(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
		assert.ErrorIs(t, s.Delete(ctx, name), ErrInvalidName, name)
		assert.False(t, s.Exists(name))
	}
}

func TestMetadataWithoutIndexRecord(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "manual.csv"), []byte("a,b\n"), 0644))

	md, err := s.Metadata(ctx, "manual.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(4), md.Size)
	assert.Equal(t, md.ModifiedAt, md.UploadedAt)

	_, err = s.Metadata(ctx, "absent.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreConvert(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	name, err := s.Convert(ctx, "report.txt", strings.NewReader("a b\nc d\n"), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "report.csv", name)

	b, err := os.ReadFile(filepath.Join(s.Dir(), name))
	require.NoError(t, err)
	assert.Equal(t, "a,b\nc,d\n", string(b))

	_, err = s.Convert(ctx, "../report.txt", strings.NewReader("x"), FormatCSV)
	assert.ErrorIs(t, err, ErrInvalidName)
}
