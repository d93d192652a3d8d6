package fichiers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexCRUD(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "nested", "files.db"))
	require.NoError(t, err)
	defer idx.Close()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e, err := idx.Upsert(ctx, FileEntity{
		Filename:   "b.pdf",
		Size:       42,
		FileType:   "application/pdf",
		FilePath:   "uploads_files/b.pdf",
		UploadedAt: at,
	})
	require.NoError(t, err)
	assert.NotZero(t, e.ID)

	_, err = idx.Upsert(ctx, FileEntity{Filename: "a.csv", Size: 1, FilePath: "uploads_files/a.csv", UploadedAt: at})
	require.NoError(t, err)

	got, err := idx.Get(ctx, "b.pdf")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, int64(42), got.Size)
	assert.Equal(t, "application/pdf", got.FileType)
	assert.True(t, got.UploadedAt.Equal(at))

	all, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a.csv", all[0].Filename)
	assert.Equal(t, "", all[0].FileType)

	require.NoError(t, idx.Delete(ctx, "b.pdf"))
	require.NoError(t, idx.Delete(ctx, "b.pdf"))
	_, err = idx.Get(ctx, "b.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}
