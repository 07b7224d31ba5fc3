package printing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*ArtifactStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewArtifactStore(&ArtifactStoreConfig{
		TransportRoot: filepath.Join(dir, "labels"),
		PDFRoot:       filepath.Join(dir, "pdf"),
		ImageRoot:     filepath.Join(dir, "images"),
		ZPLRoot:       filepath.Join(dir, "zpl"),
	})
	require.NoError(t, err)
	return store, dir
}

func TestArtifactStore_PathLayout(t *testing.T) {
	store, dir := newTestStore(t)

	tests := []struct {
		kind shipping.ArtifactKind
		want string
	}{
		{shipping.ArtifactTransport, filepath.Join(dir, "labels", "7", "A-100_transport.pdf")},
		{shipping.ArtifactPDF, filepath.Join(dir, "pdf", "7", "A-100.pdf")},
		{shipping.ArtifactImage, filepath.Join(dir, "images", "7", "A-100.jpg")},
		{shipping.ArtifactZPL, filepath.Join(dir, "zpl", "7", "A-100.zpl")},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, err := store.Path(7, tt.kind, "A-100")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArtifactStore_RejectsTraversal(t *testing.T) {
	store, _ := newTestStore(t)

	for _, n := range []string{"", "..", "../etc/passwd", "a/b", `a\b`, "x..y"} {
		_, err := store.Path(1, shipping.ArtifactPDF, n)
		assert.ErrorIs(t, err, shipping.ErrFormat, "order number %q", n)
	}
}

func TestArtifactStore_WriteReadExists(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.False(t, store.Exists(3, shipping.ArtifactZPL, "123"))

	path, err := store.Write(ctx, 3, shipping.ArtifactZPL, "123", []byte("^XA^XZ"))
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.True(t, store.Exists(3, shipping.ArtifactZPL, "123"))

	data, err := store.Read(ctx, 3, shipping.ArtifactZPL, "123")
	require.NoError(t, err)
	assert.Equal(t, "^XA^XZ", string(data))

	// Overwrite replaces content and leaves no temp files behind.
	_, err = store.Write(ctx, 3, shipping.ArtifactZPL, "123", []byte("^XA^FO0,0^XZ"))
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestArtifactStore_ReadMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Read(context.Background(), 1, shipping.ArtifactPDF, "nope")
	assert.ErrorIs(t, err, shipping.ErrNotFound)
}

func TestArtifactStore_WriteCancelled(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Write(ctx, 1, shipping.ArtifactPDF, "1", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, store.Exists(1, shipping.ArtifactPDF, "1"))
}

func TestArtifactStore_HasAllAndDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, k := range shipping.DerivedArtifacts[:2] {
		_, err := store.Write(ctx, 1, k, "9", []byte("x"))
		require.NoError(t, err)
	}
	assert.False(t, store.HasAll(1, "9", shipping.DerivedArtifacts...))

	_, err := store.Write(ctx, 1, shipping.ArtifactZPL, "9", []byte("x"))
	require.NoError(t, err)
	assert.True(t, store.HasAll(1, "9", shipping.DerivedArtifacts...))

	require.NoError(t, store.Delete(1, shipping.ArtifactZPL, "9"))
	require.NoError(t, store.Delete(1, shipping.ArtifactZPL, "9"))
	assert.False(t, store.HasAll(1, "9", shipping.DerivedArtifacts...))
}

func TestArtifactStore_CleanupOlderThan(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	oldPDF, err := store.Write(ctx, 1, shipping.ArtifactPDF, "old", []byte("x"))
	require.NoError(t, err)
	_, err = store.Write(ctx, 1, shipping.ArtifactPDF, "new", []byte("x"))
	require.NoError(t, err)
	oldTransport, err := store.Write(ctx, 1, shipping.ArtifactTransport, "old", []byte("x"))
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPDF, past, past))
	require.NoError(t, os.Chtimes(oldTransport, past, past))

	n, err := store.CleanupOlderThan(ctx, 24*time.Hour, shipping.DerivedArtifacts...)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, oldPDF)
	assert.True(t, store.Exists(1, shipping.ArtifactPDF, "new"))
	// Transport labels are not derived and survive.
	assert.FileExists(t, oldTransport)
}
