package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_WriteReadDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "tokens"))
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "grant:/Users/x/Photos", "blob-1"))

	got, err := store.Read(ctx, "grant:/Users/x/Photos")
	require.NoError(t, err)
	assert.Equal(t, "blob-1", got)

	info, err := os.Stat(store.Path("grant:/Users/x/Photos"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, store.Write(ctx, "grant:/Users/x/Photos", "blob-2"))
	got, err = store.Read(ctx, "grant:/Users/x/Photos")
	require.NoError(t, err)
	assert.Equal(t, "blob-2", got)

	require.NoError(t, store.Delete(ctx, "grant:/Users/x/Photos"))
	_, err = store.Read(ctx, "grant:/Users/x/Photos")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting twice is fine.
	require.NoError(t, store.Delete(ctx, "grant:/Users/x/Photos"))
}

func TestFileStore_KeysAreIsolated(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "a", "1"))
	require.NoError(t, store.Write(ctx, "b", "2"))

	a, err := store.Read(ctx, "a")
	require.NoError(t, err)
	b, err := store.Read(ctx, "b")
	require.NoError(t, err)

	assert.Equal(t, "1", a)
	assert.Equal(t, "2", b)
	assert.NotEqual(t, store.Path("a"), store.Path("b"))
}

func TestFileStore_InsecurePermissions(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "k", "v"))
	require.NoError(t, os.Chmod(store.Path("k"), 0o644))

	_, err = store.Read(ctx, "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure permissions")
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "k", "v"))

	matches, err := filepath.Glob(filepath.Join(dir, ".token-*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFileStore_CanceledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Write(ctx, "k", "v"), context.Canceled)
	_, err = store.Read(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFileStore_EmptyDir(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}
