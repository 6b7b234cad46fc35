package offsets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.yaml"))

	offset, err := store.Load()
	require.NoError(t, err)
	require.Zero(t, offset)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "offset.yaml")
	store := NewFileStore(path)
	store.now = func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, store.Save(7))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "offset: 7")
	require.Contains(t, string(data), "updated_at: 2026-10-16T12:00:00Z")

	offset, err := NewFileStore(path).Load()
	require.NoError(t, err)
	require.Equal(t, 7, offset)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSaveSkipsUnchangedOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offset.yaml")
	store := NewFileStore(path)
	require.NoError(t, store.Save(3))
	require.NoError(t, os.Remove(path))

	require.NoError(t, store.Save(3))
	_, err := os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, store.Save(4))
	offset, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, 4, offset)
}

func TestRejectsNegativeOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offset.yaml")
	store := NewFileStore(path)
	require.ErrorIs(t, store.Save(-1), ErrInvalidOffset)

	require.NoError(t, os.WriteFile(path, []byte("offset: -5\n"), 0o600))
	_, err := store.Load()
	require.ErrorIs(t, err, ErrInvalidOffset)
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offset.yaml")
	require.NoError(t, os.WriteFile(path, []byte("offset: [not a number\n"), 0o600))

	_, err := NewFileStore(path).Load()
	require.ErrorContains(t, err, "decode")
}
