package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

// newTestStorage opens a migrated database in a per-test temp directory.
func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "test.db")

	storage, err := OpenDatabase(context.Background(), cfg, testKey)
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage
}
