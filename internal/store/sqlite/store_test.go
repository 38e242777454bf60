package sqlite

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/store"
	"github.com/lutrinapp/lutrin/internal/store/storetest"
)

func newTestStore(t *testing.T, dir string, emitter store.EventEmitter) *Store {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	s, err := Open(filepath.Join(dir, "library.db"), logger, emitter)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen(t *testing.T) {
	s := newTestStore(t, t.TempDir(), nil)

	var journalMode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var name string
	err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='documents'").Scan(&name)
	require.NoError(t, err)
}

func TestOpenClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "library.db")

	s, err := Open(path, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Re-open should work (schema is idempotent).
	s2, err := Open(path, nil, nil)
	require.NoError(t, err)
	defer s2.Close()
}

func TestOpen_UnusablePathIsStorageUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := Open(filepath.Join(blocker, "library.db"), nil, nil)
	assert.ErrorIs(t, err, domainerrors.ErrStorageUnavailable)
}

func TestStore_LibraryContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, dir string, emitter store.EventEmitter) store.Library {
		return newTestStore(t, dir, emitter)
	})
}

func TestStore_LegacyRowWithoutProgress(t *testing.T) {
	s := newTestStore(t, t.TempDir(), nil)
	ctx := context.Background()

	// Rows inserted before progress tracking rely on the column default.
	res, err := s.db.Exec(`INSERT INTO documents (owner_id, created_at, updated_at, title, text, chapter_count)
		VALUES ('user-1', '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z', 'Ancien', 'A

B', 2)`)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)

	doc, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, doc.ReadingProgress.LastChapterRead)
	assert.Equal(t, []string{}, doc.Authors)
	assert.Nil(t, doc.SeriesIndex)
}
