package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/store"
	"github.com/lutrinapp/lutrin/internal/store/storetest"
)

func openBadger(t *testing.T, dir string, emitter store.EventEmitter) store.Library {
	t.Helper()

	if emitter == nil {
		emitter = store.NewNoopEmitter()
	}
	s, err := store.New(filepath.Join(dir, "library.db"), nil, emitter)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_LibraryContract(t *testing.T) {
	storetest.Run(t, openBadger)
}

func TestStore_OpenFailureIsStorageUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := store.New(filepath.Join(blocker, "library.db"), nil, store.NewNoopEmitter())
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrStorageUnavailable)
}

func TestStore_ContextCanceled(t *testing.T) {
	lib := openBadger(t, t.TempDir(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := lib.GetByID(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
