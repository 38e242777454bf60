// Package store persists library documents in an embedded Badger database.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/lutrinapp/lutrin/internal/domain"
	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
)

const (
	documentPrefix = "doc:"
	documentSeqKey = "seq:documents"

	// idBandwidth is how many ids a sequence leases at a time. Unused ids
	// of a lease are skipped after a restart, so ids are never reused.
	idBandwidth = 64
)

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	seq    *badger.Sequence

	closeOnce sync.Once
	closeErr  error

	*Notifier

	documents *Entity[domain.Document]
}

var _ Library = (*Store)(nil)

// New creates a new Store instance with the given database path and event emitter.
// A database that cannot be opened yields a STORAGE_UNAVAILABLE error.
func New(path string, logger *slog.Logger, emitter EventEmitter) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, domainerrors.StorageUnavailable(fmt.Errorf("open badger db: %w", err))
	}

	seq, err := db.GetSequence([]byte(documentSeqKey), idBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, domainerrors.StorageUnavailable(fmt.Errorf("lease id sequence: %w", err))
	}

	store := &Store{
		db:       db,
		logger:   logger,
		seq:      seq,
		Notifier: NewNotifier(logger, emitter),
	}
	store.documents = NewEntity[domain.Document](store, documentPrefix).
		WithIndex("owner", func(d *domain.Document) []string {
			return []string{d.OwnerID}
		})

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path)
	}

	return store, nil
}

// Close releases the id lease and closes the database. Later calls are no-ops.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.logger != nil {
			s.logger.Info("Closing database connection")
		}
		if err := s.seq.Release(); err != nil && s.logger != nil {
			s.logger.Warn("failed to release id sequence", "error", err)
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// nextID returns the next document id. Ids start at 1.
func (s *Store) nextID(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next document id: %w", err)
	}
	return int64(n) + 1, nil
}

// documentKey renders an id zero-padded so keys sort numerically.
func documentKey(id int64) string {
	return fmt.Sprintf("%020d", id)
}
