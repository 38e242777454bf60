// Package sqlite provides a SQLite-backed implementation of store.Library.
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/store"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store provides SQLite-backed persistence for the library.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	*store.Notifier
}

var _ store.Library = (*Store)(nil)

// Open creates a new SQLite store at the given path.
// It configures WAL mode, sets pragmas, and applies the schema. Any failure
// yields a STORAGE_UNAVAILABLE error.
func Open(path string, logger *slog.Logger, emitter store.EventEmitter) (*Store, error) {
	// busy_timeout is per connection, so it rides on the DSN to reach
	// every pooled connection rather than only the first.
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, domainerrors.StorageUnavailable(fmt.Errorf("open sqlite: %w", err))
	}

	// SQLite serializes writers; a few connections let readers proceed under WAL.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, domainerrors.StorageUnavailable(fmt.Errorf("exec pragma %q: %w", pragma, err))
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, domainerrors.StorageUnavailable(fmt.Errorf("exec schema: %w", err))
	}

	if logger != nil {
		logger.Info("SQLite database opened successfully", "path", path)
	}

	return &Store{
		db:       db,
		logger:   logger,
		Notifier: store.NewNotifier(logger, emitter),
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// formatTime formats a time.Time to RFC3339Nano for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a RFC3339Nano string back to time.Time.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// nullString returns a sql.NullString from a string, NULL when empty.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullFloat returns a sql.NullFloat64 from an optional float.
func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
