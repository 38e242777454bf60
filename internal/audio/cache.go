package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lutrinapp/lutrin/internal/id"
)

// Fetcher downloads generated audio. gateway.Client implements it.
type Fetcher interface {
	FetchAudio(ctx context.Context, audioURL string, w io.Writer) error
}

// Cache stores downloaded clips in a directory it owns.
type Cache struct {
	dir     string
	fetcher Fetcher
	logger  *slog.Logger
}

// NewCache creates dir if needed.
func NewCache(dir string, fetcher Fetcher, logger *slog.Logger) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("audio cache directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio cache directory: %w", err)
	}
	return &Cache{dir: dir, fetcher: fetcher, logger: logger}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Download fetches audioURL into a new clip. Nothing is left on disk when
// the download fails.
func (c *Cache) Download(ctx context.Context, audioURL string) (*Clip, error) {
	path := filepath.Join(c.dir, id.FileName(".wav"))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //#nosec G304 -- path built from a generated name
	if err != nil {
		return nil, fmt.Errorf("create clip file: %w", err)
	}

	fetchErr := c.fetcher.FetchAudio(ctx, audioURL, f)
	closeErr := f.Close()
	if err := errors.Join(fetchErr, closeErr); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("download clip: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("stat clip: %w", err)
	}

	duration, err := WAVDuration(path)
	if err != nil {
		// Still playable by a real device, the clock player just ends it at once.
		c.logger.Warn("clip duration unknown", "url", audioURL, "error", err)
	}

	return NewClip(path, duration, info.Size()), nil
}

// Purge removes clips left behind by a previous process.
func (c *Cache) Purge() (int, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*.wav"))
	if err != nil {
		return 0, fmt.Errorf("list cached clips: %w", err)
	}

	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			c.logger.Warn("failed to remove stale clip", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
