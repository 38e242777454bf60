// Package audio owns synthesized chapter clips on local disk and plays them.
package audio

import (
	"errors"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Clip is a locally-owned audio file. The owner must call Release once the
// clip is no longer needed.
type Clip struct {
	Path     string
	Duration time.Duration
	Size     int64

	once     sync.Once
	released atomic.Bool
	err      error
}

// NewClip wraps an existing file.
func NewClip(path string, duration time.Duration, size int64) *Clip {
	return &Clip{Path: path, Duration: duration, Size: size}
}

// Release deletes the file. It is safe to call more than once.
func (c *Clip) Release() error {
	c.once.Do(func() {
		err := os.Remove(c.Path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.err = err
		}
		c.released.Store(true)
	})
	return c.err
}

// Released reports whether Release has been called.
func (c *Clip) Released() bool {
	return c.released.Load()
}
