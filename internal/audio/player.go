package audio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned by Play when Stop interrupts the clip.
var ErrStopped = errors.New("playback stopped")

// Player renders clips. Play blocks until the clip has been heard to the
// end (nil), ctx is canceled (ctx.Err()) or Stop is called (ErrStopped).
// A paused clip keeps Play blocked until it is resumed and finishes.
type Player interface {
	Play(ctx context.Context, clip *Clip) error
	Pause()
	Resume()
	Stop()
}

// ClockPlayer is a headless Player that "plays" a clip for its duration.
// It drives sessions on devices where the UI owns the speaker.
type ClockPlayer struct {
	mu        sync.Mutex
	timer     *time.Timer
	remaining time.Duration
	startedAt time.Time
	paused    bool
	done      chan struct{}
	stop      chan struct{}
}

// NewClockPlayer creates an idle player.
func NewClockPlayer() *ClockPlayer {
	return &ClockPlayer{}
}

// Play implements Player. Starting a clip stops the previous one.
func (p *ClockPlayer) Play(ctx context.Context, clip *Clip) error {
	p.mu.Lock()
	p.stopLocked()

	done := make(chan struct{})
	stop := make(chan struct{})
	p.done, p.stop = done, stop
	p.remaining = clip.Duration
	p.paused = false
	p.startLocked(done)
	p.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-stop:
		return ErrStopped
	case <-ctx.Done():
		p.mu.Lock()
		if p.stop == stop {
			p.stopLocked()
		}
		p.mu.Unlock()
		return ctx.Err()
	}
}

// Pause freezes the current clip, keeping its position.
func (p *ClockPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done == nil || p.paused {
		return
	}
	p.timer.Stop()
	p.remaining = max(0, p.remaining-time.Since(p.startedAt))
	p.paused = true
}

// Resume continues a paused clip.
func (p *ClockPlayer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done == nil || !p.paused {
		return
	}
	p.paused = false
	p.startLocked(p.done)
}

// Stop abandons the current clip.
func (p *ClockPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Remaining returns how much of the current clip is left to play.
func (p *ClockPlayer) Remaining() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done == nil {
		return 0
	}
	if p.paused {
		return p.remaining
	}
	return max(0, p.remaining-time.Since(p.startedAt))
}

func (p *ClockPlayer) startLocked(done chan struct{}) {
	p.startedAt = time.Now()
	p.timer = time.AfterFunc(p.remaining, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		// A stale timer may fire after Stop or a newer Play.
		if p.done != done || p.paused {
			return
		}
		p.done, p.stop, p.timer = nil, nil, nil
		close(done)
	})
}

func (p *ClockPlayer) stopLocked() {
	if p.done == nil {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	close(p.stop)
	p.done, p.stop, p.timer = nil, nil, nil
	p.paused = false
}
