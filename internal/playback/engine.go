// Package playback reads a document aloud chapter by chapter.
//
// An Engine belongs to one listening session. It synthesizes each chapter
// through the gateway, keeps the next chapter warm in a small cache, and
// saves the listener's position in the library as chapters begin.
//
//	engine := playback.NewEngine(sessionID, doc, "piper", deps)
//	defer engine.Close()
//	if err := engine.Play(ctx); err != nil { ... }
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/lutrinapp/lutrin/internal/audio"
	"github.com/lutrinapp/lutrin/internal/chapters"
	"github.com/lutrinapp/lutrin/internal/domain"
	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/gateway"
	"github.com/lutrinapp/lutrin/internal/sse"
)

// State is the engine's playback state.
type State string

// Engine states.
const (
	StateIdle     State = "idle"
	StateLoading  State = "loading"
	StatePlaying  State = "playing"
	StatePaused   State = "paused"
	StateFinished State = "finished"
)

// skipStep is how many chapters SkipForward and SkipBackward move.
const skipStep = 10

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = &domainerrors.Error{Code: domainerrors.CodeNotFound, Message: "playback session closed"}

// Synthesizer turns chapter text into a gateway audio URL.
type Synthesizer interface {
	RunTTS(ctx context.Context, text, engineID string) (string, error)
}

// ClipSource downloads generated audio into a locally-owned clip.
type ClipSource interface {
	Download(ctx context.Context, audioURL string) (*audio.Clip, error)
}

// ProgressStore persists the listener's position.
type ProgressStore interface {
	SetProgress(ctx context.Context, id int64, lastChapterRead int) error
}

// EventEmitter announces state changes.
type EventEmitter interface {
	Emit(event any)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	TTS      Synthesizer
	Clips    ClipSource
	Player   audio.Player
	Progress ProgressStore
	Emitter  EventEmitter // optional
	Logger   *slog.Logger
}

// Snapshot is a point-in-time view of an engine.
type Snapshot struct {
	SessionID    string       `json:"session_id"`
	DocumentID   int64        `json:"document_id"`
	OwnerID      string       `json:"owner_id"`
	State        State        `json:"state"`
	Chapter      int          `json:"chapter"`
	ChapterCount int          `json:"chapter_count"`
	Cache        []CacheState `json:"cache"`
}

// Engine plays one document's chapters in order.
type Engine struct {
	sessionID string
	docID     int64
	ownerID   string
	chapters  []string
	ttsEngine string
	deps      Deps

	// ctx lives as long as the engine; background work runs under it.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	current int
	entries []entry
	// gen invalidates in-flight loads and playback when bumped.
	gen      uint64
	stopClip context.CancelFunc
	closed   bool

	// fetching is the session's single generation slot. Whoever holds it
	// is the only caller of the gateway's TTS endpoint.
	fetching chan struct{}
}

// NewEngine creates an idle engine positioned at the document's saved
// progress. A finished document starts over from the first chapter.
func NewEngine(sessionID string, doc *domain.Document, ttsEngine string, deps Deps) *Engine {
	return newEngine(sessionID, doc, doc.Chapters(), ttsEngine, deps)
}

func newEngine(sessionID string, doc *domain.Document, texts []string, ttsEngine string, deps Deps) *Engine {
	start := doc.ReadingProgress.LastChapterRead
	if start < 0 || start >= len(texts) {
		start = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		sessionID: sessionID,
		docID:     doc.ID,
		ownerID:   doc.OwnerID,
		chapters:  texts,
		ttsEngine: ttsEngine,
		deps:      deps,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
		current:   start,
		entries:   make([]entry, len(texts)),
		fetching:  make(chan struct{}, 1),
	}
}

// SessionID returns the session the engine belongs to.
func (e *Engine) SessionID() string { return e.sessionID }

// DocumentID returns the document being played.
func (e *Engine) DocumentID() int64 { return e.docID }

// State returns the current playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot returns the current state, chapter and cache.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	cache := make([]CacheState, len(e.entries))
	for i := range e.entries {
		cache[i] = e.entries[i].state
	}
	return Snapshot{
		SessionID:    e.sessionID,
		DocumentID:   e.docID,
		OwnerID:      e.ownerID,
		State:        e.state,
		Chapter:      e.current,
		ChapterCount: len(e.chapters),
		Cache:        cache,
	}
}

// Play starts or resumes playback at the current chapter. It returns once
// audio is playing, the document is finished, or the target chapter could
// not be synthesized.
func (e *Engine) Play(ctx context.Context) error {
	e.mu.Lock()
	if err := e.checkLocked(); err != nil {
		e.mu.Unlock()
		return err
	}

	switch {
	case e.state == StatePlaying:
		e.mu.Unlock()
		return nil
	case e.state == StatePaused && e.stopClip != nil:
		e.deps.Player.Resume()
		e.setStateLocked(StatePlaying)
		e.mu.Unlock()
		return nil
	}

	result := e.beginLocked(e.current, true)
	e.mu.Unlock()

	return e.await(ctx, result)
}

// PlayChapter stops any playback and plays chapter i, clamped to the
// document's range.
func (e *Engine) PlayChapter(ctx context.Context, i int) error {
	e.mu.Lock()
	if err := e.checkLocked(); err != nil {
		e.mu.Unlock()
		return err
	}

	e.stopLocked()
	result := e.beginLocked(e.clamp(i), true)
	e.mu.Unlock()

	return e.await(ctx, result)
}

// Pause pauses a playing chapter. Pausing in any other settled state does
// nothing.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkLocked(); err != nil {
		return err
	}
	if e.state != StatePlaying {
		return nil
	}

	e.deps.Player.Pause()
	e.setStateLocked(StatePaused)
	return nil
}

// Next moves to the following chapter without playing it.
func (e *Engine) Next(ctx context.Context) error {
	return e.navigate(ctx, func(cur int) int { return cur + 1 })
}

// Previous moves to the preceding chapter without playing it.
func (e *Engine) Previous(ctx context.Context) error {
	return e.navigate(ctx, func(cur int) int { return cur - 1 })
}

// SkipForward moves ten chapters ahead.
func (e *Engine) SkipForward(ctx context.Context) error {
	return e.navigate(ctx, func(cur int) int { return cur + skipStep })
}

// SkipBackward moves ten chapters back.
func (e *Engine) SkipBackward(ctx context.Context) error {
	return e.navigate(ctx, func(cur int) int { return cur - skipStep })
}

// Seek moves to chapter i without playing it.
func (e *Engine) Seek(ctx context.Context, i int) error {
	return e.navigate(ctx, func(int) int { return i })
}

// navigate stops playback, moves to the clamped target and saves it. The
// engine is left paused at the target; nothing is synthesized.
func (e *Engine) navigate(ctx context.Context, target func(cur int) int) error {
	e.mu.Lock()
	if err := e.checkLocked(); err != nil {
		e.mu.Unlock()
		return err
	}

	e.stopLocked()
	e.current = e.clamp(target(e.current))
	chapter := e.current
	e.setStateLocked(StatePaused)
	e.mu.Unlock()

	return e.deps.Progress.SetProgress(ctx, e.docID, chapter)
}

// Close stops playback and releases every cached clip. Generations still
// in flight release their clips when they land.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.stopLocked()
	e.cancel()

	var errs []error
	for i := range e.entries {
		if e.entries[i].state == Ready {
			errs = append(errs, e.entries[i].release())
		}
	}

	e.deps.Logger.Debug("playback session closed", "session_id", e.sessionID, "document_id", e.docID)
	return errors.Join(errs...)
}

func (e *Engine) checkLocked() error {
	if e.closed {
		return ErrClosed
	}
	if e.state == StateLoading {
		return domainerrors.Busy("chapter audio is loading")
	}
	return nil
}

func (e *Engine) clamp(i int) int {
	if len(e.chapters) == 0 {
		return 0
	}
	return min(max(i, 0), len(e.chapters)-1)
}

func (e *Engine) await(ctx context.Context, result <-chan error) error {
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		// Loading carries on; the listener gets the audio anyway.
		return ctx.Err()
	}
}

// stopLocked abandons the current clip and any load in progress.
func (e *Engine) stopLocked() {
	e.gen++
	if e.stopClip != nil {
		e.stopClip()
		e.stopClip = nil
		e.deps.Player.Stop()
	}
}

func (e *Engine) setStateLocked(s State) {
	e.state = s
	if e.deps.Emitter == nil {
		return
	}
	e.deps.Emitter.Emit(sse.NewPlaybackStateEvent(e.ownerID, sse.PlaybackEventData{
		SessionID:    e.sessionID,
		DocumentID:   e.docID,
		State:        string(s),
		Chapter:      e.current,
		ChapterCount: len(e.chapters),
	}))
}

// beginLocked enters Loading for chapter i and starts loading it in the
// background. The channel receives the outcome once playback starts or
// fails.
func (e *Engine) beginLocked(i int, explicit bool) <-chan error {
	e.gen++
	gen := e.gen
	e.current = i
	e.setStateLocked(StateLoading)

	result := make(chan error, 1)
	go func() {
		result <- e.load(gen, i, explicit)
	}()
	return result
}

// load walks forward from chapter i until a chapter has audio, skipping
// blank chapters, and starts playing it. Running past the last chapter
// finishes the document.
func (e *Engine) load(gen uint64, i int, explicit bool) error {
	for {
		if i >= len(e.chapters) {
			return e.finish(gen)
		}

		// Progress is saved as the chapter begins, before its audio plays.
		if err := e.deps.Progress.SetProgress(e.ctx, e.docID, i); err != nil {
			e.deps.Logger.Warn("failed to save reading progress",
				"document_id", e.docID, "chapter", i, "error", err)
		}

		if !e.advanceTo(gen, i) {
			return ErrClosed
		}

		clip, state, err := e.resolve(i, explicit)

		e.mu.Lock()
		if e.closed || e.gen != gen {
			e.mu.Unlock()
			return ErrClosed
		}

		switch {
		case state == Ready:
			e.startClipLocked(gen, i, clip)
			e.mu.Unlock()
			e.prefetch(i + 1)
			return nil

		case state == Failed && explicit:
			e.setStateLocked(StatePaused)
			e.mu.Unlock()
			return domainerrors.Stage(domainerrors.CodeTtsFailed, gateway.MessageOf(err), err)
		}

		e.mu.Unlock()
		e.deps.Logger.Debug("skipping chapter", "document_id", e.docID, "chapter", i, "cache", state)
		i++
		explicit = false
	}
}

func (e *Engine) advanceTo(gen uint64, i int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.gen != gen {
		return false
	}
	e.current = i
	return true
}

// resolve returns chapter i's audio, generating it when needed. Failed
// chapters are generated again only for an explicit request.
func (e *Engine) resolve(i int, explicit bool) (*audio.Clip, CacheState, error) {
	waited := false
	for {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return nil, NotRequested, ErrClosed
		}

		en := &e.entries[i]
		switch {
		case en.state == Ready, en.state == Empty:
			clip, state := en.clip, en.state
			e.mu.Unlock()
			return clip, state, nil

		case en.state == Failed && (!explicit || waited):
			err := en.err
			e.mu.Unlock()
			return nil, Failed, err

		case en.state == Pending:
			done := en.done
			e.mu.Unlock()
			select {
			case <-done:
			case <-e.ctx.Done():
				return nil, NotRequested, ErrClosed
			}

		default:
			e.markPendingLocked(i)
			e.mu.Unlock()

			// An in-flight generation, pre-fetch included, settles first.
			select {
			case e.fetching <- struct{}{}:
			case <-e.ctx.Done():
				e.abandon(i)
				return nil, NotRequested, ErrClosed
			}
			e.generate(i)
		}
		waited = true
	}
}

// abandon settles a Pending entry whose generation never started.
func (e *Engine) abandon(i int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	en := &e.entries[i]
	if en.state != Pending {
		return
	}
	done := en.done
	*en = entry{}
	close(done)
}

// prefetch warms chapter i in the background, but only for a chapter never
// requested and only when no other generation is in flight.
func (e *Engine) prefetch(i int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || i >= len(e.chapters) || e.entries[i].state != NotRequested {
		return
	}

	select {
	case e.fetching <- struct{}{}:
	default:
		return
	}

	e.markPendingLocked(i)
	go e.generate(i)
}

func (e *Engine) markPendingLocked(i int) {
	e.entries[i] = entry{state: Pending, done: make(chan struct{})}
}

// generate synthesizes chapter i, settles its Pending entry and gives up
// the generation slot. The caller must hold the slot.
func (e *Engine) generate(i int) {
	clip, state, err := e.synthesize(e.chapters[i])

	e.mu.Lock()
	defer e.mu.Unlock()

	en := &e.entries[i]
	done := en.done

	if e.closed && clip != nil {
		if rerr := clip.Release(); rerr != nil {
			e.deps.Logger.Warn("failed to release late clip", "chapter", i, "error", rerr)
		}
		clip, state = nil, NotRequested
	}

	*en = entry{state: state, clip: clip, err: err}
	if err != nil {
		e.deps.Logger.Warn("chapter synthesis failed",
			"document_id", e.docID, "chapter", i, "error", err)
	}
	<-e.fetching
	close(done)
}

func (e *Engine) synthesize(text string) (*audio.Clip, CacheState, error) {
	if chapters.IsBlank(text) {
		return nil, Empty, nil
	}

	audioURL, err := e.deps.TTS.RunTTS(e.ctx, text, e.ttsEngine)
	if errors.Is(err, gateway.ErrEmptyText) {
		return nil, Empty, nil
	}
	if err != nil {
		return nil, Failed, err
	}

	clip, err := e.deps.Clips.Download(e.ctx, audioURL)
	if err != nil {
		return nil, Failed, err
	}
	return clip, Ready, nil
}

func (e *Engine) startClipLocked(gen uint64, i int, clip *audio.Clip) {
	ctx, stop := context.WithCancel(e.ctx)
	e.stopClip = stop
	e.setStateLocked(StatePlaying)

	go func() {
		err := e.deps.Player.Play(ctx, clip)
		e.clipEnded(gen, i, err)
	}()
}

// clipEnded advances after a chapter plays to its end. Clips cut short by
// navigation or Close are ignored.
func (e *Engine) clipEnded(gen uint64, i int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.gen != gen {
		return
	}
	e.stopClip = nil

	if err != nil {
		e.deps.Logger.Warn("chapter playback failed", "document_id", e.docID, "chapter", i, "error", err)
		e.setStateLocked(StatePaused)
		return
	}

	// The heard chapter's clip is superseded.
	if e.entries[i].state == Ready {
		if rerr := e.entries[i].release(); rerr != nil {
			e.deps.Logger.Warn("failed to release clip", "chapter", i, "error", rerr)
		}
	}

	e.beginLocked(i+1, false)
}

// finish ends the document: progress goes back to the first chapter and
// every cached clip is released.
func (e *Engine) finish(gen uint64) error {
	e.mu.Lock()
	if e.closed || e.gen != gen {
		e.mu.Unlock()
		return ErrClosed
	}

	for i := range e.entries {
		if e.entries[i].state != Pending {
			if err := e.entries[i].release(); err != nil {
				e.deps.Logger.Warn("failed to release clip", "chapter", i, "error", err)
			}
		}
	}
	e.current = 0
	e.setStateLocked(StateFinished)
	e.mu.Unlock()

	e.deps.Logger.Info("document finished", "document_id", e.docID, "session_id", e.sessionID)

	if err := e.deps.Progress.SetProgress(e.ctx, e.docID, 0); err != nil {
		e.deps.Logger.Warn("failed to reset reading progress", "document_id", e.docID, "error", err)
	}
	return nil
}
