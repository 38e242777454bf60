package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lutrinapp/lutrin/internal/audio"
	"github.com/lutrinapp/lutrin/internal/domain"
	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/id"
	"github.com/lutrinapp/lutrin/internal/playback"
)

// Action is a transport control applied to a session.
type Action string

// Session actions.
const (
	ActionPlay     Action = "play"
	ActionPause    Action = "pause"
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
	ActionForward  Action = "forward"
	ActionBackward Action = "backward"
)

// ValidAction reports whether a names a known action.
func ValidAction(a string) bool {
	switch Action(a) {
	case ActionPlay, ActionPause, ActionNext, ActionPrevious, ActionForward, ActionBackward:
		return true
	default:
		return false
	}
}

// DocumentSource loads documents and persists reading progress.
type DocumentSource interface {
	GetByID(ctx context.Context, id int64) (*domain.Document, error)
	SetProgress(ctx context.Context, id int64, lastChapterRead int) error
}

// SessionDeps are the collaborators shared by every playback session.
type SessionDeps struct {
	Documents DocumentSource
	TTS       playback.Synthesizer
	Clips     playback.ClipSource
	Online    Connectivity // optional
	Emitter   playback.EventEmitter
	Logger    *slog.Logger
	TTSEngine string
	// NewPlayer creates the player of a new session.
	// Defaults to a headless audio.ClockPlayer.
	NewPlayer func() audio.Player
}

type sessionKey struct {
	ownerID string
	docID   int64
}

// SessionService owns the live playback engines. There is at most one
// session per owner and document; opening another replaces it.
type SessionService struct {
	deps SessionDeps

	mu       sync.Mutex
	sessions map[string]*playback.Engine
	byDoc    map[sessionKey]string
}

// NewSessionService creates a new session service.
func NewSessionService(deps SessionDeps) *SessionService {
	if deps.NewPlayer == nil {
		deps.NewPlayer = func() audio.Player { return audio.NewClockPlayer() }
	}
	return &SessionService{
		deps:     deps,
		sessions: make(map[string]*playback.Engine),
		byDoc:    make(map[sessionKey]string),
	}
}

// Open starts an idle session on ownerID's document, positioned at the
// saved progress.
func (s *SessionService) Open(ctx context.Context, ownerID string, docID int64) (playback.Snapshot, error) {
	doc, err := s.deps.Documents.GetByID(ctx, docID)
	if err != nil {
		return playback.Snapshot{}, err
	}
	if doc.OwnerID != ownerID {
		// Do not reveal documents of other owners.
		return playback.Snapshot{}, domainerrors.NotFoundf("document %d not found", docID)
	}

	sessionID, err := id.Generate(id.PrefixSession)
	if err != nil {
		return playback.Snapshot{}, fmt.Errorf("session id: %w", err)
	}

	engine := playback.NewEngine(sessionID, doc, s.deps.TTSEngine, playback.Deps{
		TTS:      s.deps.TTS,
		Clips:    s.deps.Clips,
		Player:   s.deps.NewPlayer(),
		Progress: s.deps.Documents,
		Emitter:  s.deps.Emitter,
		Logger:   s.deps.Logger.With("session_id", sessionID),
	})

	key := sessionKey{ownerID: ownerID, docID: docID}

	s.mu.Lock()
	var replaced *playback.Engine
	if prev, ok := s.byDoc[key]; ok {
		replaced = s.sessions[prev]
		delete(s.sessions, prev)
	}
	s.sessions[sessionID] = engine
	s.byDoc[key] = sessionID
	s.mu.Unlock()

	if replaced != nil {
		s.closeEngine(replaced, "replaced")
	}

	s.deps.Logger.Info("playback session opened",
		"session_id", sessionID,
		"owner_id", ownerID,
		"document_id", docID,
		"chapters", doc.ChapterCount,
	)
	return engine.Snapshot(), nil
}

// Get returns a live session.
func (s *SessionService) Get(sessionID string) (*playback.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	engine, ok := s.sessions[sessionID]
	if !ok {
		return nil, domainerrors.NotFoundf("session %s not found", sessionID)
	}
	return engine, nil
}

// Snapshot returns the current view of a session.
func (s *SessionService) Snapshot(sessionID string) (playback.Snapshot, error) {
	engine, err := s.Get(sessionID)
	if err != nil {
		return playback.Snapshot{}, err
	}
	return engine.Snapshot(), nil
}

// Control applies a transport action and returns the resulting snapshot.
// Starting playback while the gateway is known to be offline fails fast.
func (s *SessionService) Control(ctx context.Context, sessionID string, action Action) (playback.Snapshot, error) {
	engine, err := s.Get(sessionID)
	if err != nil {
		return playback.Snapshot{}, err
	}

	switch action {
	case ActionPlay:
		if err = s.requireOnline(); err == nil {
			err = engine.Play(ctx)
		}
	case ActionPause:
		err = engine.Pause()
	case ActionNext:
		err = engine.Next(ctx)
	case ActionPrevious:
		err = engine.Previous(ctx)
	case ActionForward:
		err = engine.SkipForward(ctx)
	case ActionBackward:
		err = engine.SkipBackward(ctx)
	default:
		err = domainerrors.Validationf("unknown action %q", action)
	}
	if err != nil {
		return engine.Snapshot(), err
	}
	return engine.Snapshot(), nil
}

// Seek moves a session to a chapter. With play set, the chapter starts
// playing; otherwise the session stays paused there.
func (s *SessionService) Seek(ctx context.Context, sessionID string, chapter int, play bool) (playback.Snapshot, error) {
	engine, err := s.Get(sessionID)
	if err != nil {
		return playback.Snapshot{}, err
	}

	if play {
		if err = s.requireOnline(); err == nil {
			err = engine.PlayChapter(ctx, chapter)
		}
	} else {
		err = engine.Seek(ctx, chapter)
	}
	return engine.Snapshot(), err
}

// Close tears down a session and releases its audio.
func (s *SessionService) Close(sessionID string) error {
	s.mu.Lock()
	engine, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
		snap := engine.Snapshot()
		key := sessionKey{ownerID: snap.OwnerID, docID: snap.DocumentID}
		if s.byDoc[key] == sessionID {
			delete(s.byDoc, key)
		}
	}
	s.mu.Unlock()

	if !ok {
		return domainerrors.NotFoundf("session %s not found", sessionID)
	}
	return s.closeEngine(engine, "closed")
}

// CloseAll tears down every session.
func (s *SessionService) CloseAll() error {
	s.mu.Lock()
	engines := make([]*playback.Engine, 0, len(s.sessions))
	for _, engine := range s.sessions {
		engines = append(engines, engine)
	}
	clear(s.sessions)
	clear(s.byDoc)
	s.mu.Unlock()

	var errs []error
	for _, engine := range engines {
		errs = append(errs, s.closeEngine(engine, "closed"))
	}
	return errors.Join(errs...)
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// OnOnline implements monitor.Listener. Recovery rebuilds state from
// scratch: live sessions are dropped and clients reopen them.
func (s *SessionService) OnOnline() {
	n := s.Count()
	if err := s.CloseAll(); err != nil {
		s.deps.Logger.Warn("failed to release sessions on reconnect", "error", err)
	}
	if n > 0 {
		s.deps.Logger.Info("gateway back online, sessions reset", "sessions", n)
	}
}

// OnOffline implements monitor.Listener.
func (s *SessionService) OnOffline() {
	s.deps.Logger.Warn("gateway offline, playback limited to cached chapters", "sessions", s.Count())
}

// Shutdown closes every session.
func (s *SessionService) Shutdown() error {
	return s.CloseAll()
}

func (s *SessionService) requireOnline() error {
	if s.deps.Online != nil && !s.deps.Online.Online() {
		return domainerrors.ErrOffline
	}
	return nil
}

func (s *SessionService) closeEngine(engine *playback.Engine, reason string) error {
	err := engine.Close()
	if err != nil {
		s.deps.Logger.Warn("failed to release session audio",
			"session_id", engine.SessionID(),
			"error", err,
		)
	}
	s.deps.Logger.Debug("playback session "+reason, "session_id", engine.SessionID())
	return err
}
