package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lutrinapp/lutrin/internal/domain"
	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/gateway"
	"github.com/lutrinapp/lutrin/internal/sse"
)

// Inbox subdirectories, relative to an owner's directory.
const (
	DoneDir   = ".done"
	FailedDir = ".failed"
)

// Ingester adds an e-book to an owner's library.
type Ingester interface {
	Ingest(ctx context.Context, ownerID, fileName string, r io.Reader) (*domain.Document, error)
}

// EventEmitter announces failed ingestions.
type EventEmitter interface {
	Emit(event any)
}

// Inbox ingests e-books dropped into {root}/{ownerId}/. Ingested files move
// to the owner's .done directory and rejected ones to .failed. Files that
// could not reach the gateway stay in place and are retried on the next
// scan.
type Inbox struct {
	root    string
	ingest  Ingester
	emitter EventEmitter
	logger  *slog.Logger
	opts    Options

	mu     sync.Mutex // serializes processing
	rescan chan struct{}
}

// NewInbox creates an inbox rooted at root.
func NewInbox(root string, ingester Ingester, emitter EventEmitter, logger *slog.Logger, opts Options) (*Inbox, error) {
	if root == "" {
		return nil, errors.New("inbox path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}
	return &Inbox{
		root:    filepath.Clean(root),
		ingest:  ingester,
		emitter: emitter,
		logger:  logger,
		opts:    opts,
		rescan:  make(chan struct{}, 1),
	}, nil
}

// Run scans the inbox, then watches it until ctx is canceled.
func (b *Inbox) Run(ctx context.Context) error {
	w, err := New(b.logger, b.opts)
	if err != nil {
		return err
	}
	defer w.Stop() //nolint:errcheck // Best-effort teardown

	if err := w.Watch(b.root); err != nil {
		return err
	}
	go w.Start(ctx) //nolint:errcheck // Returns when ctx ends

	b.logger.Info("watching inbox", "path", b.root)
	b.Scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.rescan:
			b.Scan(ctx)
		case event := <-w.Events():
			if event.Type == EventAdded {
				b.process(ctx, event.Path)
			}
		case err := <-w.Errors():
			b.logger.Warn("inbox watcher error", "error", err)
		}
	}
}

// Scan processes every e-book already waiting in the inbox.
func (b *Inbox) Scan(ctx context.Context) {
	owners, err := os.ReadDir(b.root)
	if err != nil {
		b.logger.Warn("failed to read inbox", "path", b.root, "error", err)
		return
	}

	for _, owner := range owners {
		if !owner.IsDir() || strings.HasPrefix(owner.Name(), ".") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(b.root, owner.Name()))
		if err != nil {
			b.logger.Warn("failed to read owner inbox", "owner_id", owner.Name(), "error", err)
			continue
		}
		for _, f := range files {
			if ctx.Err() != nil {
				return
			}
			if !f.IsDir() {
				b.process(ctx, filepath.Join(b.root, owner.Name(), f.Name()))
			}
		}
	}
}

// OnOnline implements monitor.Listener: files left behind while the
// gateway was down are retried.
func (b *Inbox) OnOnline() {
	select {
	case b.rescan <- struct{}{}:
	default:
	}
}

// OnOffline implements monitor.Listener.
func (b *Inbox) OnOffline() {}

// ownerOf returns the owner of an inbox file, or false when path is not an
// e-book directly inside an owner directory.
func (b *Inbox) ownerOf(path string) (string, bool) {
	rel, err := filepath.Rel(b.root, path)
	if err != nil {
		return "", false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 || strings.HasPrefix(parts[0], ".") || strings.HasPrefix(parts[1], ".") {
		return "", false
	}
	if !strings.EqualFold(filepath.Ext(parts[1]), ".epub") {
		return "", false
	}
	return parts[0], true
}

func (b *Inbox) process(ctx context.Context, path string) {
	owner, ok := b.ownerOf(path)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		// Already moved by an earlier event for the same file.
		if !errors.Is(err, os.ErrNotExist) {
			b.logger.Warn("failed to open inbox file", "path", path, "error", err)
		}
		return
	}
	doc, err := b.ingest.Ingest(ctx, owner, filepath.Base(path), f)
	_ = f.Close()

	if err != nil {
		if retryable(err) {
			b.logger.Info("gateway unavailable, leaving file in inbox", "path", path, "error", err)
			return
		}

		reason := err.Error()
		var domainErr *domainerrors.Error
		if errors.As(err, &domainErr) {
			reason = domainErr.Message
		}
		b.logger.Warn("inbox ingestion failed", "owner_id", owner, "file", filepath.Base(path), "reason", reason)
		if b.emitter != nil {
			b.emitter.Emit(sse.NewIngestFailedEvent(owner, filepath.Base(path), reason))
		}
		b.moveTo(path, FailedDir)
		return
	}

	b.logger.Info("inbox file ingested", "owner_id", owner, "file", filepath.Base(path), "document_id", doc.ID)
	b.moveTo(path, DoneDir)
}

// retryable reports whether err means the gateway could not be reached.
func retryable(err error) bool {
	return errors.Is(err, domainerrors.ErrOffline) ||
		errors.Is(err, gateway.ErrUnreachable) ||
		errors.Is(err, context.Canceled)
}

// moveTo moves path into the sibling directory sub, never overwriting an
// earlier file of the same name.
func (b *Inbox) moveTo(path, sub string) {
	dir := filepath.Join(filepath.Dir(path), sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		b.logger.Error("failed to create inbox directory", "path", dir, "error", err)
		return
	}

	name := filepath.Base(path)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	dest := filepath.Join(dir, name)
	for n := 1; ; n++ {
		if _, err := os.Lstat(dest); errors.Is(err, os.ErrNotExist) {
			break
		}
		dest = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
	}

	if err := os.Rename(path, dest); err != nil {
		b.logger.Error("failed to move inbox file", "from", path, "to", dest, "error", err)
	}
}
