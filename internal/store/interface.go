package store

import (
	"context"
	"log/slog"

	"github.com/lutrinapp/lutrin/internal/domain"
	"github.com/lutrinapp/lutrin/internal/sse"
)

// Library is the persistent collection of documents, keyed by id with a
// secondary lookup by owner. Both the Badger and SQLite backends implement it.
type Library interface {
	// Create assigns a fresh id to doc, persists it and returns the id.
	Create(ctx context.Context, doc *domain.Document) (int64, error)
	// ListByOwner returns every document of ownerID, in no particular order.
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Document, error)
	// GetByID returns ErrNotFound when the document does not exist.
	GetByID(ctx context.Context, id int64) (*domain.Document, error)
	// Update replaces the whole record. Concurrent writers are last-write-wins.
	Update(ctx context.Context, doc *domain.Document) error
	// DeleteByID removes a document. Deleting a missing id is not an error.
	DeleteByID(ctx context.Context, id int64) error
	// SetProgress rewrites only the reading progress in a single transaction.
	SetProgress(ctx context.Context, id int64, lastChapterRead int) error
	// ListAll returns every document across owners.
	ListAll(ctx context.Context) ([]*domain.Document, error)

	SetSearchIndexer(indexer SearchIndexer)
	Close() error
}

// EventEmitter is the interface for emitting SSE events.
// Store uses this to broadcast changes without depending on SSE implementation details.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter is a no-op implementation of EventEmitter for testing.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(_ any) {}

// NewNoopEmitter creates a new no-op emitter for testing.
func NewNoopEmitter() EventEmitter { return NoopEmitter{} }

// SearchIndexer is the interface for updating the search index.
// Index updates are performed asynchronously to not block store operations.
type SearchIndexer interface {
	IndexDocument(ctx context.Context, doc *domain.Document) error
	DeleteDocument(ctx context.Context, id int64) error
}

// Notifier fans store changes out to SSE clients and the search index.
// It is shared by every backend so they announce changes identically.
type Notifier struct {
	logger  *slog.Logger
	emitter EventEmitter
	indexer SearchIndexer
}

// NewNotifier creates a Notifier. A nil emitter is replaced by NoopEmitter.
func NewNotifier(logger *slog.Logger, emitter EventEmitter) *Notifier {
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	return &Notifier{logger: logger, emitter: emitter}
}

// SetSearchIndexer sets the search indexer. It is set after store creation
// because the search index is built from the store.
func (n *Notifier) SetSearchIndexer(indexer SearchIndexer) {
	n.indexer = indexer
}

// Created announces a new document.
func (n *Notifier) Created(doc *domain.Document) {
	n.emitter.Emit(sse.NewDocumentCreatedEvent(doc))
	n.index(doc)
}

// Updated announces a changed document.
func (n *Notifier) Updated(doc *domain.Document) {
	n.emitter.Emit(sse.NewDocumentUpdatedEvent(doc))
	n.index(doc)
}

// Deleted announces a removed document.
func (n *Notifier) Deleted(ownerID string, id int64) {
	n.emitter.Emit(sse.NewDocumentDeletedEvent(ownerID, id))

	if n.indexer == nil {
		return
	}
	go func() {
		if err := n.indexer.DeleteDocument(context.Background(), id); err != nil && n.logger != nil {
			n.logger.Warn("failed to remove document from search index", "document_id", id, "error", err)
		}
	}()
}

func (n *Notifier) index(doc *domain.Document) {
	if n.indexer == nil {
		return
	}
	snapshot := doc.Clone()
	go func() {
		if err := n.indexer.IndexDocument(context.Background(), snapshot); err != nil && n.logger != nil {
			n.logger.Warn("failed to index document for search", "document_id", snapshot.ID, "error", err)
		}
	}()
}
