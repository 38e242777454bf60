package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/lutrinapp/lutrin/internal/domain"
	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
)

// Create assigns a new id to doc and persists it. doc.ID is set on success.
func (s *Store) Create(ctx context.Context, doc *domain.Document) (int64, error) {
	if doc.Authors == nil {
		doc.Authors = []string{}
	}

	id, err := s.nextID(ctx)
	if err != nil {
		return 0, err
	}
	doc.ID = id

	if err := s.documents.Create(ctx, documentKey(id), doc); err != nil {
		doc.ID = 0
		return 0, fmt.Errorf("create document: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("document created", "document_id", id, "owner_id", doc.OwnerID)
	}
	s.Created(doc)
	return id, nil
}

// GetByID retrieves a document.
func (s *Store) GetByID(ctx context.Context, id int64) (*domain.Document, error) {
	doc, err := s.documents.Get(ctx, documentKey(id))
	if errors.Is(err, ErrNotFound) {
		return nil, documentNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}
	return doc, nil
}

// ListByOwner returns all documents of an owner.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Document, error) {
	docs, err := s.documents.ListByIndex(ctx, "owner", ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents of %s: %w", ownerID, err)
	}
	if docs == nil {
		docs = []*domain.Document{}
	}
	return docs, nil
}

// ListAll returns every document in the library.
func (s *Store) ListAll(ctx context.Context) ([]*domain.Document, error) {
	docs := []*domain.Document{}
	for doc, err := range s.documents.List(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Update replaces a document. The id must already exist.
func (s *Store) Update(ctx context.Context, doc *domain.Document) error {
	if doc.ID <= 0 {
		return domainerrors.Validation("document id is required")
	}
	if doc.Authors == nil {
		doc.Authors = []string{}
	}

	err := s.documents.Update(ctx, documentKey(doc.ID), doc)
	if errors.Is(err, ErrNotFound) {
		return documentNotFound(doc.ID)
	}
	if err != nil {
		return fmt.Errorf("update document %d: %w", doc.ID, err)
	}

	s.Updated(doc)
	return nil
}

// SetProgress records the last chapter read without touching other fields.
func (s *Store) SetProgress(ctx context.Context, id int64, lastChapterRead int) error {
	if lastChapterRead < 0 {
		return domainerrors.Validationf("last chapter read must not be negative, got %d", lastChapterRead)
	}

	doc, err := s.documents.Mutate(ctx, documentKey(id), func(d *domain.Document) error {
		d.ReadingProgress.LastChapterRead = lastChapterRead
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return documentNotFound(id)
	}
	if err != nil {
		return fmt.Errorf("set progress of document %d: %w", id, err)
	}

	s.Updated(doc)
	return nil
}

// DeleteByID removes a document. Missing ids are ignored.
func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	removed, err := s.documents.Delete(ctx, documentKey(id))
	if err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}
	if removed == nil {
		return nil
	}

	if s.logger != nil {
		s.logger.Debug("document deleted", "document_id", id, "owner_id", removed.OwnerID)
	}
	s.Deleted(removed.OwnerID, id)
	return nil
}
