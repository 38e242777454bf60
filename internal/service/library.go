// Package service provides the business logic between the HTTP surface and
// the reading core: library ingestion and edits, and live playback sessions.
package service

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/lutrinapp/lutrin/internal/chapters"
	"github.com/lutrinapp/lutrin/internal/domain"
	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/gateway"
	"github.com/lutrinapp/lutrin/internal/media/covers"
	"github.com/lutrinapp/lutrin/internal/search"
	"github.com/lutrinapp/lutrin/internal/store"
	"github.com/lutrinapp/lutrin/internal/validation"
)

// EpubExtractor turns an uploaded e-book into text and metadata.
type EpubExtractor interface {
	AddEpub(ctx context.Context, fileName string, r io.Reader) (*gateway.EpubResult, error)
}

// Connectivity reports whether the processing gateway is believed reachable.
type Connectivity interface {
	Online() bool
}

// Searcher queries the library search index.
type Searcher interface {
	Search(ctx context.Context, params search.Params) (*search.Result, error)
	Reindex(ctx context.Context, docs []*domain.Document) error
}

// CreateDocumentInput is a document supplied as structured data rather than
// extracted from an e-book.
type CreateDocumentInput struct {
	Title       string
	Authors     []string
	Description string
	Style       string
	SeriesName  string
	SeriesIndex *float64
	CoverImage  string // data URI, optional
	Text        string
	SourceName  string
}

// MetadataUpdate carries the editable metadata. Nil fields are left alone.
type MetadataUpdate struct {
	Style       *string
	SeriesName  *string
	SeriesIndex *float64
	// ClearSeriesIndex removes the series position.
	ClearSeriesIndex bool
}

// LibraryService manages owners' documents.
type LibraryService struct {
	store    store.Library
	epubs    EpubExtractor
	online   Connectivity
	searcher Searcher
	logger   *slog.Logger
	now      func() time.Time
}

// NewLibraryService creates a new library service.
// searcher and online may be nil; search then reports NOT_FOUND and the
// gateway is assumed reachable.
func NewLibraryService(lib store.Library, epubs EpubExtractor, online Connectivity, searcher Searcher, logger *slog.Logger) *LibraryService {
	return &LibraryService{
		store:    lib,
		epubs:    epubs,
		online:   online,
		searcher: searcher,
		logger:   logger,
		now:      time.Now,
	}
}

// Ingest extracts an e-book through the gateway and adds it to the owner's
// library. A cover the gateway returns is normalized; a cover that cannot
// be processed is dropped rather than failing the ingestion.
func (s *LibraryService) Ingest(ctx context.Context, ownerID, fileName string, r io.Reader) (*domain.Document, error) {
	ownerID, err := validation.OwnerID(ownerID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(filepath.Ext(fileName), ".epub") {
		return nil, domainerrors.Validationf("%q is not an EPUB file", fileName)
	}
	if s.online != nil && !s.online.Online() {
		return nil, domainerrors.ErrOffline
	}

	result, err := s.epubs.AddEpub(ctx, filepath.Base(fileName), r)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUploadFailed, gatewayMessage(err, "e-book extraction failed"))
	}
	if chapters.Count(result.Text) == 0 {
		return nil, domainerrors.Validationf("%q contains no readable text", fileName)
	}

	title := strings.TrimSpace(result.Metadata.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	}

	doc := domain.NewDocument(ownerID, title, cleanAuthors(result.Metadata.Authors), result.Text)
	doc.Description = strings.TrimSpace(result.Metadata.Description)
	doc.SourceName = filepath.Base(fileName)

	if result.CoverImage != "" {
		if cover, err := covers.Prepare(result.CoverImage); err != nil {
			s.logger.Warn("dropping unusable e-book cover", "file", fileName, "error", err)
		} else {
			doc.CoverImage = cover.DataURI
			doc.CoverBlurHash = cover.BlurHash
		}
	}

	if err := s.create(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("e-book ingested",
		"document_id", doc.ID,
		"owner_id", ownerID,
		"title", doc.Title,
		"chapters", doc.ChapterCount,
	)
	return doc, nil
}

// Create adds a document from structured input.
func (s *LibraryService) Create(ctx context.Context, ownerID string, in CreateDocumentInput) (*domain.Document, error) {
	ownerID, err := validation.OwnerID(ownerID)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, domainerrors.Validation("title is required")
	}

	doc := domain.NewDocument(ownerID, title, cleanAuthors(in.Authors), in.Text)
	doc.Description = strings.TrimSpace(in.Description)
	doc.Style = strings.TrimSpace(in.Style)
	doc.SeriesName = strings.TrimSpace(in.SeriesName)
	doc.SeriesIndex = in.SeriesIndex
	doc.SourceName = in.SourceName

	if in.CoverImage != "" {
		cover, err := covers.Prepare(in.CoverImage)
		if err != nil {
			return nil, err
		}
		doc.CoverImage = cover.DataURI
		doc.CoverBlurHash = cover.BlurHash
	}

	if err := s.create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *LibraryService) create(ctx context.Context, doc *domain.Document) error {
	now := s.now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if _, err := s.store.Create(ctx, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// Get returns a document.
func (s *LibraryService) Get(ctx context.Context, id int64) (*domain.Document, error) {
	return s.store.GetByID(ctx, id)
}

// List returns an owner's documents, most recently updated first.
// A non-empty category keeps only documents in that category.
func (s *LibraryService) List(ctx context.Context, ownerID, category string) ([]*domain.Document, error) {
	ownerID, err := validation.OwnerID(ownerID)
	if err != nil {
		return nil, err
	}
	if category != "" && !domain.ValidCategory(category) {
		return nil, domainerrors.Validationf("unknown category %q", category)
	}

	docs, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if category != "" {
		docs = slices.DeleteFunc(docs, func(d *domain.Document) bool {
			return d.Category() != domain.Category(category)
		})
	}
	slices.SortFunc(docs, func(a, b *domain.Document) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return docs, nil
}

// Categorize groups an owner's documents by reading progress.
func (s *LibraryService) Categorize(ctx context.Context, ownerID string) (map[domain.Category][]*domain.Document, error) {
	docs, err := s.List(ctx, ownerID, "")
	if err != nil {
		return nil, err
	}
	groups := map[domain.Category][]*domain.Document{
		domain.CategoryUnstarted:  {},
		domain.CategoryInProgress: {},
		domain.CategoryFinished:   {},
	}
	for _, doc := range docs {
		groups[doc.Category()] = append(groups[doc.Category()], doc)
	}
	return groups, nil
}

// UpdateMetadata applies style and series edits.
func (s *LibraryService) UpdateMetadata(ctx context.Context, id int64, upd MetadataUpdate) (*domain.Document, error) {
	if upd.SeriesIndex != nil && *upd.SeriesIndex < 0 {
		return nil, domainerrors.Validation("series index must not be negative")
	}

	return s.modify(ctx, id, func(doc *domain.Document) {
		if upd.Style != nil {
			doc.Style = strings.TrimSpace(*upd.Style)
		}
		if upd.SeriesName != nil {
			doc.SeriesName = strings.TrimSpace(*upd.SeriesName)
		}
		switch {
		case upd.ClearSeriesIndex:
			doc.SeriesIndex = nil
		case upd.SeriesIndex != nil:
			v := *upd.SeriesIndex
			doc.SeriesIndex = &v
		}
	})
}

// SetCover attaches a cover image given as a data URI.
func (s *LibraryService) SetCover(ctx context.Context, id int64, dataURI string) (*domain.Document, error) {
	cover, err := covers.Prepare(dataURI)
	if err != nil {
		return nil, err
	}
	return s.modify(ctx, id, func(doc *domain.Document) {
		doc.CoverImage = cover.DataURI
		doc.CoverBlurHash = cover.BlurHash
	})
}

// SetProgress records the last chapter read. chapterCount itself is
// accepted and marks the document finished.
func (s *LibraryService) SetProgress(ctx context.Context, id int64, lastChapterRead int) (*domain.Document, error) {
	doc, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if lastChapterRead < 0 || lastChapterRead > doc.ChapterCount {
		return nil, domainerrors.Validationf("last chapter read must be between 0 and %d", doc.ChapterCount)
	}
	if err := s.store.SetProgress(ctx, id, lastChapterRead); err != nil {
		return nil, err
	}
	doc.ReadingProgress.LastChapterRead = lastChapterRead
	return doc, nil
}

// Delete removes a document. Deleting a missing document succeeds.
func (s *LibraryService) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteByID(ctx, id)
}

// Search runs a full-text query over one owner's library.
func (s *LibraryService) Search(ctx context.Context, params search.Params) (*search.Result, error) {
	ownerID, err := validation.OwnerID(params.OwnerID)
	if err != nil {
		return nil, err
	}
	if params.Category != "" && !domain.ValidCategory(params.Category) {
		return nil, domainerrors.Validationf("unknown category %q", params.Category)
	}
	if s.searcher == nil {
		return nil, domainerrors.NotFound("search is not enabled")
	}
	params.OwnerID = ownerID
	return s.searcher.Search(ctx, params)
}

// Reindex repairs stale chapter counts and repopulates the search index
// from the store. It runs at startup when the index was rebuilt.
func (s *LibraryService) Reindex(ctx context.Context) error {
	docs, err := s.store.ListAll(ctx)
	if err != nil {
		return err
	}

	repaired := 0
	for _, doc := range docs {
		if !doc.RefreshChapterCount() {
			continue
		}
		if err := s.store.Update(ctx, doc); err != nil {
			s.logger.Warn("failed to repair chapter count", "document_id", doc.ID, "error", err)
			continue
		}
		repaired++
	}
	if repaired > 0 {
		s.logger.Info("repaired stale chapter counts", "documents", repaired)
	}

	if s.searcher == nil {
		return nil
	}
	return s.searcher.Reindex(ctx, docs)
}

// modify applies fn to a fresh copy of the document and writes it back.
func (s *LibraryService) modify(ctx context.Context, id int64, fn func(*domain.Document)) (*domain.Document, error) {
	doc, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	fn(doc)
	doc.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func cleanAuthors(authors []string) []string {
	out := make([]string, 0, len(authors))
	for _, a := range authors {
		if a = strings.TrimSpace(a); a != "" && !slices.Contains(out, a) {
			out = append(out, a)
		}
	}
	return out
}

// gatewayMessage returns the gateway's own message for err, or fallback.
func gatewayMessage(err error, fallback string) string {
	if msg := gateway.MessageOf(err); msg != "" {
		return msg
	}
	return fallback
}
