package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/lutrinapp/lutrin/internal/domain"
)

// SearchIndex wraps a Bleve index of library documents.
//
// Thread safety: All public methods are safe for concurrent use.
// The mutex keeps searches off an index that is being closed.
type SearchIndex struct {
	index  bleve.Index
	logger *slog.Logger
	mu     sync.RWMutex
}

// Options configures the search index.
type Options struct {
	DataPath string       // Directory for index storage
	Logger   *slog.Logger // Logger for operations (uses discard if nil)
}

// mappingVersion is incremented whenever the index mapping changes.
// A mismatch triggers a rebuild on startup; callers then Reindex.
const mappingVersion = "lutrin-1"

// NewSearchIndex creates or opens a search index. An existing index that is
// corrupted or has an outdated mapping is removed and recreated empty.
// Rebuilt reports whether the caller should repopulate it.
func NewSearchIndex(opts Options) (idx *SearchIndex, rebuilt bool, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(opts.DataPath, 0o755); err != nil {
		return nil, false, fmt.Errorf("create search dir: %w", err)
	}
	indexPath := filepath.Join(opts.DataPath, "search.bleve")
	versionPath := filepath.Join(opts.DataPath, "search.version")

	var index bleve.Index
	needsRebuild := false

	_, statErr := os.Stat(indexPath)
	indexExists := statErr == nil

	if indexExists {
		existing, readErr := os.ReadFile(versionPath)
		switch {
		case readErr != nil:
			logger.Info("search index has no version file, will rebuild", "new_version", mappingVersion)
			needsRebuild = true
		case string(existing) != mappingVersion:
			logger.Info("search index mapping version changed, will rebuild",
				"old_version", string(existing),
				"new_version", mappingVersion,
			)
			needsRebuild = true
		}
	}

	if !needsRebuild && indexExists {
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Warn("failed to open existing index, will recreate", "path", indexPath, "error", err)
			needsRebuild = true
		}
	}

	if needsRebuild {
		if removeErr := os.RemoveAll(indexPath); removeErr != nil {
			return nil, false, fmt.Errorf("remove old index: %w", removeErr)
		}
		index = nil
	}

	if index == nil {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, false, fmt.Errorf("create index: %w", err)
		}
		if writeErr := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); writeErr != nil {
			logger.Warn("failed to write search version file", "error", writeErr)
		}
		logger.Info("created new search index", "path", indexPath, "mapping_version", mappingVersion)
		rebuilt = true
	} else {
		logger.Info("opened existing search index", "path", indexPath)
	}

	return &SearchIndex{
		index:  index,
		logger: logger,
	}, rebuilt, nil
}

// Close closes the index and releases resources.
func (s *SearchIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexDocument adds or replaces a library document.
func (s *SearchIndex) IndexDocument(_ context.Context, doc *domain.Document) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sd := NewSearchDocument(doc)
	return s.index.Index(sd.ID, sd.ToMap())
}

// DeleteDocument removes a document. Unknown ids are ignored.
func (s *SearchIndex) DeleteDocument(_ context.Context, id int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(DocumentID(id))
}

// Reindex indexes docs in batches.
// For large libraries documents are committed in chunks to bound memory
// while the full text of every book is analyzed.
func (s *SearchIndex) Reindex(ctx context.Context, docs []*domain.Document) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const batchSize = 100

	for i := 0; i < len(docs); i += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(i+batchSize, len(docs))

		batch := s.index.NewBatch()
		for _, doc := range docs[i:end] {
			sd := NewSearchDocument(doc)
			if err := batch.Index(sd.ID, sd.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", sd.ID, err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}

	s.logger.Info("search index populated", "documents", len(docs))
	return nil
}

// DocumentCount returns the total number of indexed documents.
func (s *SearchIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}
