package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/lutrinapp/lutrin/internal/config"
	"github.com/lutrinapp/lutrin/internal/logger"
	"github.com/lutrinapp/lutrin/internal/search"
	"github.com/lutrinapp/lutrin/internal/service"
)

// SearchIndexHandle wraps the search index with shutdown capability.
type SearchIndexHandle struct {
	*search.SearchIndex
	// Rebuilt is set when the index was created or its mapping changed.
	Rebuilt bool
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex opens the Bleve index and wires it to the store for
// automatic indexing.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	index, rebuilt, err := search.NewSearchIndex(search.Options{
		DataPath: filepath.Join(cfg.Storage.DataPath, "search"),
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	storeHandle.SetSearchIndexer(index)

	docCount, _ := index.DocumentCount()
	log.Info("Search index initialized", "documents", docCount, "rebuilt", rebuilt)

	return &SearchIndexHandle{SearchIndex: index, Rebuilt: rebuilt}, nil
}

// TriggerSearchReindexIfNeeded repopulates a fresh or empty index from the
// store in the background. Should be called after all services are wired.
func TriggerSearchReindexIfNeeded(i do.Injector) {
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	library := do.MustInvoke[*service.LibraryService](i)
	log := do.MustInvoke[*logger.Logger](i)

	docCount, _ := indexHandle.DocumentCount()
	if !indexHandle.Rebuilt && docCount > 0 {
		return
	}

	go func() {
		if err := library.Reindex(context.Background()); err != nil {
			log.Error("Search reindex failed", "error", err)
			return
		}
		count, _ := indexHandle.DocumentCount()
		log.Info("Search reindex completed", "documents", count)
	}()
}
