package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/libraryledger/ledger-server/internal/config"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/search"
	"github.com/libraryledger/ledger-server/internal/service"
)

// SearchIndexHandle wraps the search index with shutdown capability.
// Index is nil when search is disabled.
type SearchIndexHandle struct {
	*search.Index
	needsReindex bool
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	if h.Index == nil {
		return nil
	}
	return h.Close()
}

// ProvideSearchIndex provides the Bleve book index.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Search.Enabled {
		log.Info("Search index disabled, catalog search uses the store")
		return &SearchIndexHandle{}, nil
	}

	index, needsReindex, err := search.Open(search.Options{
		DataPath: cfg.Search.Path,
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	docCount, _ := index.Count()
	log.Info("Search index initialized", "documents", docCount, "path", cfg.Search.Path)

	return &SearchIndexHandle{Index: index, needsReindex: needsReindex}, nil
}

// TriggerSearchReindexIfNeeded rebuilds the index from the store in the
// background when it was opened empty.
func TriggerSearchReindexIfNeeded(i do.Injector) {
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	catalogService := do.MustInvoke[*service.CatalogService](i)
	log := do.MustInvoke[*logger.Logger](i)

	if indexHandle.Index == nil || !indexHandle.needsReindex {
		return
	}

	go func() {
		n, err := catalogService.Reindex(context.Background(), indexHandle.Rebuild)
		if err != nil {
			log.Error("Initial search reindex failed", "error", err)
			return
		}
		log.Info("Initial search reindex completed", "books", n)
	}()
}
