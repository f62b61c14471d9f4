// Package search maintains a full-text index of the catalog.
//
// The index is derived data: it can always be rebuilt from the store, and
// the catalog falls back to substring matching whenever it is unavailable.
package search

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/logger"
)

// mappingVersion changes whenever buildIndexMapping does; a mismatch on
// startup discards the on-disk index.
const mappingVersion = "1"

// Index wraps a bleve index of books. All methods are safe for concurrent use.
type Index struct {
	mu     sync.RWMutex // write-locked only while Rebuild swaps the index
	index  bleve.Index
	path   string
	logger *slog.Logger
}

// Options configures the index.
type Options struct {
	// DataPath is the directory holding the index. Empty keeps it in memory.
	DataPath string
	Logger   *slog.Logger
}

// Open opens the index under opts.DataPath, creating it when absent and
// recreating it when its mapping version is stale or it fails to open.
// needsReindex is true whenever the returned index starts empty.
func Open(opts Options) (idx *Index, needsReindex bool, err error) {
	log := logger.OrDiscard(opts.Logger)

	if opts.DataPath == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, false, fmt.Errorf("create in-memory index: %w", err)
		}
		return &Index{index: index, logger: log}, true, nil
	}

	if err := os.MkdirAll(opts.DataPath, 0o755); err != nil {
		return nil, false, fmt.Errorf("create search directory: %w", err)
	}
	indexPath := filepath.Join(opts.DataPath, "books.bleve")
	versionPath := filepath.Join(opts.DataPath, "books.version")

	var index bleve.Index
	if _, statErr := os.Stat(indexPath); statErr == nil {
		version, readErr := os.ReadFile(versionPath)
		switch {
		case readErr != nil || string(version) != mappingVersion:
			log.Info("Search mapping changed, rebuilding index",
				"old_version", string(version),
				"new_version", mappingVersion,
			)
		default:
			index, err = bleve.Open(indexPath)
			if err != nil {
				log.Warn("Failed to open search index, recreating", "path", indexPath, "error", err)
				index = nil
			}
		}
		if index == nil {
			if err := os.RemoveAll(indexPath); err != nil {
				return nil, false, fmt.Errorf("remove stale index: %w", err)
			}
		}
	}

	if index != nil {
		log.Info("Opened search index", "path", indexPath)
		return &Index{index: index, path: indexPath, logger: log}, false, nil
	}

	index, err = bleve.New(indexPath, buildIndexMapping())
	if err != nil {
		return nil, false, fmt.Errorf("create index: %w", err)
	}
	if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil {
		log.Warn("Failed to write search version file", "error", err)
	}
	log.Info("Created search index", "path", indexPath, "mapping_version", mappingVersion)
	return &Index{index: index, path: indexPath, logger: log}, true, nil
}

// Close releases the index.
func (s *Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexBook adds or replaces b.
func (s *Index) IndexBook(b *domain.Book) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Index(b.ID, NewBookDocument(b).toMap())
}

// IndexBooks adds or replaces books in batches.
func (s *Index) IndexBooks(books []*domain.Book) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(books)
}

func (s *Index) indexLocked(books []*domain.Book) error {
	const batchSize = 500

	for start := 0; start < len(books); start += batchSize {
		end := min(start+batchSize, len(books))
		batch := s.index.NewBatch()
		for _, b := range books[start:end] {
			if err := batch.Index(b.ID, NewBookDocument(b).toMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", b.ID, err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// DeleteBook removes a book. Deleting an unknown id is not an error.
func (s *Index) DeleteBook(id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(id)
}

// Count returns the number of indexed books.
func (s *Index) Count() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Rebuild replaces the index contents with books. Searches block while it runs.
func (s *Index) Rebuild(books []*domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}

	var (
		index bleve.Index
		err   error
	)
	if s.path == "" {
		index, err = bleve.NewMemOnly(buildIndexMapping())
	} else {
		if err := os.RemoveAll(s.path); err != nil {
			return fmt.Errorf("remove index: %w", err)
		}
		index, err = bleve.New(s.path, buildIndexMapping())
	}
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	s.index = index

	if err := s.indexLocked(books); err != nil {
		return err
	}
	s.logger.Info("Rebuilt search index", "books", len(books))
	return nil
}
