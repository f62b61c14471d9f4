package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/libraryledger/ledger-server/internal/catalog"
	"github.com/libraryledger/ledger-server/internal/domain"
	domainerrors "github.com/libraryledger/ledger-server/internal/errors"
	"github.com/libraryledger/ledger-server/internal/id"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/store"
)

// indexSearchLimit bounds how many ranked ids the full-text index returns.
const indexSearchLimit = 200

// CatalogService manages books and catalog search.
type CatalogService struct {
	store  store.Store
	index  BookIndex
	covers *catalog.CoverStore
	events Events
	logger *slog.Logger
	now    func() time.Time
}

// NewCatalogService creates the catalog service. index and covers may be
// nil, which disables full-text ranking and cover uploads.
func NewCatalogService(st store.Store, index BookIndex, covers *catalog.CoverStore, events Events, log *slog.Logger) *CatalogService {
	if events == nil {
		events = NoopEvents{}
	}
	return &CatalogService{
		store:  st,
		index:  index,
		covers: covers,
		events: events,
		logger: logger.OrDiscard(log),
		now:    systemNow,
	}
}

// BookInput is the payload for creating a book.
type BookInput struct {
	Title         string `json:"title" validate:"required,notblank,max=500"`
	Author        string `json:"author" validate:"required,notblank,max=300"`
	ISBN          string `json:"isbn" validate:"required,isbn"`
	Description   string `json:"description" validate:"max=100000"`
	CoverImageURL string `json:"cover_image_url" validate:"omitempty,http_url"`
	TotalCopies   int    `json:"total_copies" validate:"gte=0,lte=100000"`
}

// BookPatch updates selected fields; nil fields are left unchanged.
type BookPatch struct {
	Title         *string `json:"title,omitempty" validate:"omitempty,notblank,max=500"`
	Author        *string `json:"author,omitempty" validate:"omitempty,notblank,max=300"`
	ISBN          *string `json:"isbn,omitempty" validate:"omitempty,isbn"`
	Description   *string `json:"description,omitempty" validate:"omitempty,max=100000"`
	CoverImageURL *string `json:"cover_image_url,omitempty" validate:"omitempty,http_url"`
	TotalCopies   *int    `json:"total_copies,omitempty" validate:"omitempty,gte=0,lte=100000"`
}

// SearchRequest is a catalog search.
type SearchRequest struct {
	Query  string
	Field  store.SearchField
	Limit  int
	Offset int
}

// GetBook returns a book by id.
func (s *CatalogService) GetBook(ctx context.Context, bookID string) (*domain.Book, error) {
	b, err := s.store.Books().GetBook(ctx, bookID)
	if err != nil {
		return nil, mapNotFound(err, "book %q not found", bookID)
	}
	return b, nil
}

// FindBook resolves a book by id, ISBN or exact title.
func (s *CatalogService) FindBook(ctx context.Context, ref string) (*domain.Book, error) {
	return findBook(ctx, s.store, ref)
}

// SearchBooks matches the query against title, author or ISBN. For the
// "all" field the full-text index ranks results first; substring matches
// the index missed follow in title order.
func (s *CatalogService) SearchBooks(ctx context.Context, req SearchRequest) ([]*domain.Book, error) {
	if req.Field == "" {
		req.Field = store.SearchAll
	}
	if !req.Field.Valid() {
		return nil, domainerrors.Validation("unknown search field %q", req.Field)
	}
	if req.Limit < 0 || req.Offset < 0 {
		return nil, domainerrors.Validation("limit and offset must not be negative")
	}

	text := strings.TrimSpace(req.Query)
	if text == "" || req.Field != store.SearchAll || s.index == nil {
		return s.store.Books().SearchBooks(ctx, store.BookQuery{
			Text: text, Field: req.Field, Limit: req.Limit, Offset: req.Offset,
		})
	}

	substring, err := s.store.Books().SearchBooks(ctx, store.BookQuery{Text: text, Field: store.SearchAll})
	if err != nil {
		return nil, err
	}
	ids, err := s.index.IDs(ctx, text, indexSearchLimit)
	if err != nil {
		s.logger.Warn("search index query failed, using substring match", "error", err)
		return store.Page(substring, req.Offset, req.Limit), nil
	}

	ranked := make([]*domain.Book, 0, len(ids)+len(substring))
	seen := make(map[string]bool, len(ids))
	for _, bookID := range ids {
		b, err := s.store.Books().GetBook(ctx, bookID)
		if errors.Is(err, store.ErrNotFound) {
			continue // stale index entry
		} else if err != nil {
			return nil, err
		}
		ranked = append(ranked, b)
		seen[b.ID] = true
	}
	for _, b := range substring {
		if !seen[b.ID] {
			ranked = append(ranked, b)
		}
	}
	return store.Page(ranked, req.Offset, req.Limit), nil
}

// CreateBook adds a book with all copies available.
func (s *CatalogService) CreateBook(ctx context.Context, actor *domain.Principal, in BookInput) (*domain.Book, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := validate.Validate(in); err != nil {
		return nil, err
	}
	if in.TotalCopies == 0 {
		in.TotalCopies = 1
	}

	bookID, err := id.Generate(id.Book)
	if err != nil {
		return nil, err
	}
	now := s.now()
	book := &domain.Book{
		ID:              bookID,
		Title:           strings.TrimSpace(in.Title),
		Author:          strings.TrimSpace(in.Author),
		ISBN:            strings.TrimSpace(in.ISBN),
		Description:     catalog.NormalizeDescription(in.Description),
		CoverImageURL:   strings.TrimSpace(in.CoverImageURL),
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.store.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		if err := s.checkISBNFree(ctx, tx, book.ISBN, ""); err != nil {
			return err
		}
		return mapStoreError(tx.Books().CreateBook(ctx, book))
	})
	if err != nil {
		return nil, err
	}

	s.indexBook(book)
	s.events.BookCreated(book)
	s.logger.Info("book created", "book_id", book.ID, "title", book.Title, "by", actor.ID)
	return book, nil
}

func (s *CatalogService) checkISBNFree(ctx context.Context, tx store.Repositories, isbn, exceptID string) error {
	existing, err := tx.Books().GetBookByISBN(ctx, isbn)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != exceptID:
		return domainerrors.Conflict("ISBN %s is already in the catalog", isbn).
			WithDetails(map[string]string{"book_id": existing.ID})
	}
	return nil
}

// UpdateBook applies patch. Lowering the total below the copies on loan is rejected.
func (s *CatalogService) UpdateBook(ctx context.Context, actor *domain.Principal, bookID string, patch BookPatch) (*domain.Book, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := validate.Validate(patch); err != nil {
		return nil, err
	}

	var book *domain.Book
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		book, err = tx.Books().GetBook(ctx, bookID)
		if err != nil {
			return mapNotFound(err, "book %q not found", bookID)
		}
		if patch.Title != nil {
			book.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Author != nil {
			book.Author = strings.TrimSpace(*patch.Author)
		}
		if patch.ISBN != nil {
			isbn := strings.TrimSpace(*patch.ISBN)
			if err := s.checkISBNFree(ctx, tx, isbn, book.ID); err != nil {
				return err
			}
			book.ISBN = isbn
		}
		if patch.Description != nil {
			book.Description = catalog.NormalizeDescription(*patch.Description)
		}
		if patch.CoverImageURL != nil {
			book.CoverImageURL = strings.TrimSpace(*patch.CoverImageURL)
			book.CoverBlurHash = ""
		}
		if patch.TotalCopies != nil && !book.Resize(*patch.TotalCopies) {
			return domainerrors.ValidationWithDetails(
				"total copies cannot be lower than the copies on loan",
				map[string]string{"total_copies": fmt.Sprintf("must be at least %d", book.CopiesOnLoan())},
			)
		}
		book.UpdatedAt = s.now()
		return mapStoreError(tx.Books().UpdateBook(ctx, book))
	})
	if err != nil {
		return nil, err
	}

	s.indexBook(book)
	s.events.BookUpdated(book)
	return book, nil
}

// DeleteBook removes a book that has no copies on loan.
func (s *CatalogService) DeleteBook(ctx context.Context, actor *domain.Principal, bookID string) error {
	if err := requireStaff(actor); err != nil {
		return err
	}

	var book *domain.Book
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		book, err = tx.Books().GetBook(ctx, bookID)
		if err != nil {
			return mapNotFound(err, "book %q not found", bookID)
		}
		outstanding, err := tx.Loans().ListLoans(ctx, store.LoanFilter{BookID: bookID, OutstandingOnly: true})
		if err != nil {
			return err
		}
		if len(outstanding) > 0 || book.CopiesOnLoan() > 0 {
			return domainerrors.Conflict("%q has copies on loan", book.Title)
		}
		return mapNotFound(tx.Books().DeleteBook(ctx, bookID), "book %q not found", bookID)
	})
	if err != nil {
		return err
	}

	if s.index != nil {
		if err := s.index.DeleteBook(bookID); err != nil {
			s.logger.Warn("failed to remove book from search index", "book_id", bookID, "error", err)
		}
	}
	if s.covers != nil {
		s.covers.Delete(bookID)
	}
	s.events.BookDeleted(book)
	s.logger.Info("book deleted", "book_id", bookID, "by", actor.ID)
	return nil
}

// SetCover stores an uploaded cover and records its BlurHash placeholder.
func (s *CatalogService) SetCover(ctx context.Context, actor *domain.Principal, bookID string, data []byte) (*domain.Book, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if s.covers == nil {
		return nil, domainerrors.Validation("cover uploads are disabled")
	}
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	hash, err := s.covers.Save(bookID, data)
	switch {
	case errors.Is(err, catalog.ErrCoverEmpty),
		errors.Is(err, catalog.ErrCoverTooLarge),
		errors.Is(err, catalog.ErrCoverFormat):
		return nil, domainerrors.Validation("%s", err.Error())
	case err != nil:
		return nil, err
	}

	var book *domain.Book
	err = s.store.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		book, err = tx.Books().GetBook(ctx, bookID)
		if err != nil {
			return mapNotFound(err, "book %q not found", bookID)
		}
		book.CoverImageURL = catalog.CoverURL(bookID)
		book.CoverBlurHash = hash
		book.UpdatedAt = s.now()
		return tx.Books().UpdateBook(ctx, book)
	})
	if err != nil {
		return nil, err
	}

	s.events.BookUpdated(book)
	return book, nil
}

// GetCover returns a book's uploaded cover image.
func (s *CatalogService) GetCover(ctx context.Context, bookID string) (*catalog.Cover, error) {
	if s.covers == nil {
		return nil, domainerrors.NotFound("cover not found")
	}
	cover, err := s.covers.Get(bookID)
	if errors.Is(err, catalog.ErrCoverNotFound) {
		return nil, domainerrors.NotFound("book %q has no uploaded cover", bookID)
	}
	return cover, err
}

// ImportBook implements catalog.Importer. Entries are matched on ISBN; an
// existing book only has its copy count and missing fields updated.
func (s *CatalogService) ImportBook(ctx context.Context, mb catalog.ManifestBook) (catalog.ImportAction, error) {
	in := BookInput{
		Title:         mb.Title,
		Author:        mb.Author,
		ISBN:          mb.ISBN,
		Description:   mb.Description,
		CoverImageURL: mb.CoverImageURL,
		TotalCopies:   mb.TotalCopies,
	}
	if err := validate.Validate(in); err != nil {
		return "", err
	}

	existing, err := s.store.Books().GetBookByISBN(ctx, in.ISBN)
	if errors.Is(err, store.ErrNotFound) {
		if _, err := s.CreateBook(ctx, SystemActor, in); err != nil {
			return "", err
		}
		return catalog.ImportCreated, nil
	} else if err != nil {
		return "", err
	}

	var patch BookPatch
	changed := false
	if in.TotalCopies != existing.TotalCopies {
		patch.TotalCopies = &in.TotalCopies
		changed = true
	}
	if existing.Description == "" && in.Description != "" {
		patch.Description = &in.Description
		changed = true
	}
	if existing.CoverImageURL == "" && in.CoverImageURL != "" {
		patch.CoverImageURL = &in.CoverImageURL
		changed = true
	}
	if !changed {
		return catalog.ImportSkipped, nil
	}
	if _, err := s.UpdateBook(ctx, SystemActor, existing.ID, patch); err != nil {
		return "", err
	}
	return catalog.ImportUpdated, nil
}

// Reindex rebuilds the full-text index from the store.
func (s *CatalogService) Reindex(ctx context.Context, rebuild func([]*domain.Book) error) (int, error) {
	books, err := s.store.Books().ListBooks(ctx)
	if err != nil {
		return 0, err
	}
	if err := rebuild(books); err != nil {
		return 0, err
	}
	return len(books), nil
}

func (s *CatalogService) indexBook(b *domain.Book) {
	if s.index == nil {
		return
	}
	if err := s.index.IndexBook(b); err != nil {
		s.logger.Warn("failed to index book", "book_id", b.ID, "error", err)
	}
}

var _ catalog.Importer = (*CatalogService)(nil)
