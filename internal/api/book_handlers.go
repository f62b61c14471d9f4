package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/libraryledger/ledger-server/internal/catalog"
	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/service"
	"github.com/libraryledger/ledger-server/internal/store"
)

func (s *Server) registerBookRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBooks",
		Method:      http.MethodGet,
		Path:        "/api/v1/books",
		Summary:     "Search the catalog",
		Description: "Lists books, optionally filtered by a case-insensitive match on title, author or ISBN",
		Tags:        []string{"Books"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBook",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}",
		Summary:     "Get book",
		Description: "Returns a book with its copy counts",
		Tags:        []string{"Books"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetBook)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createBook",
		Method:        http.MethodPost,
		Path:          "/api/v1/books",
		Summary:       "Add book",
		Description:   "Adds a book to the catalog with every copy available (staff only)",
		Tags:          []string{"Books"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleCreateBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateBook",
		Method:      http.MethodPatch,
		Path:        "/api/v1/books/{id}",
		Summary:     "Update book",
		Description: "Updates book fields. Changing total_copies keeps copies on loan accounted for (staff only).",
		Tags:        []string{"Books"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteBook",
		Method:      http.MethodDelete,
		Path:        "/api/v1/books/{id}",
		Summary:     "Delete book",
		Description: "Removes a book that has no copies on loan (staff only)",
		Tags:        []string{"Books"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteBook)

	huma.Register(s.api, huma.Operation{
		OperationID:  "uploadBookCover",
		Method:       http.MethodPut,
		Path:         "/api/v1/books/{id}/cover",
		Summary:      "Upload cover",
		Description:  "Stores a JPEG, PNG, GIF or WebP cover and computes its BlurHash (staff only)",
		Tags:         []string{"Books"},
		MaxBodyBytes: catalog.MaxCoverSize,
		Security:     []map[string][]string{{"bearer": {}}},
	}, s.handleUploadCover)
}

// === DTOs ===

// ListBooksInput contains search parameters.
type ListBooksInput struct {
	Query  string `query:"q" maxLength:"200" doc:"Text to match"`
	Field  string `query:"field" enum:"title,author,isbn,all" default:"all" doc:"Attribute to match against"`
	Limit  int    `query:"limit" minimum:"0" maximum:"500" doc:"Maximum results (0 for all)"`
	Offset int    `query:"offset" minimum:"0" doc:"Results to skip"`
}

// BooksOutput wraps a book list for Huma.
type BooksOutput struct {
	Body []*domain.Book
}

// BookOutput wraps a book for Huma.
type BookOutput struct {
	Body *domain.Book
}

// BookIDInput identifies a book.
type BookIDInput struct {
	ID string `path:"id" doc:"Book ID"`
}

// CreateBookRequest is the request body for adding a book.
type CreateBookRequest struct {
	Title         string `json:"title" minLength:"1" maxLength:"500" doc:"Title"`
	Author        string `json:"author" minLength:"1" maxLength:"300" doc:"Author"`
	ISBN          string `json:"isbn" minLength:"10" maxLength:"17" doc:"ISBN-10 or ISBN-13, hyphens allowed"`
	Description   string `json:"description,omitempty" doc:"Description; HTML is converted to Markdown"`
	CoverImageURL string `json:"cover_image_url,omitempty" doc:"External cover image URL"`
	TotalCopies   int    `json:"total_copies" minimum:"0" doc:"Number of copies owned"`
}

// CreateBookInput wraps the create request for Huma.
type CreateBookInput struct {
	Body CreateBookRequest
}

// UpdateBookInput wraps the update request for Huma.
type UpdateBookInput struct {
	ID   string `path:"id" doc:"Book ID"`
	Body service.BookPatch
}

// UploadCoverInput carries the raw image.
type UploadCoverInput struct {
	ID      string `path:"id" doc:"Book ID"`
	RawBody []byte `contentType:"image/*"`
}

// === Handlers ===

func (s *Server) handleListBooks(ctx context.Context, input *ListBooksInput) (*BooksOutput, error) {
	if _, err := GetPrincipal(ctx); err != nil {
		return nil, err
	}
	books, err := s.services.Catalog.SearchBooks(ctx, service.SearchRequest{
		Query:  input.Query,
		Field:  store.SearchField(input.Field),
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &BooksOutput{Body: books}, nil
}

func (s *Server) handleGetBook(ctx context.Context, input *BookIDInput) (*BookOutput, error) {
	if _, err := GetPrincipal(ctx); err != nil {
		return nil, err
	}
	book, err := s.services.Catalog.GetBook(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: book}, nil
}

func (s *Server) handleCreateBook(ctx context.Context, input *CreateBookInput) (*BookOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	in := input.Body
	book, err := s.services.Catalog.CreateBook(ctx, p, service.BookInput{
		Title:         in.Title,
		Author:        in.Author,
		ISBN:          in.ISBN,
		Description:   in.Description,
		CoverImageURL: in.CoverImageURL,
		TotalCopies:   in.TotalCopies,
	})
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: book}, nil
}

func (s *Server) handleUpdateBook(ctx context.Context, input *UpdateBookInput) (*BookOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	book, err := s.services.Catalog.UpdateBook(ctx, p, input.ID, input.Body)
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: book}, nil
}

func (s *Server) handleDeleteBook(ctx context.Context, input *BookIDInput) (*MessageOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.services.Catalog.DeleteBook(ctx, p, input.ID); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "book deleted"}}, nil
}

func (s *Server) handleUploadCover(ctx context.Context, input *UploadCoverInput) (*BookOutput, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	book, err := s.services.Catalog.SetCover(ctx, p, input.ID, input.RawBody)
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: book}, nil
}

// handleGetCover serves an uploaded cover. It sits outside huma so
// http.ServeContent can answer conditional and range requests.
func (s *Server) handleGetCover(w http.ResponseWriter, r *http.Request) {
	cover, err := s.services.Catalog.GetCover(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	sum := sha256.Sum256(cover.Data)
	w.Header().Set("Content-Type", cover.ContentType)
	w.Header().Set("Cache-Control", CacheOneDay)
	w.Header().Set("ETag", `"`+hex.EncodeToString(sum[:8])+`"`)
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(cover.Data))
}
