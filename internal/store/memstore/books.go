package memstore

import (
	"context"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/store"
)

func (v *view) CreateBook(ctx context.Context, book *domain.Book) error {
	return v.with(ctx, func(st *state) error {
		if _, ok := st.books[book.ID]; ok {
			return store.ErrAlreadyExists.WithMessage("book %s already exists", book.ID)
		}
		if !book.CopiesConsistent() {
			return store.ErrInvalidInput.WithMessage("book %s has inconsistent copy counts", book.ID)
		}
		st.books[book.ID] = copyBook(book)
		return nil
	})
}

func (v *view) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	var out *domain.Book
	err := v.with(ctx, func(st *state) error {
		b, ok := st.books[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyBook(b)
		return nil
	})
	return out, err
}

// findBook returns the matching book with the lowest id.
func (v *view) findBook(ctx context.Context, match func(*domain.Book) bool) (*domain.Book, error) {
	var out *domain.Book
	err := v.with(ctx, func(st *state) error {
		var found *domain.Book
		for _, b := range st.books {
			if match(b) && (found == nil || b.ID < found.ID) {
				found = b
			}
		}
		if found == nil {
			return store.ErrNotFound
		}
		out = copyBook(found)
		return nil
	})
	return out, err
}

func (v *view) GetBookByTitle(ctx context.Context, title string) (*domain.Book, error) {
	key := store.FoldKey(title)
	return v.findBook(ctx, func(b *domain.Book) bool { return store.FoldKey(b.Title) == key })
}

func (v *view) GetBookByISBN(ctx context.Context, isbn string) (*domain.Book, error) {
	key := store.FoldKey(isbn)
	return v.findBook(ctx, func(b *domain.Book) bool { return store.FoldKey(b.ISBN) == key })
}

func (v *view) UpdateBook(ctx context.Context, book *domain.Book) error {
	return v.with(ctx, func(st *state) error {
		if _, ok := st.books[book.ID]; !ok {
			return store.ErrNotFound
		}
		if !book.CopiesConsistent() {
			return store.ErrInvalidInput.WithMessage("book %s has inconsistent copy counts", book.ID)
		}
		st.books[book.ID] = copyBook(book)
		return nil
	})
}

func (v *view) DeleteBook(ctx context.Context, id string) error {
	return v.with(ctx, func(st *state) error {
		if _, ok := st.books[id]; !ok {
			return store.ErrNotFound
		}
		delete(st.books, id)
		return nil
	})
}

func (v *view) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	return v.SearchBooks(ctx, store.BookQuery{})
}

func (v *view) SearchBooks(ctx context.Context, q store.BookQuery) ([]*domain.Book, error) {
	var out []*domain.Book
	err := v.with(ctx, func(st *state) error {
		for _, b := range st.books {
			if q.Matches(b) {
				out = append(out, copyBook(b))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	store.SortBooks(out)
	return store.Page(out, q.Offset, q.Limit), nil
}

func (v *view) DecrementAvailable(ctx context.Context, id string) (*domain.Book, error) {
	var out *domain.Book
	err := v.with(ctx, func(st *state) error {
		b, ok := st.books[id]
		if !ok {
			return store.ErrNotFound
		}
		if b.AvailableCopies <= 0 {
			return store.ErrNoCopiesAvailable
		}
		b.AvailableCopies--
		out = copyBook(b)
		return nil
	})
	return out, err
}

func (v *view) IncrementAvailable(ctx context.Context, id string) (*domain.Book, error) {
	var out *domain.Book
	err := v.with(ctx, func(st *state) error {
		b, ok := st.books[id]
		if !ok {
			return store.ErrNotFound
		}
		if b.AvailableCopies < b.TotalCopies {
			b.AvailableCopies++
		}
		out = copyBook(b)
		return nil
	})
	return out, err
}
