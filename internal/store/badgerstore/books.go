package badgerstore

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/store"
)

func (r *repos) CreateBook(ctx context.Context, book *domain.Book) error {
	if !book.CopiesConsistent() {
		return store.ErrInvalidInput.WithMessage("book %s has inconsistent copy counts", book.ID)
	}
	return r.write(ctx, func(txn *badger.Txn) error {
		return r.s.books.create(txn, book)
	})
}

func (r *repos) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	var out *domain.Book
	err := r.view(ctx, func(txn *badger.Txn) (err error) {
		out, err = r.s.books.get(txn, id)
		return err
	})
	return out, err
}

func (r *repos) GetBookByTitle(ctx context.Context, title string) (*domain.Book, error) {
	return r.bookByIndex(ctx, "title", store.FoldKey(title))
}

func (r *repos) GetBookByISBN(ctx context.Context, isbn string) (*domain.Book, error) {
	return r.bookByIndex(ctx, "isbn", store.FoldKey(isbn))
}

func (r *repos) bookByIndex(ctx context.Context, name, value string) (*domain.Book, error) {
	var out *domain.Book
	err := r.view(ctx, func(txn *badger.Txn) (err error) {
		out, err = r.s.books.getByIndex(txn, name, value)
		return err
	})
	return out, err
}

func (r *repos) UpdateBook(ctx context.Context, book *domain.Book) error {
	if !book.CopiesConsistent() {
		return store.ErrInvalidInput.WithMessage("book %s has inconsistent copy counts", book.ID)
	}
	return r.write(ctx, func(txn *badger.Txn) error {
		return r.s.books.update(txn, book)
	})
}

func (r *repos) DeleteBook(ctx context.Context, id string) error {
	return r.write(ctx, func(txn *badger.Txn) error {
		return r.s.books.delete(txn, id)
	})
}

func (r *repos) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	return r.SearchBooks(ctx, store.BookQuery{})
}

// SearchBooks scans the catalog; Badger has no substring index.
func (r *repos) SearchBooks(ctx context.Context, q store.BookQuery) ([]*domain.Book, error) {
	var books []*domain.Book
	err := r.view(ctx, func(txn *badger.Txn) error {
		all, err := r.s.books.all(txn)
		if err != nil {
			return err
		}
		for _, b := range all {
			if q.Matches(b) {
				books = append(books, b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	store.SortBooks(books)
	return store.Page(books, q.Offset, q.Limit), nil
}

// DecrementAvailable reads and writes the book in one transaction. A
// concurrent decrement of the same book conflicts at commit and is replayed
// against the newer count.
func (r *repos) DecrementAvailable(ctx context.Context, id string) (*domain.Book, error) {
	return r.adjustCopies(ctx, id, func(b *domain.Book) error {
		if b.AvailableCopies <= 0 {
			return store.ErrNoCopiesAvailable
		}
		b.AvailableCopies--
		return nil
	})
}

func (r *repos) IncrementAvailable(ctx context.Context, id string) (*domain.Book, error) {
	return r.adjustCopies(ctx, id, func(b *domain.Book) error {
		if b.AvailableCopies < b.TotalCopies {
			b.AvailableCopies++
		}
		return nil
	})
}

func (r *repos) adjustCopies(ctx context.Context, id string, adjust func(*domain.Book) error) (*domain.Book, error) {
	var out *domain.Book
	err := r.write(ctx, func(txn *badger.Txn) error {
		b, err := r.s.books.get(txn, id)
		if err != nil {
			return err
		}
		if err := adjust(b); err != nil {
			return err
		}
		b.UpdatedAt = time.Now().UTC()
		if err := r.s.books.update(txn, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}
