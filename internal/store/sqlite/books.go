package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/store"
)

const bookColumns = `id, title, author, isbn, description, cover_image_url, cover_blur_hash,
	total_copies, available_copies, created_at, updated_at`

// CreateBook inserts a new catalog entry.
func (r *repos) CreateBook(ctx context.Context, book *domain.Book) error {
	if !book.CopiesConsistent() {
		return store.ErrInvalidInput.WithMessage("book %s has inconsistent copy counts", book.ID)
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO books (id, title, title_key, author, author_key, isbn, isbn_key, description,
			cover_image_url, cover_blur_hash, total_copies, available_copies, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		book.ID,
		book.Title, store.FoldKey(book.Title),
		book.Author, store.FoldKey(book.Author),
		book.ISBN, store.FoldKey(book.ISBN),
		book.Description,
		nullString(book.CoverImageURL),
		nullString(book.CoverBlurHash),
		book.TotalCopies,
		book.AvailableCopies,
		formatTime(book.CreatedAt),
		formatTime(book.UpdatedAt),
	)
	if err != nil {
		return mapError(fmt.Errorf("insert book: %w", err))
	}
	return nil
}

// GetBook retrieves a book by ID.
func (r *repos) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	return r.getBookWhere(ctx, "id = ?", id)
}

// GetBookByTitle retrieves a book by case-folded title.
func (r *repos) GetBookByTitle(ctx context.Context, title string) (*domain.Book, error) {
	return r.getBookWhere(ctx, "title_key = ?", store.FoldKey(title))
}

// GetBookByISBN retrieves a book by ISBN.
func (r *repos) GetBookByISBN(ctx context.Context, isbn string) (*domain.Book, error) {
	return r.getBookWhere(ctx, "isbn_key = ?", store.FoldKey(isbn))
}

func (r *repos) getBookWhere(ctx context.Context, where string, arg any) (*domain.Book, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE `+where+` ORDER BY title_key, id LIMIT 1`, arg)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

// UpdateBook replaces every mutable column of an existing book.
func (r *repos) UpdateBook(ctx context.Context, book *domain.Book) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE books SET
			title = ?, title_key = ?, author = ?, author_key = ?, isbn = ?, isbn_key = ?,
			description = ?, cover_image_url = ?, cover_blur_hash = ?,
			total_copies = ?, available_copies = ?, updated_at = ?
		WHERE id = ?`,
		book.Title, store.FoldKey(book.Title),
		book.Author, store.FoldKey(book.Author),
		book.ISBN, store.FoldKey(book.ISBN),
		book.Description,
		nullString(book.CoverImageURL),
		nullString(book.CoverBlurHash),
		book.TotalCopies,
		book.AvailableCopies,
		formatTime(book.UpdatedAt),
		book.ID,
	)
	return expectOne(res, err)
}

// DeleteBook removes a book. Loans keep their title snapshot.
func (r *repos) DeleteBook(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	return expectOne(res, err)
}

// ListBooks returns the whole catalog ordered by title.
func (r *repos) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	return r.SearchBooks(ctx, store.BookQuery{})
}

// SearchBooks runs a case-insensitive substring search over the folded key columns.
func (r *repos) SearchBooks(ctx context.Context, q store.BookQuery) ([]*domain.Book, error) {
	var (
		clauses []string
		args    []any
	)
	if strings.TrimSpace(q.Text) != "" {
		pattern := likePattern(q.Text)
		switch q.Field {
		case store.SearchTitle:
			clauses = append(clauses, `title_key LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		case store.SearchAuthor:
			clauses = append(clauses, `author_key LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		case store.SearchISBN:
			clauses = append(clauses, `isbn_key LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		default:
			clauses = append(clauses, `(title_key LIKE ? ESCAPE '\' OR author_key LIKE ? ESCAPE '\' OR isbn_key LIKE ? ESCAPE '\')`)
			args = append(args, pattern, pattern, pattern)
		}
	}

	query := `SELECT ` + bookColumns + ` FROM books`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY title_key, id`
	if q.Limit > 0 || q.Offset > 0 {
		limit := q.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, q.Offset)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	defer rows.Close()

	var books []*domain.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// DecrementAvailable takes one copy with a guarded update.
// The guard makes the check and the write a single statement.
func (r *repos) DecrementAvailable(ctx context.Context, id string) (*domain.Book, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE books SET available_copies = available_copies - 1, updated_at = ?
		WHERE id = ? AND available_copies > 0`,
		formatTime(time.Now()), id)
	if err != nil {
		return nil, mapError(fmt.Errorf("decrement copies: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if _, err := r.GetBook(ctx, id); err != nil {
			return nil, err
		}
		return nil, store.ErrNoCopiesAvailable
	}
	return r.GetBook(ctx, id)
}

// IncrementAvailable puts one copy back, clamped at total_copies.
func (r *repos) IncrementAvailable(ctx context.Context, id string) (*domain.Book, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE books SET available_copies = MIN(available_copies + 1, total_copies), updated_at = ?
		WHERE id = ?`,
		formatTime(time.Now()), id)
	if err := expectOne(res, err); err != nil {
		return nil, err
	}
	return r.GetBook(ctx, id)
}

// scanBook scans a book from a row or rows.
func scanBook(scanner interface{ Scan(...any) error }) (*domain.Book, error) {
	var (
		book                 domain.Book
		coverURL, blurHash   sql.NullString
		createdAt, updatedAt string
	)
	err := scanner.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.ISBN,
		&book.Description,
		&coverURL,
		&blurHash,
		&book.TotalCopies,
		&book.AvailableCopies,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	book.CoverImageURL = coverURL.String
	book.CoverBlurHash = blurHash.String

	if book.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if book.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &book, nil
}
