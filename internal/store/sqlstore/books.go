package sqlstore

import (
	"context"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/store"
)

const tableBooks = "books"

var bookColumns = []any{
	"id", "title", "author", "isbn", "description", "cover_image_url", "cover_blur_hash",
	"total_copies", "available_copies", "created_at", "updated_at",
}

func bookRecord(b *domain.Book) goqu.Record {
	return goqu.Record{
		"title":            b.Title,
		"title_key":        store.FoldKey(b.Title),
		"author":           b.Author,
		"author_key":       store.FoldKey(b.Author),
		"isbn":             b.ISBN,
		"isbn_key":         store.FoldKey(b.ISBN),
		"description":      b.Description,
		"cover_image_url":  nullable(b.CoverImageURL),
		"cover_blur_hash":  nullable(b.CoverBlurHash),
		"total_copies":     b.TotalCopies,
		"available_copies": b.AvailableCopies,
		"updated_at":       b.UpdatedAt.UTC(),
	}
}

func (r *repos) CreateBook(ctx context.Context, book *domain.Book) error {
	if !book.CopiesConsistent() {
		return store.ErrInvalidInput.WithMessage("book %s has inconsistent copy counts", book.ID)
	}
	rec := bookRecord(book)
	rec["id"] = book.ID
	rec["created_at"] = book.CreatedAt.UTC()
	_, err := r.exec(ctx, r.s.dialect.Insert(tableBooks).Prepared(true).Rows(rec))
	return err
}

func (r *repos) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	return r.bookWhere(ctx, goqu.C("id").Eq(id))
}

func (r *repos) GetBookByTitle(ctx context.Context, title string) (*domain.Book, error) {
	return r.bookWhere(ctx, goqu.C("title_key").Eq(store.FoldKey(title)))
}

func (r *repos) GetBookByISBN(ctx context.Context, isbn string) (*domain.Book, error) {
	return r.bookWhere(ctx, goqu.C("isbn_key").Eq(store.FoldKey(isbn)))
}

func (r *repos) bookWhere(ctx context.Context, cond exp.Expression) (*domain.Book, error) {
	var book *domain.Book
	ds := r.s.dialect.From(tableBooks).Prepared(true).Select(bookColumns...).
		Where(cond).Order(r.s.titleOrder(), goqu.C("id").Asc()).Limit(1)
	err := r.queryOne(ctx, ds, func(rows dbRows) (err error) {
		book, err = scanBook(rows)
		return err
	})
	return book, err
}

func (r *repos) UpdateBook(ctx context.Context, book *domain.Book) error {
	if !book.CopiesConsistent() {
		return store.ErrInvalidInput.WithMessage("book %s has inconsistent copy counts", book.ID)
	}
	return r.execOne(ctx, r.s.dialect.Update(tableBooks).Prepared(true).
		Set(bookRecord(book)).Where(goqu.C("id").Eq(book.ID)))
}

func (r *repos) DeleteBook(ctx context.Context, id string) error {
	return r.execOne(ctx, r.s.dialect.Delete(tableBooks).Prepared(true).Where(goqu.C("id").Eq(id)))
}

func (r *repos) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	return r.SearchBooks(ctx, store.BookQuery{})
}

func (r *repos) SearchBooks(ctx context.Context, q store.BookQuery) ([]*domain.Book, error) {
	ds := r.s.dialect.From(tableBooks).Prepared(true).Select(bookColumns...).
		Order(r.s.titleOrder(), goqu.C("id").Asc())

	if strings.TrimSpace(q.Text) != "" {
		pattern := likePattern(q.Text)
		switch q.Field {
		case store.SearchTitle:
			ds = ds.Where(goqu.C("title_key").Like(pattern))
		case store.SearchAuthor:
			ds = ds.Where(goqu.C("author_key").Like(pattern))
		case store.SearchISBN:
			ds = ds.Where(goqu.C("isbn_key").Like(pattern))
		default:
			ds = ds.Where(goqu.Or(
				goqu.C("title_key").Like(pattern),
				goqu.C("author_key").Like(pattern),
				goqu.C("isbn_key").Like(pattern),
			))
		}
	}

	// MySQL rejects OFFSET without LIMIT, so an unbounded page is cut in Go.
	paged := q.Limit > 0
	if paged {
		ds = ds.Limit(uint(q.Limit)).Offset(uint(max(q.Offset, 0)))
	}

	var books []*domain.Book
	err := r.query(ctx, ds, func(rows dbRows) error {
		b, err := scanBook(rows)
		if err != nil {
			return err
		}
		books = append(books, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !paged {
		books = store.Page(books, q.Offset, 0)
	}
	return books, nil
}

// DecrementAvailable is a guarded update; the row lock serializes concurrent
// callers and the predicate is re-checked against the committed count.
func (r *repos) DecrementAvailable(ctx context.Context, id string) (*domain.Book, error) {
	res, err := r.exec(ctx, r.s.dialect.Update(tableBooks).Prepared(true).
		Set(goqu.Record{
			"available_copies": goqu.L("available_copies - 1"),
			"updated_at":       time.Now().UTC(),
		}).
		Where(goqu.C("id").Eq(id), goqu.C("available_copies").Gt(0)))
	if err != nil {
		return nil, err
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

func (r *repos) IncrementAvailable(ctx context.Context, id string) (*domain.Book, error) {
	err := r.execOne(ctx, r.s.dialect.Update(tableBooks).Prepared(true).
		Set(goqu.Record{
			"available_copies": goqu.L("LEAST(available_copies + 1, total_copies)"),
			"updated_at":       time.Now().UTC(),
		}).
		Where(goqu.C("id").Eq(id)))
	if err != nil {
		return nil, err
	}
	return r.GetBook(ctx, id)
}

// titleOrder sorts by folded title bytewise on both servers.
func (s *Store) titleOrder() exp.OrderedExpression {
	if s.name == DialectPostgres {
		return goqu.L(`"title_key" COLLATE "C"`).Asc()
	}
	return goqu.C("title_key").Asc()
}

func scanBook(rows dbRows) (*domain.Book, error) {
	var (
		b                  domain.Book
		coverURL, blurHash *string
	)
	err := rows.Scan(
		&b.ID,
		&b.Title,
		&b.Author,
		&b.ISBN,
		&b.Description,
		&coverURL,
		&blurHash,
		&b.TotalCopies,
		&b.AvailableCopies,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.CoverImageURL = deref(coverURL)
	b.CoverBlurHash = deref(blurHash)
	return &b, nil
}

// likePattern matches needle anywhere, escaping LIKE wildcards with the
// default backslash escape.
func likePattern(needle string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(store.FoldKey(needle)) + "%"
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
