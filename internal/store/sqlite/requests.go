package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/store"
)

const (
	bookRequestColumns = `id, book_id, book_title, student_id, student_name, request_date,
	status, rejection_reason, issued_book_id, decided_at, decided_by`

	returnRequestColumns = `id, issued_book_id, student_id, student_name, book_title, request_date,
	status, fine_amount, decided_at, decided_by`
)

// CreateBookRequest inserts a borrow request. The partial unique index on
// pending rows rejects a second pending request for the same student and book.
func (r *repos) CreateBookRequest(ctx context.Context, req *domain.BookRequest) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO book_requests (`+bookRequestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.BookID,
		req.BookTitle,
		req.StudentID,
		req.StudentName,
		formatTime(req.RequestDate),
		string(req.Status),
		nullString(string(req.RejectionReason)),
		nullString(req.IssuedBookID),
		nullTimeString(req.DecidedAt),
		nullString(req.DecidedBy),
	)
	if err != nil {
		return mapError(fmt.Errorf("insert book request: %w", err))
	}
	return nil
}

func (r *repos) GetBookRequest(ctx context.Context, id string) (*domain.BookRequest, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+bookRequestColumns+` FROM book_requests WHERE id = ?`, id)
	req, err := scanBookRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book request: %w", err)
	}
	return req, nil
}

func (r *repos) UpdateBookRequest(ctx context.Context, req *domain.BookRequest) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE book_requests SET status = ?, rejection_reason = ?, issued_book_id = ?,
			decided_at = ?, decided_by = ?
		WHERE id = ?`,
		string(req.Status),
		nullString(string(req.RejectionReason)),
		nullString(req.IssuedBookID),
		nullTimeString(req.DecidedAt),
		nullString(req.DecidedBy),
		req.ID,
	)
	return expectOne(res, err)
}

func (r *repos) ListBookRequests(ctx context.Context, f store.RequestFilter) ([]*domain.BookRequest, error) {
	where, args := requestWhere(f)
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+bookRequestColumns+` FROM book_requests`+where+` ORDER BY request_date, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list book requests: %w", err)
	}
	defer rows.Close()

	var out []*domain.BookRequest
	for rows.Next() {
		req, err := scanBookRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// CreateReturnRequest inserts a return request; at most one may be pending per loan.
func (r *repos) CreateReturnRequest(ctx context.Context, req *domain.ReturnRequest) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO return_requests (`+returnRequestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.IssuedBookID,
		req.StudentID,
		req.StudentName,
		req.BookTitle,
		formatTime(req.RequestDate),
		string(req.Status),
		req.FineAmount,
		nullTimeString(req.DecidedAt),
		nullString(req.DecidedBy),
	)
	if err != nil {
		return mapError(fmt.Errorf("insert return request: %w", err))
	}
	return nil
}

func (r *repos) GetReturnRequest(ctx context.Context, id string) (*domain.ReturnRequest, error) {
	return r.getReturnRequestWhere(ctx, "id = ?", id)
}

func (r *repos) GetPendingReturnRequest(ctx context.Context, issuedBookID string) (*domain.ReturnRequest, error) {
	return r.getReturnRequestWhere(ctx, "issued_book_id = ? AND status = 'pending'", issuedBookID)
}

func (r *repos) getReturnRequestWhere(ctx context.Context, where string, arg any) (*domain.ReturnRequest, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+returnRequestColumns+` FROM return_requests WHERE `+where, arg)
	req, err := scanReturnRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get return request: %w", err)
	}
	return req, nil
}

func (r *repos) UpdateReturnRequest(ctx context.Context, req *domain.ReturnRequest) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE return_requests SET status = ?, fine_amount = ?, decided_at = ?, decided_by = ?
		WHERE id = ?`,
		string(req.Status),
		req.FineAmount,
		nullTimeString(req.DecidedAt),
		nullString(req.DecidedBy),
		req.ID,
	)
	return expectOne(res, err)
}

func (r *repos) ListReturnRequests(ctx context.Context, f store.RequestFilter) ([]*domain.ReturnRequest, error) {
	where, args := requestWhere(f)
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+returnRequestColumns+` FROM return_requests`+where+` ORDER BY request_date, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list return requests: %w", err)
	}
	defer rows.Close()

	var out []*domain.ReturnRequest
	for rows.Next() {
		req, err := scanReturnRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan return request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func requestWhere(f store.RequestFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.StudentID != "" {
		clauses = append(clauses, "student_id = ?")
		args = append(args, f.StudentID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanBookRequest(scanner interface{ Scan(...any) error }) (*domain.BookRequest, error) {
	var (
		req                       domain.BookRequest
		requestDate, status       string
		reason, issuedID, decider sql.NullString
		decidedAt                 sql.NullString
	)
	err := scanner.Scan(
		&req.ID,
		&req.BookID,
		&req.BookTitle,
		&req.StudentID,
		&req.StudentName,
		&requestDate,
		&status,
		&reason,
		&issuedID,
		&decidedAt,
		&decider,
	)
	if err != nil {
		return nil, err
	}
	req.Status = domain.RequestStatus(status)
	req.RejectionReason = domain.RejectionReason(reason.String)
	req.IssuedBookID = issuedID.String
	req.DecidedBy = decider.String

	if req.RequestDate, err = parseTime(requestDate); err != nil {
		return nil, fmt.Errorf("parse request_date: %w", err)
	}
	if req.DecidedAt, err = parseNullableTime(decidedAt); err != nil {
		return nil, fmt.Errorf("parse decided_at: %w", err)
	}
	return &req, nil
}

func scanReturnRequest(scanner interface{ Scan(...any) error }) (*domain.ReturnRequest, error) {
	var (
		req                 domain.ReturnRequest
		requestDate, status string
		decidedAt, decider  sql.NullString
	)
	err := scanner.Scan(
		&req.ID,
		&req.IssuedBookID,
		&req.StudentID,
		&req.StudentName,
		&req.BookTitle,
		&requestDate,
		&status,
		&req.FineAmount,
		&decidedAt,
		&decider,
	)
	if err != nil {
		return nil, err
	}
	req.Status = domain.RequestStatus(status)
	req.DecidedBy = decider.String

	if req.RequestDate, err = parseTime(requestDate); err != nil {
		return nil, fmt.Errorf("parse request_date: %w", err)
	}
	if req.DecidedAt, err = parseNullableTime(decidedAt); err != nil {
		return nil, fmt.Errorf("parse decided_at: %w", err)
	}
	return &req, nil
}
