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

const loanColumns = `id, book_id, book_title, student_id, student_name,
	issue_date, due_date, return_date, fine_amount, fine_paid`

// CreateLoan records an issued book.
func (r *repos) CreateLoan(ctx context.Context, loan *domain.IssuedBook) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID,
		loan.BookID,
		loan.BookTitle,
		loan.StudentID,
		loan.StudentName,
		formatTime(loan.IssueDate),
		formatTime(loan.DueDate),
		nullTimeString(loan.ReturnDate),
		loan.FineAmount,
		boolInt(loan.FinePaid),
	)
	if err != nil {
		return mapError(fmt.Errorf("insert loan: %w", err))
	}
	return nil
}

func (r *repos) GetLoan(ctx context.Context, id string) (*domain.IssuedBook, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)
	loan, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return loan, nil
}

// UpdateLoan writes the return fields. Snapshots and dates never change.
func (r *repos) UpdateLoan(ctx context.Context, loan *domain.IssuedBook) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE loans SET return_date = ?, fine_amount = ?, fine_paid = ?
		WHERE id = ?`,
		nullTimeString(loan.ReturnDate),
		loan.FineAmount,
		boolInt(loan.FinePaid),
		loan.ID,
	)
	return expectOne(res, err)
}

// ListLoans returns loans matching f, newest first.
func (r *repos) ListLoans(ctx context.Context, f store.LoanFilter) ([]*domain.IssuedBook, error) {
	var (
		clauses []string
		args    []any
	)
	if f.StudentID != "" {
		clauses = append(clauses, "student_id = ?")
		args = append(args, f.StudentID)
	}
	if f.BookID != "" {
		clauses = append(clauses, "book_id = ?")
		args = append(args, f.BookID)
	}
	if f.OutstandingOnly {
		clauses = append(clauses, "return_date IS NULL")
	}

	query := `SELECT ` + loanColumns + ` FROM loans`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY issue_date DESC, id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var out []*domain.IssuedBook
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		out = append(out, loan)
	}
	return out, rows.Err()
}

func scanLoan(scanner interface{ Scan(...any) error }) (*domain.IssuedBook, error) {
	var (
		loan               domain.IssuedBook
		issueDate, dueDate string
		returnDate         sql.NullString
		finePaid           int
	)
	err := scanner.Scan(
		&loan.ID,
		&loan.BookID,
		&loan.BookTitle,
		&loan.StudentID,
		&loan.StudentName,
		&issueDate,
		&dueDate,
		&returnDate,
		&loan.FineAmount,
		&finePaid,
	)
	if err != nil {
		return nil, err
	}
	loan.FinePaid = finePaid != 0

	if loan.IssueDate, err = parseTime(issueDate); err != nil {
		return nil, fmt.Errorf("parse issue_date: %w", err)
	}
	if loan.DueDate, err = parseTime(dueDate); err != nil {
		return nil, fmt.Errorf("parse due_date: %w", err)
	}
	if loan.ReturnDate, err = parseNullableTime(returnDate); err != nil {
		return nil, fmt.Errorf("parse return_date: %w", err)
	}
	return &loan, nil
}
