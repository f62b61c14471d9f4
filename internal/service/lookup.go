package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/libraryledger/ledger-server/internal/domain"
	domainerrors "github.com/libraryledger/ledger-server/internal/errors"
	"github.com/libraryledger/ledger-server/internal/store"
)

// findStudent resolves ref as an id, a student number or a name, in that order.
func findStudent(ctx context.Context, repos store.Repositories, ref string) (*domain.Student, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domainerrors.Validation("student is required")
	}
	lookups := []func(context.Context, string) (*domain.Student, error){
		repos.Students().GetStudent,
		repos.Students().GetStudentByStudentID,
		repos.Students().GetStudentByName,
	}
	for _, get := range lookups {
		s, err := get(ctx, ref)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, domainerrors.NotFound("student %q not found", ref)
}

// findBook resolves ref as an id, an ISBN or an exact title, in that order.
// A title shared by several books is a conflict.
func findBook(ctx context.Context, repos store.Repositories, ref string) (*domain.Book, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domainerrors.Validation("book is required")
	}
	lookups := []func(context.Context, string) (*domain.Book, error){
		repos.Books().GetBook,
		repos.Books().GetBookByISBN,
	}
	for _, get := range lookups {
		b, err := get(ctx, ref)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	b, err := repos.Books().GetBookByTitle(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domainerrors.NotFound("book %q not found", ref)
	} else if err != nil {
		return nil, err
	}
	same, err := booksTitled(ctx, repos, ref)
	if err != nil {
		return nil, err
	}
	if len(same) > 1 {
		return nil, domainerrors.Conflict("title %q matches %d books; use the id or ISBN", ref, len(same)).
			WithDetails(map[string][]string{"book_ids": same})
	}
	return b, nil
}

// booksTitled lists the ids of books whose title folds to title.
func booksTitled(ctx context.Context, repos store.Repositories, title string) ([]string, error) {
	candidates, err := repos.Books().SearchBooks(ctx, store.BookQuery{Text: title, Field: store.SearchTitle})
	if err != nil {
		return nil, err
	}
	key := store.FoldKey(title)
	var ids []string
	for _, c := range candidates {
		if store.FoldKey(c.Title) == key {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

// delinquency evaluates a student's standing from their loans at now.
func delinquency(ctx context.Context, repos store.Repositories, studentID string, now time.Time, policy domain.DelinquencyPolicy) (domain.DelinquencyStatus, error) {
	loans, err := repos.Loans().ListLoans(ctx, store.LoanFilter{StudentID: studentID})
	if err != nil {
		return domain.DelinquencyStatus{}, err
	}
	return domain.EvaluateDelinquency(studentID, loans, now, policy), nil
}

func delinquentError(status domain.DelinquencyStatus) error {
	return domainerrors.PolicyViolation(
		"student is delinquent: %d overdue book(s), %d unpaid fine(s)",
		status.OverdueBooksCount, status.UnpaidFinesCount,
	).WithDetails(status)
}
