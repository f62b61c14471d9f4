package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libraryledger/ledger-server/internal/domain"
	domainerrors "github.com/libraryledger/ledger-server/internal/errors"
)

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})

	dune := env.addBook(t, "Dune", 3)
	emma := env.addBook(t, "Emma", 2)
	alice, _ := env.addStudent(t, "Alice")
	bob, bobP := env.addStudent(t, "Bob")
	_, carolP := env.addStudent(t, "Carol")

	overdue := env.issue(t, alice, dune)
	env.clock.Advance(5 * oneDay)
	env.issue(t, bob, dune)
	env.clock.Advance(time.Hour)
	env.issue(t, bob, emma)
	env.clock.Advance(time.Hour)
	latest := env.issue(t, alice, emma)

	// Alice's first loan is three days overdue, the later ones are not.
	env.clock.Set(overdue.DueDate.Add(3*oneDay + 30*time.Minute))

	_, err := env.ledger.CreateBookRequest(ctx, carolP, dune.ID)
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	bobLoans, err := env.ledger.ListLoans(ctx, bobP, LoanQuery{OutstandingOnly: true})
	require.NoError(t, err)
	_, err = env.returns.CreateReturnRequest(ctx, bobP, bobLoans[0].ID)
	require.NoError(t, err)

	d, err := env.dashboard.Dashboard(ctx, env.librarian)
	require.NoError(t, err)

	assert.Equal(t, 5, d.TotalBooks)
	assert.Equal(t, 1, d.AvailableBooks)
	assert.Equal(t, 4, d.IssuedBooksCount)

	require.Len(t, d.OverdueLoans, 1)
	assert.Equal(t, overdue.ID, d.OverdueLoans[0].ID)

	require.Len(t, d.RecentIssues, 3)
	assert.Equal(t, latest.ID, d.RecentIssues[0].ID)

	require.Len(t, d.PendingBookRequests, 1)
	assert.False(t, d.PendingBookRequests[0].Delinquency.IsDelinquent)

	require.Len(t, d.PendingReturnRequests, 1)
	assert.Equal(t, bob.ID, d.PendingReturnRequests[0].StudentID)
	assert.Zero(t, d.PendingReturnRequests[0].CurrentFine)

	_, err = env.dashboard.Dashboard(ctx, carolP)
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)
}

func TestDashboard_PendingAnnotatedWithDelinquency(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Popular", 2)
	student, principal := env.addStudent(t, "Dora")

	loan := env.issue(t, student, book)
	_, err := env.returns.CreateReturnRequest(ctx, principal, loan.ID)
	require.NoError(t, err)
	env.clock.Set(loan.DueDate.Add(2*oneDay + time.Hour))

	d, err := env.dashboard.Dashboard(ctx, env.librarian)
	require.NoError(t, err)
	require.Len(t, d.PendingReturnRequests, 1)
	p := d.PendingReturnRequests[0]
	assert.True(t, p.Delinquency.IsDelinquent)
	assert.Equal(t, 1, p.Delinquency.OverdueBooksCount)
	assert.Equal(t, 2, p.CurrentFine)
}

func TestMyBooks(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	first := env.addBook(t, "First", 1)
	second := env.addBook(t, "Second", 1)
	third := env.addBook(t, "Third", 1)
	student, principal := env.addStudent(t, "Eve")
	other, otherP := env.addStudent(t, "Other")

	a := env.issue(t, student, first)
	env.clock.Advance(oneDay)
	b := env.issue(t, student, second)
	env.issue(t, other, third)

	req, err := env.returns.CreateReturnRequest(ctx, principal, b.ID)
	require.NoError(t, err)

	books, err := env.dashboard.MyBooks(ctx, principal)
	require.NoError(t, err)
	require.Len(t, books, 2)

	assert.Equal(t, a.ID, books[0].ID)
	assert.False(t, books[0].HasPendingReturn)
	assert.Equal(t, b.ID, books[1].ID)
	assert.True(t, books[1].HasPendingReturn)
	assert.Equal(t, req.ID, books[1].PendingReturnRequest)

	_, err = env.returns.ConfirmReturn(ctx, env.librarian, a.ID, FineHandling{})
	require.NoError(t, err)
	books, err = env.dashboard.MyBooks(ctx, principal)
	require.NoError(t, err)
	assert.Len(t, books, 1)

	otherBooks, err := env.dashboard.MyBooks(ctx, otherP)
	require.NoError(t, err)
	assert.Len(t, otherBooks, 1)

	_, err = env.dashboard.MyBooks(ctx, env.librarian)
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)
}
