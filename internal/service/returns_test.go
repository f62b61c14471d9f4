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

const oneDay = 24 * time.Hour

var collected = FineHandling{Collected: true}

func TestReturnWithFine(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Overdue Novel", 1)
	student, _ := env.addStudent(t, "Alice")
	loan := env.issue(t, student, book)

	env.clock.Set(day0.Add(20 * oneDay))

	quote, err := env.returns.ComputeReturnFine(ctx, env.librarian, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, quote.Fine)
	assert.Equal(t, 6, quote.OverdueDays)
	assert.True(t, quote.RequiresConfirmation)
	assert.Equal(t, day0.Add(14*oneDay), quote.DueDate)

	t.Run("fine must be collected", func(t *testing.T) {
		_, err := env.returns.ConfirmReturn(ctx, env.librarian, loan.ID, FineHandling{})
		assert.ErrorIs(t, err, domainerrors.ErrValidation)
		assert.True(t, env.loan(t, loan.ID).IsOutstanding())
		assert.Equal(t, 0, env.book(t, book.ID).AvailableCopies)
	})

	t.Run("confirmed", func(t *testing.T) {
		res, err := env.returns.ConfirmReturn(ctx, env.librarian, loan.ID, collected)
		require.NoError(t, err)

		require.NotNil(t, res.Loan.ReturnDate)
		assert.Equal(t, day0.Add(20*oneDay), *res.Loan.ReturnDate)
		assert.Equal(t, 6, res.Loan.FineAmount)
		assert.True(t, res.Loan.FinePaid)
		assert.Equal(t, 1, res.Book.AvailableCopies)
		assert.Nil(t, res.ReturnRequest)

		stored := env.loan(t, loan.ID)
		assert.False(t, stored.IsOutstanding())
		assert.Equal(t, 6, stored.FineAmount)
	})

	t.Run("second confirm conflicts", func(t *testing.T) {
		_, err := env.returns.ConfirmReturn(ctx, env.librarian, loan.ID, collected)
		assert.ErrorIs(t, err, domainerrors.ErrConflict)
		assert.Equal(t, 1, env.book(t, book.ID).AvailableCopies)

		_, err = env.returns.ComputeReturnFine(ctx, env.librarian, loan.ID)
		assert.ErrorIs(t, err, domainerrors.ErrConflict)
	})
}

func TestReturnOnTime(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Punctual", 1)
	student, _ := env.addStudent(t, "Bob")
	loan := env.issue(t, student, book)

	env.clock.Set(loan.DueDate)

	quote, err := env.returns.ComputeReturnFine(ctx, env.librarian, loan.ID)
	require.NoError(t, err)
	assert.Zero(t, quote.Fine)
	assert.False(t, quote.RequiresConfirmation)

	res, err := env.returns.ConfirmReturn(ctx, env.librarian, loan.ID, FineHandling{})
	require.NoError(t, err)
	assert.Zero(t, res.Loan.FineAmount)
	assert.False(t, res.Loan.FinePaid)
	assert.Equal(t, 1, res.Book.AvailableCopies)
}

func TestConfirmReturn_StaleQuote(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Midnight", 1)
	student, _ := env.addStudent(t, "Cy")
	loan := env.issue(t, student, book)

	// One minute before the seventh overdue day begins.
	env.clock.Set(loan.DueDate.Add(7*oneDay - time.Minute))
	quote, err := env.returns.ComputeReturnFine(ctx, env.librarian, loan.ID)
	require.NoError(t, err)
	require.Equal(t, 6, quote.Fine)

	env.clock.Advance(2 * time.Minute)
	_, err = env.returns.ConfirmReturn(ctx, env.librarian, loan.ID, collected)
	assert.ErrorIs(t, err, domainerrors.ErrConflict)
	assert.True(t, env.loan(t, loan.ID).IsOutstanding())

	requote, err := env.returns.ComputeReturnFine(ctx, env.librarian, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, requote.Fine)

	res, err := env.returns.ConfirmReturn(ctx, env.librarian, loan.ID, collected)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Loan.FineAmount)
}

func TestReturnRequestFlow(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Walden", 1)
	student, principal := env.addStudent(t, "Dee")
	_, stranger := env.addStudent(t, "Stranger")
	loan := env.issue(t, student, book)

	_, err := env.returns.CreateReturnRequest(ctx, stranger, loan.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	env.clock.Set(day0.Add(20 * oneDay))
	req, err := env.returns.CreateReturnRequest(ctx, principal, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, req.Status)
	assert.Equal(t, "Walden", req.BookTitle)

	_, err = env.returns.CreateReturnRequest(ctx, principal, loan.ID)
	assert.ErrorIs(t, err, domainerrors.ErrConflict)

	_, err = env.returns.ApproveReturnRequest(ctx, env.librarian, req.ID, FineHandling{})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	res, err := env.returns.ApproveReturnRequest(ctx, env.librarian, req.ID, collected)
	require.NoError(t, err)
	require.NotNil(t, res.ReturnRequest)
	assert.Equal(t, domain.RequestApproved, res.ReturnRequest.Status)
	assert.Equal(t, 6, res.ReturnRequest.FineAmount)
	assert.Equal(t, 1, res.Book.AvailableCopies)

	_, err = env.returns.ApproveReturnRequest(ctx, env.librarian, req.ID, collected)
	assert.ErrorIs(t, err, domainerrors.ErrConflict)

	_, err = env.returns.CreateReturnRequest(ctx, principal, loan.ID)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	assert.Contains(t, env.events.Names(), "return_request.decided")
}

func TestRejectReturnRequest(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Beloved", 1)
	student, principal := env.addStudent(t, "Eli")
	loan := env.issue(t, student, book)

	req, err := env.returns.CreateReturnRequest(ctx, principal, loan.ID)
	require.NoError(t, err)

	rejected, err := env.returns.RejectReturnRequest(ctx, env.librarian, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, rejected.Status)
	assert.True(t, env.loan(t, loan.ID).IsOutstanding())
	assert.Equal(t, 0, env.book(t, book.ID).AvailableCopies)

	pending, err := env.returns.ListReturnRequests(ctx, principal, domain.RequestPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFineDelinquencyPolicy(t *testing.T) {
	for _, tt := range []struct {
		name       string
		policy     domain.DelinquencyPolicy
		delinquent bool
	}{
		{"fines count forever by default", domain.DelinquencyPolicy{}, true},
		{"paid fines cleared", domain.DelinquencyPolicy{ClearPaidFines: true}, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			env := newLedgerEnv(t, tt.policy)
			book := env.addBook(t, "Late Return", 1)
			student, _ := env.addStudent(t, "Fin")
			loan := env.issue(t, student, book)

			env.clock.Set(day0.Add(20 * oneDay))
			_, err := env.returns.ConfirmReturn(ctx, env.librarian, loan.ID, collected)
			require.NoError(t, err)

			status, err := env.ledger.GetDelinquencyStatus(ctx, student.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.delinquent, status.IsDelinquent)
		})
	}
}

func TestDeferredFineSettledLater(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{ClearPaidFines: true})
	book := env.addBook(t, "Legacy", 1)
	student, _ := env.addStudent(t, "Gil")
	loan := env.issue(t, student, book)

	env.clock.Set(day0.Add(20 * oneDay))

	_, err := env.returns.ConfirmReturn(ctx, env.librarian, loan.ID, FineHandling{Collected: true, Deferred: true})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
	assert.True(t, env.loan(t, loan.ID).IsOutstanding())

	res, err := env.returns.ConfirmReturn(ctx, env.librarian, loan.ID, FineHandling{Deferred: true})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Loan.FineAmount)
	assert.False(t, res.Loan.FinePaid)
	assert.Equal(t, 1, res.Book.AvailableCopies)

	status, err := env.ledger.GetDelinquencyStatus(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.UnpaidFinesCount)
	assert.True(t, status.IsDelinquent)

	settled, err := env.returns.SettleFine(ctx, env.librarian, loan.ID)
	require.NoError(t, err)
	assert.True(t, settled.FinePaid)
	assert.True(t, env.loan(t, loan.ID).FinePaid)

	status, err = env.ledger.GetDelinquencyStatus(ctx, student.ID)
	require.NoError(t, err)
	assert.Zero(t, status.UnpaidFinesCount)
	assert.False(t, status.IsDelinquent)

	_, err = env.returns.SettleFine(ctx, env.librarian, loan.ID)
	assert.ErrorIs(t, err, domainerrors.ErrConflict)

	outstanding := env.issue(t, student, book)
	_, err = env.returns.SettleFine(ctx, env.librarian, outstanding.ID)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	assert.Contains(t, env.events.Names(), "fine.settled")
}

func TestDeferredFineCountsByDefault(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t, domain.DelinquencyPolicy{})
	book := env.addBook(t, "Owed", 1)
	student, _ := env.addStudent(t, "Hal")
	loan := env.issue(t, student, book)

	env.clock.Set(day0.Add(20 * oneDay))
	_, err := env.returns.ConfirmReturn(ctx, env.librarian, loan.ID, FineHandling{Deferred: true})
	require.NoError(t, err)

	_, err = env.returns.SettleFine(ctx, env.librarian, loan.ID)
	require.NoError(t, err)

	status, err := env.ledger.GetDelinquencyStatus(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.UnpaidFinesCount, "recorded fines count unless clear_paid_fines is on")
}

func TestCalculateFine(t *testing.T) {
	calc, err := CalculateFine(FineCalcRequest{
		BookTitle:  "Any",
		IssueDate:  day0,
		ReturnDate: day0.Add(20 * oneDay),
	})
	require.NoError(t, err)
	assert.Equal(t, 6, calc.OverdueDays)
	assert.Equal(t, 6, calc.Fine)
	assert.Equal(t, day0.Add(14*oneDay), calc.DueDate)

	calc, err = CalculateFine(FineCalcRequest{IssueDate: day0, ReturnDate: day0.Add(14 * oneDay)})
	require.NoError(t, err)
	assert.Zero(t, calc.Fine)

	_, err = CalculateFine(FineCalcRequest{IssueDate: day0, ReturnDate: day0.Add(-oneDay)})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}
