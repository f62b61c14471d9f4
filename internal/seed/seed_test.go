package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libraryledger/ledger-server/internal/auth"
	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/store"
	"github.com/libraryledger/ledger-server/internal/store/memstore"
)

var now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func TestLoad(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()

	report, err := Load(ctx, st, now, nil)
	require.NoError(t, err)
	assert.Equal(t, Report{Books: 7, Students: 3, Staff: 2, Loans: 4}, report)

	gatsby, err := st.Books().GetBookByTitle(ctx, "The Great Gatsby")
	require.NoError(t, err)
	assert.Equal(t, 5, gatsby.TotalCopies)
	assert.Equal(t, 4, gatsby.AvailableCopies, "one copy is out with Alice")

	mockingbird, err := st.Books().GetBookByTitle(ctx, "To Kill a Mockingbird")
	require.NoError(t, err)
	assert.Equal(t, mockingbird.TotalCopies, mockingbird.AvailableCopies, "returned loans do not hold copies")

	alice, err := st.Students().GetStudentByStudentID(ctx, "S1001")
	require.NoError(t, err)
	assert.True(t, auth.VerifyPassword(alice.PasswordHash, StudentPassword))

	aliceLoans, err := st.Loans().ListLoans(ctx, store.LoanFilter{StudentID: alice.ID})
	require.NoError(t, err)
	status := domain.EvaluateDelinquency(alice.ID, aliceLoans, now, domain.DelinquencyPolicy{})
	assert.Equal(t, 1, status.OverdueBooksCount)
	assert.Equal(t, 1, status.UnpaidFinesCount)
	assert.True(t, status.IsDelinquent)

	admin, err := st.Staff().GetStaffByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
	assert.True(t, auth.VerifyPassword(admin.PasswordHash, "adminpass"))
}

func TestLoad_ReturnedLoanCarriesFine(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()

	_, err := Load(ctx, st, now, nil)
	require.NoError(t, err)

	alice, err := st.Students().GetStudentByStudentID(ctx, "S1001")
	require.NoError(t, err)
	loans, err := st.Loans().ListLoans(ctx, store.LoanFilter{StudentID: alice.ID})
	require.NoError(t, err)

	var returned *domain.IssuedBook
	for _, l := range loans {
		if !l.IsOutstanding() {
			returned = l
		}
	}
	require.NotNil(t, returned)
	// Issued 30 days ago, due 16 days ago, back 10 days ago.
	assert.Equal(t, 6, returned.FineAmount)
	assert.False(t, returned.FinePaid)
}

func TestLoad_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()

	_, err := Load(ctx, st, now, nil)
	require.NoError(t, err)

	report, err := Load(ctx, st, now.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)

	all, err := st.Loans().ListLoans(ctx, store.LoanFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
