package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func dayN(n int) time.Time {
	return day0.Add(time.Duration(n) * 24 * time.Hour)
}

func TestDueDate_IsFourteenDaysAfterIssue(t *testing.T) {
	assert.Equal(t, dayN(14), DueDate(day0))
	assert.Equal(t, 14*24*time.Hour, DueDate(day0).Sub(day0))
}

func TestComputeFine(t *testing.T) {
	due := DueDate(day0)

	tests := []struct {
		name     string
		returned time.Time
		want     int
	}{
		{"returned early", dayN(3), 0},
		{"returned on due date", dayN(14), 0},
		{"returned less than a day late", dayN(14).Add(23 * time.Hour), 0},
		{"returned exactly one day late", dayN(15), 1},
		{"returned six days late", dayN(20), 6},
		{"partial day truncated", dayN(20).Add(20 * time.Hour), 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeFine(due, tt.returned))
		})
	}
}

func TestNewIssuedBook_SnapshotsNames(t *testing.T) {
	book := &Book{ID: "book-1", Title: "1984"}
	student := &Student{ID: "student-1", Name: "Alice"}

	loan := NewIssuedBook("loan-1", book, student, day0)

	assert.Equal(t, "1984", loan.BookTitle)
	assert.Equal(t, "Alice", loan.StudentName)
	assert.Equal(t, dayN(14), loan.DueDate)
	assert.True(t, loan.IsOutstanding())

	book.Title = "Nineteen Eighty-Four"
	assert.Equal(t, "1984", loan.BookTitle)
}

func TestIssuedBook_IsOverdue(t *testing.T) {
	loan := NewIssuedBook("loan-1", &Book{ID: "b"}, &Student{ID: "s"}, day0)

	assert.False(t, loan.IsOverdue(dayN(14)))
	assert.True(t, loan.IsOverdue(dayN(14).Add(time.Second)))

	loan.MarkReturned(dayN(20), 6, false)
	assert.False(t, loan.IsOverdue(dayN(30)), "returned loans are never overdue")
}

func TestIssuedBook_MarkReturned(t *testing.T) {
	t.Run("fine collected", func(t *testing.T) {
		loan := NewIssuedBook("loan-1", &Book{ID: "b"}, &Student{ID: "s"}, day0)
		loan.MarkReturned(dayN(20), loan.FineAt(dayN(20)), true)

		require.NotNil(t, loan.ReturnDate)
		assert.Equal(t, dayN(20), *loan.ReturnDate)
		assert.Equal(t, 6, loan.FineAmount)
		assert.True(t, loan.FinePaid)
		assert.True(t, loan.HasRecordedFine())
	})

	t.Run("no fine never marks paid", func(t *testing.T) {
		loan := NewIssuedBook("loan-1", &Book{ID: "b"}, &Student{ID: "s"}, day0)
		loan.MarkReturned(dayN(10), 0, true)

		assert.Equal(t, 0, loan.FineAmount)
		assert.False(t, loan.FinePaid)
		assert.False(t, loan.HasRecordedFine())
	})
}

func TestCalculateFine(t *testing.T) {
	calc := CalculateFine("Dune", day0, dayN(20))

	assert.Equal(t, "Dune", calc.BookTitle)
	assert.Equal(t, dayN(14), calc.DueDate)
	assert.Equal(t, 6, calc.OverdueDays)
	assert.Equal(t, 6, calc.Fine)

	onTime := CalculateFine("", day0, dayN(14))
	assert.Equal(t, 0, onTime.Fine)
}

func TestBook_Resize(t *testing.T) {
	b := &Book{TotalCopies: 5, AvailableCopies: 2}

	assert.False(t, b.Resize(2), "cannot drop below copies on loan")
	assert.Equal(t, 5, b.TotalCopies)

	require.True(t, b.Resize(4))
	assert.Equal(t, 4, b.TotalCopies)
	assert.Equal(t, 1, b.AvailableCopies)
	assert.True(t, b.CopiesConsistent())
}
