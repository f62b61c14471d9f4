package domain

import "time"

// Lending policy. These are the only definitions of the loan period and
// the fine rate; every issuance path and fine computation reads them.
const (
	// LoanPeriod is the fixed window between issue and due date.
	LoanPeriod = 14 * 24 * time.Hour
	// FinePerDay is charged for each whole day a book is returned late.
	FinePerDay = 1

	day = 24 * time.Hour
)

// DueDate returns the due date for a loan issued at issuedAt.
func DueDate(issuedAt time.Time) time.Time {
	return issuedAt.Add(LoanPeriod)
}

// OverdueDays returns the whole days between due and returnedAt.
// Partial days are truncated; a return on or before due is zero days late.
func OverdueDays(due, returnedAt time.Time) int {
	if !returnedAt.After(due) {
		return 0
	}
	return int(returnedAt.Sub(due) / day)
}

// ComputeFine applies the fine rule to a loan due at due and returned at returnedAt.
func ComputeFine(due, returnedAt time.Time) int {
	return OverdueDays(due, returnedAt) * FinePerDay
}

// IssuedBook is one loan of one copy to one student.
// StudentName and BookTitle are snapshots taken at issue time and do not
// follow later edits to the student or book.
type IssuedBook struct {
	ID          string     `json:"id"`
	BookID      string     `json:"book_id"`
	BookTitle   string     `json:"book_title"`
	StudentID   string     `json:"student_id"`
	StudentName string     `json:"student_name"`
	IssueDate   time.Time  `json:"issue_date"`
	DueDate     time.Time  `json:"due_date"`
	ReturnDate  *time.Time `json:"return_date,omitempty"`
	FineAmount  int        `json:"fine_amount"`
	FinePaid    bool       `json:"fine_paid"`
}

// NewIssuedBook creates an outstanding loan issued at issuedAt.
func NewIssuedBook(id string, book *Book, student *Student, issuedAt time.Time) *IssuedBook {
	return &IssuedBook{
		ID:          id,
		BookID:      book.ID,
		BookTitle:   book.Title,
		StudentID:   student.ID,
		StudentName: student.Name,
		IssueDate:   issuedAt,
		DueDate:     DueDate(issuedAt),
	}
}

// IsOutstanding reports whether the book has not been returned yet.
func (l *IssuedBook) IsOutstanding() bool {
	return l.ReturnDate == nil
}

// IsOverdue reports whether the loan is outstanding and past due at now.
func (l *IssuedBook) IsOverdue(now time.Time) bool {
	return l.IsOutstanding() && l.DueDate.Before(now)
}

// FineAt returns the fine that would be charged for a return at now.
func (l *IssuedBook) FineAt(now time.Time) int {
	return ComputeFine(l.DueDate, now)
}

// HasRecordedFine reports whether the loan was returned with a fine.
func (l *IssuedBook) HasRecordedFine() bool {
	return !l.IsOutstanding() && l.FineAmount > 0
}

// MarkReturned finalizes the loan. fineCollected is recorded only when a
// fine is actually charged.
func (l *IssuedBook) MarkReturned(at time.Time, fine int, fineCollected bool) {
	returned := at
	l.ReturnDate = &returned
	l.FineAmount = fine
	l.FinePaid = fine > 0 && fineCollected
}

// FineCalculation is the result of a standalone fine computation.
type FineCalculation struct {
	BookTitle   string    `json:"book_title,omitempty"`
	IssueDate   time.Time `json:"issue_date"`
	DueDate     time.Time `json:"due_date"`
	ReturnDate  time.Time `json:"return_date"`
	OverdueDays int       `json:"overdue_days"`
	Fine        int       `json:"fine"`
}

// CalculateFine computes the fine for a hypothetical loan.
func CalculateFine(title string, issuedAt, returnedAt time.Time) FineCalculation {
	due := DueDate(issuedAt)
	days := OverdueDays(due, returnedAt)
	return FineCalculation{
		BookTitle:   title,
		IssueDate:   issuedAt,
		DueDate:     due,
		ReturnDate:  returnedAt,
		OverdueDays: days,
		Fine:        days * FinePerDay,
	}
}
