package domain

import "time"

// DelinquencyPolicy tunes how recorded fines count toward delinquency.
type DelinquencyPolicy struct {
	// ClearPaidFines excludes fines marked paid. When false every returned
	// loan with a fine counts as unpaid, forever.
	ClearPaidFines bool
}

// DelinquencyStatus summarizes whether a student may borrow.
type DelinquencyStatus struct {
	StudentID         string `json:"student_id"`
	OverdueBooksCount int    `json:"overdue_books_count"`
	UnpaidFinesCount  int    `json:"unpaid_fines_count"`
	IsDelinquent      bool   `json:"is_delinquent"`
}

// EvaluateDelinquency computes a student's status from their loans at now.
// Loans belonging to other students are ignored.
func EvaluateDelinquency(studentID string, loans []*IssuedBook, now time.Time, policy DelinquencyPolicy) DelinquencyStatus {
	status := DelinquencyStatus{StudentID: studentID}
	for _, loan := range loans {
		if loan.StudentID != studentID {
			continue
		}
		if loan.IsOverdue(now) {
			status.OverdueBooksCount++
			continue
		}
		if loan.HasRecordedFine() && !(policy.ClearPaidFines && loan.FinePaid) {
			status.UnpaidFinesCount++
		}
	}
	status.IsDelinquent = status.OverdueBooksCount > 0 || status.UnpaidFinesCount > 0
	return status
}
