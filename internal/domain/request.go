package domain

import (
	"errors"
	"time"
)

// RequestStatus is the lifecycle state shared by book and return requests.
// A request starts pending and transitions exactly once.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected:
		return true
	}
	return false
}

// ErrRequestDecided is returned when deciding a request that is no longer pending.
var ErrRequestDecided = errors.New("request already decided")

// RejectionReason records why a request was rejected.
type RejectionReason string

const (
	// RejectedByStaff is a manual rejection.
	RejectedByStaff RejectionReason = "rejected_by_staff"
	// RejectedStudentDelinquent is an automatic rejection at approval time.
	RejectedStudentDelinquent RejectionReason = "student_delinquent"
	// RejectedBookUnavailable means no copy was left when the request was approved.
	RejectedBookUnavailable RejectionReason = "book_unavailable"
	// RejectedBookMissing means the book was removed from the catalog.
	RejectedBookMissing RejectionReason = "book_missing"
	// RejectedStudentMissing means the student account no longer exists.
	RejectedStudentMissing RejectionReason = "student_missing"
)

// Decision captures who decided a request and when.
type Decision struct {
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	DecidedBy string     `json:"decided_by,omitempty"`
}

func (d *Decision) record(by string, at time.Time) {
	decided := at
	d.DecidedAt = &decided
	d.DecidedBy = by
}

// BookRequest is a student's request to borrow a book.
type BookRequest struct {
	ID              string          `json:"id"`
	BookID          string          `json:"book_id"`
	BookTitle       string          `json:"book_title"`
	StudentID       string          `json:"student_id"`
	StudentName     string          `json:"student_name"`
	RequestDate     time.Time       `json:"request_date"`
	Status          RequestStatus   `json:"status"`
	RejectionReason RejectionReason `json:"rejection_reason,omitempty"`
	IssuedBookID    string          `json:"issued_book_id,omitempty"`
	Decision
}

// NewBookRequest creates a pending request.
func NewBookRequest(id string, book *Book, student *Student, at time.Time) *BookRequest {
	return &BookRequest{
		ID:          id,
		BookID:      book.ID,
		BookTitle:   book.Title,
		StudentID:   student.ID,
		StudentName: student.Name,
		RequestDate: at,
		Status:      RequestPending,
	}
}

// IsPending reports whether the request awaits a decision.
func (r *BookRequest) IsPending() bool {
	return r.Status == RequestPending
}

// Approve marks the request approved and links the resulting loan.
func (r *BookRequest) Approve(by, issuedBookID string, at time.Time) error {
	if !r.IsPending() {
		return ErrRequestDecided
	}
	r.Status = RequestApproved
	r.IssuedBookID = issuedBookID
	r.record(by, at)
	return nil
}

// Reject marks the request rejected with reason.
func (r *BookRequest) Reject(by string, reason RejectionReason, at time.Time) error {
	if !r.IsPending() {
		return ErrRequestDecided
	}
	r.Status = RequestRejected
	r.RejectionReason = reason
	r.record(by, at)
	return nil
}

// ReturnRequest is a student's request to return an outstanding loan.
type ReturnRequest struct {
	ID           string        `json:"id"`
	IssuedBookID string        `json:"issued_book_id"`
	StudentID    string        `json:"student_id"`
	StudentName  string        `json:"student_name"`
	BookTitle    string        `json:"book_title"`
	RequestDate  time.Time     `json:"request_date"`
	Status       RequestStatus `json:"status"`
	FineAmount   int           `json:"fine_amount"` // Fine charged when approved
	Decision
}

// NewReturnRequest creates a pending return request for loan.
func NewReturnRequest(id string, loan *IssuedBook, at time.Time) *ReturnRequest {
	return &ReturnRequest{
		ID:           id,
		IssuedBookID: loan.ID,
		StudentID:    loan.StudentID,
		StudentName:  loan.StudentName,
		BookTitle:    loan.BookTitle,
		RequestDate:  at,
		Status:       RequestPending,
	}
}

// IsPending reports whether the request awaits a decision.
func (r *ReturnRequest) IsPending() bool {
	return r.Status == RequestPending
}

// Approve marks the return approved with the fine that was charged.
func (r *ReturnRequest) Approve(by string, fine int, at time.Time) error {
	if !r.IsPending() {
		return ErrRequestDecided
	}
	r.Status = RequestApproved
	r.FineAmount = fine
	r.record(by, at)
	return nil
}

// Reject marks the return request rejected.
func (r *ReturnRequest) Reject(by string, at time.Time) error {
	if !r.IsPending() {
		return ErrRequestDecided
	}
	r.Status = RequestRejected
	r.record(by, at)
	return nil
}
