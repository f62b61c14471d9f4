// Package sse streams ledger events to connected clients as server-sent events.
package sse

import (
	"time"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/suggest"
)

// EventType names an SSE event.
type EventType string

const (
	// EventHeartbeat keeps idle connections open.
	EventHeartbeat EventType = "heartbeat"

	EventBookCreated EventType = "book.created"
	EventBookUpdated EventType = "book.updated"
	EventBookDeleted EventType = "book.deleted"

	EventLoanIssued   EventType = "loan.issued"
	EventLoanReturned EventType = "loan.returned"
	EventFineSettled  EventType = "fine.settled"

	EventBookRequestCreated   EventType = "book_request.created"
	EventBookRequestDecided   EventType = "book_request.decided"
	EventReturnRequestCreated EventType = "return_request.created"
	EventReturnRequestDecided EventType = "return_request.decided"

	EventSuggestionsReady EventType = "suggestions.ready"
	// EventSuggestionsFailed carries an EXTERNAL_SERVICE_FAILURE notice.
	EventSuggestionsFailed EventType = "suggestions.failed"
)

// Audience selects which clients receive an event.
type Audience int

const (
	// AudienceAll delivers to every client.
	AudienceAll Audience = iota
	// AudienceStaff delivers to librarians and admins only.
	AudienceStaff
	// AudienceOwner delivers to the principal in Event.PrincipalID and to staff.
	AudienceOwner
)

// Event is one message on the stream.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`

	Audience    Audience `json:"-"`
	PrincipalID string   `json:"-"`
}

func newEvent(t EventType, data any, audience Audience, principalID string) Event {
	return Event{
		Type:        t,
		Timestamp:   time.Now(),
		Data:        data,
		Audience:    audience,
		PrincipalID: principalID,
	}
}

// NewHeartbeatEvent returns a keepalive event.
func NewHeartbeatEvent() Event {
	return newEvent(EventHeartbeat, struct{}{}, AudienceAll, "")
}

// BookEventData is the payload of catalog events.
type BookEventData struct {
	Book *domain.Book `json:"book,omitempty"`
	ID   string       `json:"id"`
}

// NewBookEvent announces a catalog change to everyone.
func NewBookEvent(t EventType, book *domain.Book) Event {
	return newEvent(t, BookEventData{Book: book, ID: book.ID}, AudienceAll, "")
}

// LoanEventData is the payload of loan events.
type LoanEventData struct {
	Loan *domain.IssuedBook `json:"loan"`
}

// NewLoanEvent announces a loan change to its student and to staff.
func NewLoanEvent(t EventType, loan *domain.IssuedBook) Event {
	return newEvent(t, LoanEventData{Loan: loan}, AudienceOwner, loan.StudentID)
}

// NewBookRequestEvent announces a borrow request change.
func NewBookRequestEvent(t EventType, req *domain.BookRequest) Event {
	return newEvent(t, req, AudienceOwner, req.StudentID)
}

// NewReturnRequestEvent announces a return request change.
func NewReturnRequestEvent(t EventType, req *domain.ReturnRequest) Event {
	return newEvent(t, req, AudienceOwner, req.StudentID)
}

// ServiceFailureData describes a failed call to an outside service.
type ServiceFailureData struct {
	Code    string `json:"code"`
	Service string `json:"service"`
	LoanID  string `json:"loan_id"`
	Message string `json:"message"`
}

// NewSuggestionsEvent reports the outcome of a suggestion lookup.
func NewSuggestionsEvent(r suggest.Result) Event {
	if r.Status == suggest.StatusReady {
		return newEvent(EventSuggestionsReady, r, AudienceOwner, r.StudentID)
	}
	return newEvent(EventSuggestionsFailed, ServiceFailureData{
		Code:    "EXTERNAL_SERVICE_FAILURE",
		Service: "suggestions",
		LoanID:  r.LoanID,
		Message: r.Error,
	}, AudienceOwner, r.StudentID)
}
