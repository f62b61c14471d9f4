package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func returnedLoan(studentID string, fine int, paid bool) *IssuedBook {
	loan := NewIssuedBook("loan", &Book{ID: "b"}, &Student{ID: studentID}, day0)
	loan.MarkReturned(dayN(14+fine), fine, paid)
	return loan
}

func TestEvaluateDelinquency_Clean(t *testing.T) {
	loans := []*IssuedBook{
		NewIssuedBook("l1", &Book{ID: "b"}, &Student{ID: "alice"}, dayN(0)),
		returnedLoan("alice", 0, false),
	}

	status := EvaluateDelinquency("alice", loans, dayN(5), DelinquencyPolicy{})

	assert.Equal(t, 0, status.OverdueBooksCount)
	assert.Equal(t, 0, status.UnpaidFinesCount)
	assert.False(t, status.IsDelinquent)
}

func TestEvaluateDelinquency_Overdue(t *testing.T) {
	loans := []*IssuedBook{
		NewIssuedBook("l1", &Book{ID: "b"}, &Student{ID: "alice"}, dayN(0)),
	}

	status := EvaluateDelinquency("alice", loans, dayN(15), DelinquencyPolicy{})

	assert.Equal(t, 1, status.OverdueBooksCount)
	assert.True(t, status.IsDelinquent)
}

func TestEvaluateDelinquency_RecordedFines(t *testing.T) {
	loans := []*IssuedBook{
		returnedLoan("alice", 3, true),
		returnedLoan("alice", 2, false),
	}

	t.Run("every recorded fine counts by default", func(t *testing.T) {
		status := EvaluateDelinquency("alice", loans, dayN(40), DelinquencyPolicy{})
		assert.Equal(t, 2, status.UnpaidFinesCount)
		assert.True(t, status.IsDelinquent)
	})

	t.Run("paid fines cleared when enabled", func(t *testing.T) {
		status := EvaluateDelinquency("alice", loans, dayN(40), DelinquencyPolicy{ClearPaidFines: true})
		assert.Equal(t, 1, status.UnpaidFinesCount)
		assert.True(t, status.IsDelinquent)
	})
}

func TestEvaluateDelinquency_IgnoresOtherStudents(t *testing.T) {
	loans := []*IssuedBook{
		NewIssuedBook("l1", &Book{ID: "b"}, &Student{ID: "bob"}, dayN(0)),
		returnedLoan("bob", 4, false),
	}

	status := EvaluateDelinquency("alice", loans, dayN(30), DelinquencyPolicy{})
	assert.False(t, status.IsDelinquent)
}

func TestRequestTransitions_AreTerminal(t *testing.T) {
	req := NewBookRequest("breq-1", &Book{ID: "b", Title: "1984"}, &Student{ID: "s", Name: "Alice"}, day0)
	assert.True(t, req.IsPending())

	assert.NoError(t, req.Approve("staff-1", "loan-1", dayN(1)))
	assert.Equal(t, RequestApproved, req.Status)
	assert.Equal(t, "loan-1", req.IssuedBookID)
	assert.Equal(t, "staff-1", req.DecidedBy)

	assert.ErrorIs(t, req.Reject("staff-1", RejectedByStaff, dayN(2)), ErrRequestDecided)
	assert.Equal(t, RequestApproved, req.Status)

	ret := NewReturnRequest("rreq-1", returnedLoan("s", 0, false), day0)
	assert.NoError(t, ret.Reject("staff-1", dayN(1)))
	assert.ErrorIs(t, ret.Approve("staff-1", 0, dayN(2)), ErrRequestDecided)
}

func TestRole_CanCreate(t *testing.T) {
	assert.True(t, RoleAdmin.CanCreate(RoleLibrarian))
	assert.True(t, RoleAdmin.CanCreate(RoleStudent))
	assert.True(t, RoleLibrarian.CanCreate(RoleStudent))
	assert.False(t, RoleLibrarian.CanCreate(RoleAdmin))
	assert.False(t, RoleStudent.CanCreate(RoleStudent))
	assert.False(t, RoleAdmin.CanCreate(Role("root")))
}
