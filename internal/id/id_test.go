package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Uniqueness(t *testing.T) {
	ids := make(map[string]bool)
	count := 1000

	for i := 0; i < count; i++ {
		id, err := Generate(Loan)
		require.NoError(t, err)
		assert.False(t, ids[id], "ID should be unique: %s", id)
		ids[id] = true
	}

	assert.Len(t, ids, count)
}

func TestGenerate_Format(t *testing.T) {
	for _, prefix := range []Prefix{Book, Student, Staff, Loan, BookRequest, ReturnRequest, Session} {
		t.Run(string(prefix), func(t *testing.T) {
			id := MustGenerate(prefix)

			assert.True(t, strings.HasPrefix(id, string(prefix)+"-"))
			assert.Len(t, id, len(prefix)+1+size)
			assert.True(t, HasPrefix(id, prefix))

			body := strings.TrimPrefix(id, string(prefix)+"-")
			assert.NotContains(t, body, "-")
			assert.NotContains(t, body, "_")
		})
	}
}

func TestHasPrefix_RejectsForeignIDs(t *testing.T) {
	assert.False(t, HasPrefix("1984", Book))
	assert.False(t, HasPrefix(MustGenerate(Student), Book))
	assert.False(t, HasPrefix("book-short", Book))
}
