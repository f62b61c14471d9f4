package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/suggest"
)

func startManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = m.Shutdown(context.Background())
	})
	return m
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case e := <-c.EventChan:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case e := <-c.EventChan:
		t.Fatalf("unexpected event %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_AudienceFiltering(t *testing.T) {
	m := startManager(t)

	librarian, err := m.Connect("staff-1", true)
	require.NoError(t, err)
	alice, err := m.Connect("student-alice", false)
	require.NoError(t, err)
	bob, err := m.Connect("student-bob", false)
	require.NoError(t, err)

	loan := &domain.IssuedBook{ID: "loan-1", StudentID: "student-alice", BookTitle: "Dune"}
	m.LoanIssued(loan)

	assert.Equal(t, EventLoanIssued, receive(t, librarian).Type)
	assert.Equal(t, EventLoanIssued, receive(t, alice).Type)
	assertSilent(t, bob)

	m.BookCreated(&domain.Book{ID: "book-1", Title: "Dune"})
	for _, c := range []*Client{librarian, alice, bob} {
		assert.Equal(t, EventBookCreated, receive(t, c).Type)
	}
}

func TestManager_StaffOnlyEvents(t *testing.T) {
	m := startManager(t)

	librarian, err := m.Connect("staff-1", true)
	require.NoError(t, err)
	student, err := m.Connect("student-1", false)
	require.NoError(t, err)

	m.Emit(newEvent(EventBookRequestCreated, struct{}{}, AudienceStaff, ""))

	assert.Equal(t, EventBookRequestCreated, receive(t, librarian).Type)
	assertSilent(t, student)
}

func TestManager_SuggestionFailureNotice(t *testing.T) {
	m := startManager(t)

	student, err := m.Connect("student-1", false)
	require.NoError(t, err)

	m.SuggestionsFailed(suggest.Result{
		LoanID:    "loan-1",
		StudentID: "student-1",
		Status:    suggest.StatusFailed,
		Error:     "timeout",
	})

	e := receive(t, student)
	assert.Equal(t, EventSuggestionsFailed, e.Type)
	data, ok := e.Data.(ServiceFailureData)
	require.True(t, ok)
	assert.Equal(t, "EXTERNAL_SERVICE_FAILURE", data.Code)
	assert.Equal(t, "loan-1", data.LoanID)
}

func TestManager_DropsForSlowClient(t *testing.T) {
	m := startManager(t)

	slow, err := m.Connect("staff-1", true)
	require.NoError(t, err)

	for range clientBuffer + 20 {
		m.BookUpdated(&domain.Book{ID: "book-1"})
	}

	require.Eventually(t, func() bool { return len(slow.EventChan) == clientBuffer },
		2*time.Second, 10*time.Millisecond)
}

func TestManager_DisconnectAndShutdown(t *testing.T) {
	m := NewManager(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	c, err := m.Connect("student-1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, m.ClientCount())

	m.Disconnect(c.ID)
	assert.Equal(t, 0, m.ClientCount())
	m.Disconnect(c.ID) // idempotent

	_, err = m.Connect("student-2", false)
	require.NoError(t, err)
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 0, m.ClientCount())

	// Emitting after shutdown must not panic.
	m.BookCreated(&domain.Book{ID: "book-1"})
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestHandler_StreamsEvents(t *testing.T) {
	m := startManager(t)
	h := NewHandler(m, func(*http.Request) (*domain.Principal, bool) {
		return &domain.Principal{ID: "student-1", Role: domain.RoleStudent}, true
	}, logger.Discard())

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)

	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	m.LoanReturned(&domain.IssuedBook{ID: "loan-9", StudentID: "student-1"})

	var frame strings.Builder
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		frame.WriteString(line)
		if strings.Contains(frame.String(), "loan.returned") && strings.HasSuffix(frame.String(), "\n\n") {
			break
		}
	}
	assert.Contains(t, frame.String(), `"id":"loan-9"`)
}

func TestHandler_RejectsAnonymous(t *testing.T) {
	m := startManager(t)
	h := NewHandler(m, func(*http.Request) (*domain.Principal, bool) { return nil, false }, logger.Discard())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, m.ClientCount())
}
