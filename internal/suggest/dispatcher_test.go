package suggest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSuggester struct {
	fn       func(ctx context.Context, req Request) ([]string, error)
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeSuggester) Suggest(ctx context.Context, req Request) ([]string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return f.fn(ctx, req)
}

type recordingNotifier struct {
	mu     sync.Mutex
	ready  []Result
	failed []Result
}

func (n *recordingNotifier) SuggestionsReady(r Result) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ready = append(n.ready, r)
}

func (n *recordingNotifier) SuggestionsFailed(r Result) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, r)
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.ready), len(n.failed)
}

func waitForStatus(t *testing.T, d *Dispatcher, loanID string, want Status) Result {
	t.Helper()
	var r Result
	require.Eventually(t, func() bool {
		r, _ = d.Result(loanID)
		return r.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return r
}

func TestDispatcher_Ready(t *testing.T) {
	notifier := &recordingNotifier{}
	s := &fakeSuggester{fn: func(ctx context.Context, req Request) ([]string, error) {
		return []string{"More like " + req.IssuedBookTitle}, nil
	}}
	d := NewDispatcher(s, DispatcherOptions{Notifier: notifier})
	defer d.Shutdown(context.Background())

	d.Dispatch(Job{LoanID: "loan-1", StudentID: "student-1", BookTitle: "1984", StudentName: "Alice"})

	r := waitForStatus(t, d, "loan-1", StatusReady)
	assert.Equal(t, []string{"More like 1984"}, r.Suggestions)
	assert.Equal(t, "student-1", r.StudentID)

	require.Eventually(t, func() bool { ready, _ := notifier.counts(); return ready == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatcher_TimesOut(t *testing.T) {
	notifier := &recordingNotifier{}
	s := &fakeSuggester{fn: func(ctx context.Context, req Request) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	d := NewDispatcher(s, DispatcherOptions{Timeout: 30 * time.Millisecond, Notifier: notifier})
	defer d.Shutdown(context.Background())

	d.Dispatch(Job{LoanID: "loan-1"})

	r := waitForStatus(t, d, "loan-1", StatusFailed)
	assert.Contains(t, r.Error, "deadline exceeded")
	require.Eventually(t, func() bool { _, failed := notifier.counts(); return failed == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatcher_Failure(t *testing.T) {
	s := &fakeSuggester{fn: func(context.Context, Request) ([]string, error) {
		return nil, errors.New("boom")
	}}
	d := NewDispatcher(s, DispatcherOptions{})
	defer d.Shutdown(context.Background())

	d.Dispatch(Job{LoanID: "loan-1"})
	r := waitForStatus(t, d, "loan-1", StatusFailed)
	assert.Equal(t, "boom", r.Error)
	assert.NotNil(t, r.Suggestions)
}

func TestDispatcher_CapsConcurrency(t *testing.T) {
	release := make(chan struct{})
	s := &fakeSuggester{fn: func(ctx context.Context, req Request) ([]string, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return []string{"x"}, nil
	}}
	d := NewDispatcher(s, DispatcherOptions{MaxInFlight: 2, Timeout: 5 * time.Second})
	defer d.Shutdown(context.Background())

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		d.Dispatch(Job{LoanID: id})
	}
	require.Eventually(t, func() bool { return s.inFlight.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), s.peak.Load())

	close(release)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		waitForStatus(t, d, id, StatusReady)
	}
}

func TestDispatcher_Disabled(t *testing.T) {
	d := NewDispatcher(nil, DispatcherOptions{})
	assert.False(t, d.Enabled())

	d.Dispatch(Job{LoanID: "loan-1"})
	r, ok := d.Result("loan-1")
	assert.True(t, ok)
	assert.Equal(t, StatusDisabled, r.Status)

	r, ok = d.Result("loan-2")
	assert.False(t, ok)
	assert.Equal(t, StatusUnknown, r.Status)
}

func TestDispatcher_EvictsOldestResults(t *testing.T) {
	d := NewDispatcher(nil, DispatcherOptions{MaxResults: 2})

	d.Dispatch(Job{LoanID: "loan-1"})
	time.Sleep(time.Millisecond)
	d.Dispatch(Job{LoanID: "loan-2"})
	time.Sleep(time.Millisecond)
	d.Dispatch(Job{LoanID: "loan-3"})

	_, ok := d.Result("loan-1")
	assert.False(t, ok)
	_, ok = d.Result("loan-3")
	assert.True(t, ok)
}

func TestDispatcher_ShutdownCancelsLookups(t *testing.T) {
	s := &fakeSuggester{fn: func(ctx context.Context, req Request) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	d := NewDispatcher(s, DispatcherOptions{Timeout: time.Minute})
	d.Dispatch(Job{LoanID: "loan-1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))

	r, _ := d.Result("loan-1")
	assert.Equal(t, StatusFailed, r.Status)
}

func TestDispatcher_DispatchDuringShutdown(t *testing.T) {
	s := &fakeSuggester{fn: func(ctx context.Context, req Request) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	d := NewDispatcher(s, DispatcherOptions{Timeout: time.Minute, MaxInFlight: 2})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				d.Dispatch(Job{LoanID: "loan-" + string(rune('a'+i)) + string(rune('a'+j%26))})
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	wg.Wait()

	d.Dispatch(Job{LoanID: "late"})
	_, ok := d.Result("late")
	assert.False(t, ok, "jobs after shutdown are dropped")
	assert.Zero(t, s.inFlight.Load())
}
