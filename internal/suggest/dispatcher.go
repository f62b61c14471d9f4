package suggest

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/libraryledger/ledger-server/internal/logger"
)

// Status is the state of a suggestion lookup for one loan.
type Status string

const (
	StatusPending  Status = "pending"
	StatusReady    Status = "ready"
	StatusFailed   Status = "failed"
	StatusDisabled Status = "disabled"
	StatusUnknown  Status = "unknown"
)

// Result is the cached outcome for a loan.
type Result struct {
	LoanID      string    `json:"loan_id"`
	StudentID   string    `json:"student_id"`
	Status      Status    `json:"status"`
	Suggestions []string  `json:"suggestions"`
	Error       string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Suggester produces suggestions. *Client implements it.
type Suggester interface {
	Suggest(ctx context.Context, req Request) ([]string, error)
}

// Notifier hears about finished lookups.
type Notifier interface {
	SuggestionsReady(r Result)
	SuggestionsFailed(r Result)
}

// Job describes the loan that triggered a lookup.
type Job struct {
	LoanID      string
	StudentID   string
	BookTitle   string
	StudentName string
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// MaxInFlight caps concurrent calls. Later jobs wait their turn.
	MaxInFlight int
	// Timeout bounds a single lookup, including the wait for a slot.
	Timeout time.Duration
	// MaxResults bounds the result cache; the oldest entries go first.
	MaxResults int
	Notifier   Notifier
	Logger     *slog.Logger
}

// Dispatcher runs suggestion lookups in the background after a loan commits.
type Dispatcher struct {
	suggester Suggester
	notifier  Notifier
	logger    *slog.Logger
	timeout   time.Duration
	max       int
	slots     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// lifeMu orders wg.Add in Dispatch against Shutdown.
	lifeMu sync.Mutex
	closed bool

	mu      sync.Mutex
	results map[string]*Result
}

// NewDispatcher creates a dispatcher. A nil suggester marks every job
// disabled without calling out.
func NewDispatcher(s Suggester, opts DispatcherOptions) *Dispatcher {
	if opts.MaxInFlight < 1 {
		opts.MaxInFlight = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxResults < 1 {
		opts.MaxResults = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		suggester: s,
		notifier:  opts.Notifier,
		logger:    logger.OrDiscard(opts.Logger),
		timeout:   opts.Timeout,
		max:       opts.MaxResults,
		slots:     make(chan struct{}, opts.MaxInFlight),
		ctx:       ctx,
		cancel:    cancel,
		results:   make(map[string]*Result),
	}
}

// Enabled reports whether lookups reach a service.
func (d *Dispatcher) Enabled() bool {
	return d.suggester != nil
}

// Dispatch starts a lookup for job and returns immediately.
func (d *Dispatcher) Dispatch(job Job) {
	if d.suggester == nil {
		d.store(&Result{LoanID: job.LoanID, StudentID: job.StudentID, Status: StatusDisabled})
		return
	}

	d.lifeMu.Lock()
	if d.closed {
		d.lifeMu.Unlock()
		return
	}
	d.wg.Add(1)
	d.lifeMu.Unlock()

	d.store(&Result{LoanID: job.LoanID, StudentID: job.StudentID, Status: StatusPending})
	go func() {
		defer d.wg.Done()
		d.run(job)
	}()
}

func (d *Dispatcher) run(job Job) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	res := &Result{LoanID: job.LoanID, StudentID: job.StudentID}

	select {
	case d.slots <- struct{}{}:
		defer func() { <-d.slots }()
		titles, err := d.suggester.Suggest(ctx, Request{
			IssuedBookTitle: job.BookTitle,
			StudentName:     job.StudentName,
		})
		if err == nil {
			res.Status = StatusReady
			res.Suggestions = titles
		} else {
			res.Status = StatusFailed
			res.Error = err.Error()
		}
	case <-ctx.Done():
		res.Status = StatusFailed
		res.Error = ctx.Err().Error()
	}

	d.store(res)
	if res.Status == StatusReady {
		d.logger.Debug("Suggestions ready", "loan_id", job.LoanID, "count", len(res.Suggestions))
		if d.notifier != nil {
			d.notifier.SuggestionsReady(*res)
		}
		return
	}
	d.logger.Warn("Suggestion lookup failed", "loan_id", job.LoanID, "error", res.Error)
	if d.notifier != nil {
		d.notifier.SuggestionsFailed(*res)
	}
}

// Result returns the cached outcome for a loan.
func (d *Dispatcher) Result(loanID string) (Result, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.results[loanID]
	if !ok {
		return Result{LoanID: loanID, Status: StatusUnknown}, false
	}
	out := *r
	out.Suggestions = append([]string(nil), r.Suggestions...)
	return out, true
}

func (d *Dispatcher) store(r *Result) {
	r.UpdatedAt = time.Now()
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.results[r.LoanID] = r
	if len(d.results) > d.max {
		d.evictLocked(len(d.results) - d.max)
	}
}

func (d *Dispatcher) evictLocked(n int) {
	all := make([]*Result, 0, len(d.results))
	for _, r := range d.results {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.Before(all[j].UpdatedAt) })
	for _, r := range all[:n] {
		delete(d.results, r.LoanID)
	}
}

// Shutdown cancels outstanding lookups and waits for them to finish.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.lifeMu.Lock()
	d.closed = true
	d.cancel()
	d.lifeMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
