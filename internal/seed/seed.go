// Package seed loads a small sample library: a handful of classics, three
// students, a librarian and an admin, and loans in each state.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/libraryledger/ledger-server/internal/auth"
	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/id"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/store"
)

const placeholderCover = "https://placehold.co/300x450.png"

type sampleBook struct {
	title, author, isbn, description string
	copies                           int
}

var books = []sampleBook{
	{"The Great Gatsby", "F. Scott Fitzgerald", "9780743273565", "A story of wealth, love, and tragedy in the Jazz Age.", 5},
	{"To Kill a Mockingbird", "Harper Lee", "9780061120084", "A classic of modern American literature, focusing on racial injustice.", 3},
	{"1984", "George Orwell", "9780451524935", "A dystopian novel set in a totalitarian society.", 5},
	{"Pride and Prejudice", "Jane Austen", "9780141439518", "A romantic novel that also critiques the British gentry.", 2},
	{"The Catcher in the Rye", "J.D. Salinger", "9780316769488", "A story about teenage angst and alienation.", 4},
	{"Brave New World", "Aldous Huxley", "9780060850524", "A dystopian novel about a future society.", 6},
	{"Moby Dick", "Herman Melville", "9781503280786", "The saga of Captain Ahab and his relentless pursuit of the great white whale.", 3},
}

type sampleStudent struct {
	name, studentID string
}

var students = []sampleStudent{
	{"Alice Wonderland", "S1001"},
	{"Bob The Builder", "S1002"},
	{"Charlie Brown", "S1003"},
}

type sampleStaff struct {
	username, password string
	role               domain.Role
}

var staff = []sampleStaff{
	{"librarian", "password123", domain.RoleLibrarian},
	{"admin", "adminpass", domain.RoleAdmin},
}

// StudentPassword is the password every sample student gets.
const StudentPassword = "password123"

// sampleLoan places a loan relative to the seeding time. returnedDaysAgo
// is zero for outstanding loans.
type sampleLoan struct {
	student, book   string
	issuedDaysAgo   int
	returnedDaysAgo int
}

var loans = []sampleLoan{
	{student: "S1001", book: "The Great Gatsby", issuedDaysAgo: 20},
	{student: "S1002", book: "1984", issuedDaysAgo: 10},
	{student: "S1001", book: "To Kill a Mockingbird", issuedDaysAgo: 30, returnedDaysAgo: 10},
	{student: "S1003", book: "The Catcher in the Rye", issuedDaysAgo: 5},
}

// Report counts what Load created. Existing records are left alone.
type Report struct {
	Books    int `json:"books"`
	Students int `json:"students"`
	Staff    int `json:"staff"`
	Loans    int `json:"loans"`
}

// Load inserts the sample data into st. It is safe to run twice: books are
// matched by ISBN, students by student ID and staff by username, and loans
// are only created for students inserted by this run.
func Load(ctx context.Context, st store.Store, now time.Time, log *slog.Logger) (Report, error) {
	log = logger.OrDiscard(log)
	var report Report

	bookByTitle := make(map[string]*domain.Book, len(books))
	for _, sb := range books {
		b, created, err := ensureBook(ctx, st, sb, now)
		if err != nil {
			return report, err
		}
		if created {
			report.Books++
		}
		bookByTitle[b.Title] = b
	}

	fresh := make(map[string]*domain.Student)
	for _, ss := range students {
		s, created, err := ensureStudent(ctx, st, ss, now)
		if err != nil {
			return report, err
		}
		if created {
			report.Students++
			fresh[s.StudentID] = s
		}
	}

	for _, su := range staff {
		created, err := ensureStaff(ctx, st, su, now)
		if err != nil {
			return report, err
		}
		if created {
			report.Staff++
		}
	}

	for _, sl := range loans {
		student, ok := fresh[sl.student]
		if !ok {
			continue
		}
		book := bookByTitle[sl.book]
		if err := createLoan(ctx, st, sl, book, student, now); err != nil {
			return report, err
		}
		report.Loans++
	}

	log.Info("sample data loaded",
		"books", report.Books,
		"students", report.Students,
		"staff", report.Staff,
		"loans", report.Loans,
	)
	return report, nil
}

func ensureBook(ctx context.Context, st store.Store, sb sampleBook, now time.Time) (*domain.Book, bool, error) {
	existing, err := st.Books().GetBookByISBN(ctx, sb.isbn)
	if err == nil {
		return existing, false, nil
	}
	if !store.IsNotFound(err) {
		return nil, false, fmt.Errorf("look up %q: %w", sb.title, err)
	}

	b := &domain.Book{
		ID:              id.MustGenerate(id.Book),
		Title:           sb.title,
		Author:          sb.author,
		ISBN:            sb.isbn,
		Description:     sb.description,
		CoverImageURL:   placeholderCover,
		TotalCopies:     sb.copies,
		AvailableCopies: sb.copies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := st.Books().CreateBook(ctx, b); err != nil {
		return nil, false, fmt.Errorf("create %q: %w", sb.title, err)
	}
	return b, true, nil
}

func ensureStudent(ctx context.Context, st store.Store, ss sampleStudent, now time.Time) (*domain.Student, bool, error) {
	existing, err := st.Students().GetStudentByStudentID(ctx, ss.studentID)
	if err == nil {
		return existing, false, nil
	}
	if !store.IsNotFound(err) {
		return nil, false, fmt.Errorf("look up student %s: %w", ss.studentID, err)
	}

	hash, err := auth.HashPassword(StudentPassword)
	if err != nil {
		return nil, false, err
	}
	s := &domain.Student{
		ID:           id.MustGenerate(id.Student),
		Name:         ss.name,
		StudentID:    ss.studentID,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	if err := st.Students().CreateStudent(ctx, s); err != nil {
		return nil, false, fmt.Errorf("create student %s: %w", ss.studentID, err)
	}
	return s, true, nil
}

func ensureStaff(ctx context.Context, st store.Store, su sampleStaff, now time.Time) (bool, error) {
	_, err := st.Staff().GetStaffByUsername(ctx, su.username)
	if err == nil {
		return false, nil
	}
	if !store.IsNotFound(err) {
		return false, fmt.Errorf("look up %s: %w", su.username, err)
	}

	hash, err := auth.HashPassword(su.password)
	if err != nil {
		return false, err
	}
	u := &domain.StaffUser{
		ID:           id.MustGenerate(id.Staff),
		Username:     su.username,
		Role:         su.role,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	if err := st.Staff().CreateStaff(ctx, u); err != nil {
		return false, fmt.Errorf("create %s: %w", su.username, err)
	}
	return true, nil
}

func daysAgo(now time.Time, n int) time.Time {
	return now.AddDate(0, 0, -n)
}

// createLoan records a loan and keeps the book's available count in step.
// Returned loans carry the fine the rule would have charged, unpaid.
func createLoan(ctx context.Context, st store.Store, sl sampleLoan, book *domain.Book, student *domain.Student, now time.Time) error {
	loan := domain.NewIssuedBook(id.MustGenerate(id.Loan), book, student, daysAgo(now, sl.issuedDaysAgo))
	outstanding := sl.returnedDaysAgo == 0
	if !outstanding {
		returned := daysAgo(now, sl.returnedDaysAgo)
		loan.MarkReturned(returned, domain.ComputeFine(loan.DueDate, returned), false)
	}

	return st.Atomic(ctx, func(ctx context.Context, tx store.Repositories) error {
		if outstanding {
			if _, err := tx.Books().DecrementAvailable(ctx, book.ID); err != nil {
				return fmt.Errorf("take copy of %q: %w", book.Title, err)
			}
		}
		return tx.Loans().CreateLoan(ctx, loan)
	})
}
