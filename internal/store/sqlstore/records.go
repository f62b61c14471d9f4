package sqlstore

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/store"
)

const (
	tableStudents       = "students"
	tableStaff          = "staff"
	tableLoans          = "loans"
	tableBookRequests   = "book_requests"
	tableReturnRequests = "return_requests"
	tableSessions       = "sessions"
)

var (
	studentColumns = []any{"id", "name", "student_id", "password_hash", "created_at"}
	staffColumns   = []any{"id", "username", "role", "password_hash", "created_at"}
	loanColumns    = []any{
		"id", "book_id", "book_title", "student_id", "student_name",
		"issue_date", "due_date", "return_date", "fine_amount", "fine_paid",
	}
	bookRequestColumns = []any{
		"id", "book_id", "book_title", "student_id", "student_name", "request_date",
		"status", "rejection_reason", "issued_book_id", "decided_at", "decided_by",
	}
	returnRequestColumns = []any{
		"id", "issued_book_id", "student_id", "student_name", "book_title", "request_date",
		"status", "fine_amount", "decided_at", "decided_by",
	}
	sessionColumns = []any{
		"id", "principal_id", "role", "refresh_token_hash", "created_at", "expires_at",
		"last_seen_at", "ip_address", "user_agent",
	}
)

// fetchOne selects a single row of table matching cond.
func fetchOne[T any](ctx context.Context, r *repos, table string, cols []any, cond exp.Expression, scan func(dbRows) (*T, error)) (*T, error) {
	var out *T
	ds := r.s.dialect.From(table).Prepared(true).Select(cols...).Where(cond).Limit(1)
	err := r.queryOne(ctx, ds, func(rows dbRows) (err error) {
		out, err = scan(rows)
		return err
	})
	return out, err
}

// fetchAll selects every row of ds.
func fetchAll[T any](ctx context.Context, r *repos, ds *goqu.SelectDataset, scan func(dbRows) (*T, error)) ([]*T, error) {
	var out []*T
	err := r.query(ctx, ds, func(rows dbRows) error {
		v, err := scan(rows)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// Students

func (r *repos) CreateStudent(ctx context.Context, s *domain.Student) error {
	_, err := r.exec(ctx, r.s.dialect.Insert(tableStudents).Prepared(true).Rows(goqu.Record{
		"id":             s.ID,
		"name":           s.Name,
		"name_key":       store.FoldKey(s.Name),
		"student_id":     s.StudentID,
		"student_id_key": store.FoldKey(s.StudentID),
		"password_hash":  s.PasswordHash,
		"created_at":     s.CreatedAt.UTC(),
	}))
	return err
}

func (r *repos) GetStudent(ctx context.Context, id string) (*domain.Student, error) {
	return fetchOne(ctx, r, tableStudents, studentColumns, goqu.C("id").Eq(id), scanStudent)
}

func (r *repos) GetStudentByName(ctx context.Context, name string) (*domain.Student, error) {
	return fetchOne(ctx, r, tableStudents, studentColumns, goqu.C("name_key").Eq(store.FoldKey(name)), scanStudent)
}

func (r *repos) GetStudentByStudentID(ctx context.Context, studentID string) (*domain.Student, error) {
	return fetchOne(ctx, r, tableStudents, studentColumns, goqu.C("student_id_key").Eq(store.FoldKey(studentID)), scanStudent)
}

func (r *repos) ListStudents(ctx context.Context) ([]*domain.Student, error) {
	return fetchAll(ctx, r, r.s.dialect.From(tableStudents).Prepared(true).
		Select(studentColumns...).Order(goqu.C("name_key").Asc()), scanStudent)
}

func scanStudent(rows dbRows) (*domain.Student, error) {
	var s domain.Student
	if err := rows.Scan(&s.ID, &s.Name, &s.StudentID, &s.PasswordHash, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// Staff

func (r *repos) CreateStaff(ctx context.Context, u *domain.StaffUser) error {
	_, err := r.exec(ctx, r.s.dialect.Insert(tableStaff).Prepared(true).Rows(goqu.Record{
		"id":            u.ID,
		"username":      u.Username,
		"username_key":  store.FoldKey(u.Username),
		"role":          string(u.Role),
		"password_hash": u.PasswordHash,
		"created_at":    u.CreatedAt.UTC(),
	}))
	return err
}

func (r *repos) GetStaff(ctx context.Context, id string) (*domain.StaffUser, error) {
	return fetchOne(ctx, r, tableStaff, staffColumns, goqu.C("id").Eq(id), scanStaff)
}

func (r *repos) GetStaffByUsername(ctx context.Context, username string) (*domain.StaffUser, error) {
	return fetchOne(ctx, r, tableStaff, staffColumns, goqu.C("username_key").Eq(store.FoldKey(username)), scanStaff)
}

func (r *repos) ListStaff(ctx context.Context) ([]*domain.StaffUser, error) {
	return fetchAll(ctx, r, r.s.dialect.From(tableStaff).Prepared(true).
		Select(staffColumns...).Order(goqu.C("username_key").Asc()), scanStaff)
}

func scanStaff(rows dbRows) (*domain.StaffUser, error) {
	var (
		u    domain.StaffUser
		role string
	)
	if err := rows.Scan(&u.ID, &u.Username, &role, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

// Loans

func (r *repos) CreateLoan(ctx context.Context, l *domain.IssuedBook) error {
	_, err := r.exec(ctx, r.s.dialect.Insert(tableLoans).Prepared(true).Rows(goqu.Record{
		"id":           l.ID,
		"book_id":      l.BookID,
		"book_title":   l.BookTitle,
		"student_id":   l.StudentID,
		"student_name": l.StudentName,
		"issue_date":   l.IssueDate.UTC(),
		"due_date":     l.DueDate.UTC(),
		"return_date":  nullableTime(l.ReturnDate),
		"fine_amount":  l.FineAmount,
		"fine_paid":    l.FinePaid,
	}))
	return err
}

func (r *repos) GetLoan(ctx context.Context, id string) (*domain.IssuedBook, error) {
	return fetchOne(ctx, r, tableLoans, loanColumns, goqu.C("id").Eq(id), scanLoan)
}

func (r *repos) UpdateLoan(ctx context.Context, l *domain.IssuedBook) error {
	return r.execOne(ctx, r.s.dialect.Update(tableLoans).Prepared(true).Set(goqu.Record{
		"return_date": nullableTime(l.ReturnDate),
		"fine_amount": l.FineAmount,
		"fine_paid":   l.FinePaid,
	}).Where(goqu.C("id").Eq(l.ID)))
}

func (r *repos) ListLoans(ctx context.Context, f store.LoanFilter) ([]*domain.IssuedBook, error) {
	ds := r.s.dialect.From(tableLoans).Prepared(true).Select(loanColumns...).
		Order(goqu.C("issue_date").Desc(), goqu.C("id").Asc())
	if f.StudentID != "" {
		ds = ds.Where(goqu.C("student_id").Eq(f.StudentID))
	}
	if f.BookID != "" {
		ds = ds.Where(goqu.C("book_id").Eq(f.BookID))
	}
	if f.OutstandingOnly {
		ds = ds.Where(goqu.C("return_date").IsNull())
	}
	return fetchAll(ctx, r, ds, scanLoan)
}

func scanLoan(rows dbRows) (*domain.IssuedBook, error) {
	var l domain.IssuedBook
	err := rows.Scan(
		&l.ID,
		&l.BookID,
		&l.BookTitle,
		&l.StudentID,
		&l.StudentName,
		&l.IssueDate,
		&l.DueDate,
		&l.ReturnDate,
		&l.FineAmount,
		&l.FinePaid,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Book requests

func (r *repos) CreateBookRequest(ctx context.Context, req *domain.BookRequest) error {
	rec := bookRequestDecision(req)
	rec["id"] = req.ID
	rec["book_id"] = req.BookID
	rec["book_title"] = req.BookTitle
	rec["student_id"] = req.StudentID
	rec["student_name"] = req.StudentName
	rec["request_date"] = req.RequestDate.UTC()
	_, err := r.exec(ctx, r.s.dialect.Insert(tableBookRequests).Prepared(true).Rows(rec))
	return err
}

func bookRequestDecision(req *domain.BookRequest) goqu.Record {
	return goqu.Record{
		"status":           string(req.Status),
		"rejection_reason": nullable(string(req.RejectionReason)),
		"issued_book_id":   nullable(req.IssuedBookID),
		"decided_at":       nullableTime(req.DecidedAt),
		"decided_by":       nullable(req.DecidedBy),
	}
}

func (r *repos) GetBookRequest(ctx context.Context, id string) (*domain.BookRequest, error) {
	return fetchOne(ctx, r, tableBookRequests, bookRequestColumns, goqu.C("id").Eq(id), scanBookRequest)
}

func (r *repos) UpdateBookRequest(ctx context.Context, req *domain.BookRequest) error {
	return r.execOne(ctx, r.s.dialect.Update(tableBookRequests).Prepared(true).
		Set(bookRequestDecision(req)).Where(goqu.C("id").Eq(req.ID)))
}

func (r *repos) ListBookRequests(ctx context.Context, f store.RequestFilter) ([]*domain.BookRequest, error) {
	ds := r.s.dialect.From(tableBookRequests).Prepared(true).Select(bookRequestColumns...)
	return fetchAll(ctx, r, filterRequests(ds, f), scanBookRequest)
}

func scanBookRequest(rows dbRows) (*domain.BookRequest, error) {
	var (
		req                         domain.BookRequest
		status                      string
		reason, issuedID, decidedBy *string
	)
	err := rows.Scan(
		&req.ID,
		&req.BookID,
		&req.BookTitle,
		&req.StudentID,
		&req.StudentName,
		&req.RequestDate,
		&status,
		&reason,
		&issuedID,
		&req.DecidedAt,
		&decidedBy,
	)
	if err != nil {
		return nil, err
	}
	req.Status = domain.RequestStatus(status)
	req.RejectionReason = domain.RejectionReason(deref(reason))
	req.IssuedBookID = deref(issuedID)
	req.DecidedBy = deref(decidedBy)
	return &req, nil
}

// Return requests

func (r *repos) CreateReturnRequest(ctx context.Context, req *domain.ReturnRequest) error {
	rec := returnRequestDecision(req)
	rec["id"] = req.ID
	rec["issued_book_id"] = req.IssuedBookID
	rec["student_id"] = req.StudentID
	rec["student_name"] = req.StudentName
	rec["book_title"] = req.BookTitle
	rec["request_date"] = req.RequestDate.UTC()
	_, err := r.exec(ctx, r.s.dialect.Insert(tableReturnRequests).Prepared(true).Rows(rec))
	return err
}

func returnRequestDecision(req *domain.ReturnRequest) goqu.Record {
	return goqu.Record{
		"status":      string(req.Status),
		"fine_amount": req.FineAmount,
		"decided_at":  nullableTime(req.DecidedAt),
		"decided_by":  nullable(req.DecidedBy),
	}
}

func (r *repos) GetReturnRequest(ctx context.Context, id string) (*domain.ReturnRequest, error) {
	return fetchOne(ctx, r, tableReturnRequests, returnRequestColumns, goqu.C("id").Eq(id), scanReturnRequest)
}

func (r *repos) GetPendingReturnRequest(ctx context.Context, issuedBookID string) (*domain.ReturnRequest, error) {
	return fetchOne(ctx, r, tableReturnRequests, returnRequestColumns, goqu.And(
		goqu.C("issued_book_id").Eq(issuedBookID),
		goqu.C("status").Eq(string(domain.RequestPending)),
	), scanReturnRequest)
}

func (r *repos) UpdateReturnRequest(ctx context.Context, req *domain.ReturnRequest) error {
	return r.execOne(ctx, r.s.dialect.Update(tableReturnRequests).Prepared(true).
		Set(returnRequestDecision(req)).Where(goqu.C("id").Eq(req.ID)))
}

func (r *repos) ListReturnRequests(ctx context.Context, f store.RequestFilter) ([]*domain.ReturnRequest, error) {
	ds := r.s.dialect.From(tableReturnRequests).Prepared(true).Select(returnRequestColumns...)
	return fetchAll(ctx, r, filterRequests(ds, f), scanReturnRequest)
}

func scanReturnRequest(rows dbRows) (*domain.ReturnRequest, error) {
	var (
		req       domain.ReturnRequest
		status    string
		decidedBy *string
	)
	err := rows.Scan(
		&req.ID,
		&req.IssuedBookID,
		&req.StudentID,
		&req.StudentName,
		&req.BookTitle,
		&req.RequestDate,
		&status,
		&req.FineAmount,
		&req.DecidedAt,
		&decidedBy,
	)
	if err != nil {
		return nil, err
	}
	req.Status = domain.RequestStatus(status)
	req.DecidedBy = deref(decidedBy)
	return &req, nil
}

// filterRequests applies a RequestFilter and the oldest-first order.
func filterRequests(ds *goqu.SelectDataset, f store.RequestFilter) *goqu.SelectDataset {
	if f.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(string(f.Status)))
	}
	if f.StudentID != "" {
		ds = ds.Where(goqu.C("student_id").Eq(f.StudentID))
	}
	return ds.Order(goqu.C("request_date").Asc(), goqu.C("id").Asc())
}

// Sessions

func (r *repos) CreateSession(ctx context.Context, se *domain.Session) error {
	rec := sessionRecord(se)
	rec["id"] = se.ID
	rec["principal_id"] = se.PrincipalID
	rec["role"] = string(se.Role)
	rec["created_at"] = se.CreatedAt.UTC()
	_, err := r.exec(ctx, r.s.dialect.Insert(tableSessions).Prepared(true).Rows(rec))
	return err
}

func sessionRecord(se *domain.Session) goqu.Record {
	return goqu.Record{
		"refresh_token_hash": se.RefreshTokenHash,
		"expires_at":         se.ExpiresAt.UTC(),
		"last_seen_at":       se.LastSeenAt.UTC(),
		"ip_address":         nullable(se.IPAddress),
		"user_agent":         nullable(se.UserAgent),
	}
}

func (r *repos) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return fetchOne(ctx, r, tableSessions, sessionColumns, goqu.C("id").Eq(id), scanSession)
}

func (r *repos) UpdateSession(ctx context.Context, se *domain.Session) error {
	return r.execOne(ctx, r.s.dialect.Update(tableSessions).Prepared(true).
		Set(sessionRecord(se)).Where(goqu.C("id").Eq(se.ID)))
}

func (r *repos) DeleteSession(ctx context.Context, id string) error {
	_, err := r.exec(ctx, r.s.dialect.Delete(tableSessions).Prepared(true).Where(goqu.C("id").Eq(id)))
	return err
}

func (r *repos) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := r.exec(ctx, r.s.dialect.Delete(tableSessions).Prepared(true).
		Where(goqu.C("expires_at").Lt(now.UTC())))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanSession(rows dbRows) (*domain.Session, error) {
	var (
		se                   domain.Session
		role                 string
		ipAddress, userAgent *string
	)
	err := rows.Scan(
		&se.ID,
		&se.PrincipalID,
		&role,
		&se.RefreshTokenHash,
		&se.CreatedAt,
		&se.ExpiresAt,
		&se.LastSeenAt,
		&ipAddress,
		&userAgent,
	)
	if err != nil {
		return nil, err
	}
	se.Role = domain.Role(role)
	se.IPAddress = deref(ipAddress)
	se.UserAgent = deref(userAgent)
	return &se, nil
}
