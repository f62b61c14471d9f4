package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/store"
)

const (
	studentColumns = `id, name, student_id, password_hash, created_at`
	staffColumns   = `id, username, role, password_hash, created_at`
)

// CreateStudent inserts a student. Name and student ID are unique case-insensitively.
func (r *repos) CreateStudent(ctx context.Context, student *domain.Student) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO students (id, name, name_key, student_id, student_id_key, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		student.ID,
		student.Name, store.FoldKey(student.Name),
		student.StudentID, store.FoldKey(student.StudentID),
		student.PasswordHash,
		formatTime(student.CreatedAt),
	)
	if err != nil {
		return mapError(fmt.Errorf("insert student: %w", err))
	}
	return nil
}

func (r *repos) GetStudent(ctx context.Context, id string) (*domain.Student, error) {
	return r.getStudentWhere(ctx, "id = ?", id)
}

func (r *repos) GetStudentByName(ctx context.Context, name string) (*domain.Student, error) {
	return r.getStudentWhere(ctx, "name_key = ?", store.FoldKey(name))
}

func (r *repos) GetStudentByStudentID(ctx context.Context, studentID string) (*domain.Student, error) {
	return r.getStudentWhere(ctx, "student_id_key = ?", store.FoldKey(studentID))
}

func (r *repos) getStudentWhere(ctx context.Context, where string, arg any) (*domain.Student, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE `+where, arg)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return s, nil
}

// ListStudents returns every student ordered by name.
func (r *repos) ListStudents(ctx context.Context) ([]*domain.Student, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+studentColumns+` FROM students ORDER BY name_key`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var out []*domain.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateStaff inserts a librarian or admin account.
func (r *repos) CreateStaff(ctx context.Context, user *domain.StaffUser) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO staff (id, username, username_key, role, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username, store.FoldKey(user.Username),
		string(user.Role),
		user.PasswordHash,
		formatTime(user.CreatedAt),
	)
	if err != nil {
		return mapError(fmt.Errorf("insert staff: %w", err))
	}
	return nil
}

func (r *repos) GetStaff(ctx context.Context, id string) (*domain.StaffUser, error) {
	return r.getStaffWhere(ctx, "id = ?", id)
}

func (r *repos) GetStaffByUsername(ctx context.Context, username string) (*domain.StaffUser, error) {
	return r.getStaffWhere(ctx, "username_key = ?", store.FoldKey(username))
}

func (r *repos) getStaffWhere(ctx context.Context, where string, arg any) (*domain.StaffUser, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE `+where, arg)
	u, err := scanStaff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get staff: %w", err)
	}
	return u, nil
}

func (r *repos) ListStaff(ctx context.Context) ([]*domain.StaffUser, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+staffColumns+` FROM staff ORDER BY username_key`)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	var out []*domain.StaffUser
	for rows.Next() {
		u, err := scanStaff(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staff: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanStudent(scanner interface{ Scan(...any) error }) (*domain.Student, error) {
	var (
		s         domain.Student
		createdAt string
	)
	if err := scanner.Scan(&s.ID, &s.Name, &s.StudentID, &s.PasswordHash, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &s, nil
}

func scanStaff(scanner interface{ Scan(...any) error }) (*domain.StaffUser, error) {
	var (
		u         domain.StaffUser
		role      string
		createdAt string
	)
	if err := scanner.Scan(&u.ID, &u.Username, &role, &u.PasswordHash, &createdAt); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &u, nil
}
