package domain

import "time"

// Role represents a principal's permission level.
type Role string

const (
	// RoleStudent can browse, request and return books.
	RoleStudent Role = "student"
	// RoleLibrarian can issue books, decide requests and register students.
	RoleLibrarian Role = "librarian"
	// RoleAdmin has every librarian permission and can register staff.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleLibrarian, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role belongs to library staff.
func (r Role) IsStaff() bool {
	return r == RoleLibrarian || r == RoleAdmin
}

// CanCreate reports whether a principal with role r may create accounts of role target.
// Librarians may only register students; admins may register anyone.
func (r Role) CanCreate(target Role) bool {
	switch r {
	case RoleAdmin:
		return target.Valid()
	case RoleLibrarian:
		return target == RoleStudent
	}
	return false
}

// Student is a borrower account.
type Student struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	StudentID    string    `json:"student_id"` // Institution-issued identifier
	PasswordHash string    `json:"password_hash,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// StaffUser is a librarian or administrator account.
type StaffUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"password_hash,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal is the authenticated identity behind a request.
type Principal struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	DisplayName string `json:"display_name"`
}

// IsStaff reports whether the principal is a librarian or admin.
func (p *Principal) IsStaff() bool {
	return p != nil && p.Role.IsStaff()
}

// IsAdmin reports whether the principal is an admin.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// PrincipalForStudent builds the principal for a student account.
func PrincipalForStudent(s *Student) *Principal {
	return &Principal{ID: s.ID, Role: RoleStudent, DisplayName: s.Name}
}

// PrincipalForStaff builds the principal for a staff account.
func PrincipalForStaff(u *StaffUser) *Principal {
	return &Principal{ID: u.ID, Role: u.Role, DisplayName: u.Username}
}

// Session represents a refresh-token session for a principal.
type Session struct {
	ID               string    `json:"id"`
	PrincipalID      string    `json:"principal_id"`
	Role             Role      `json:"role"`
	RefreshTokenHash string    `json:"refresh_token_hash,omitempty"` // Stored hashed, filter from API responses
	ExpiresAt        time.Time `json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	IPAddress        string    `json:"ip_address,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
}

// Touch updates the session's last seen timestamp.
func (s *Session) Touch() {
	s.LastSeenAt = time.Now()
}

// IsExpired checks if the session has passed its expiration time.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
