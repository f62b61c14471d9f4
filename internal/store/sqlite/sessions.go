package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/store"
)

const sessionColumns = `id, principal_id, role, refresh_token_hash, created_at, expires_at,
	last_seen_at, ip_address, user_agent`

// CreateSession creates a new session.
func (r *repos) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.PrincipalID,
		string(session.Role),
		session.RefreshTokenHash,
		formatTime(session.CreatedAt),
		formatTime(session.ExpiresAt),
		formatTime(session.LastSeenAt),
		nullString(session.IPAddress),
		nullString(session.UserAgent),
	)
	if err != nil {
		return mapError(fmt.Errorf("insert session: %w", err))
	}
	return nil
}

// GetSession retrieves a session by ID.
func (r *repos) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// UpdateSession rotates the refresh hash and extends the session.
func (r *repos) UpdateSession(ctx context.Context, session *domain.Session) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE sessions SET refresh_token_hash = ?, expires_at = ?, last_seen_at = ?,
			ip_address = ?, user_agent = ?
		WHERE id = ?`,
		session.RefreshTokenHash,
		formatTime(session.ExpiresAt),
		formatTime(session.LastSeenAt),
		nullString(session.IPAddress),
		nullString(session.UserAgent),
		session.ID,
	)
	return expectOne(res, err)
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (r *repos) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired before now.
func (r *repos) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// scanSession scans a session from a row or rows.
func scanSession(scanner interface{ Scan(...any) error }) (*domain.Session, error) {
	var (
		session                          domain.Session
		role                             string
		createdAt, expiresAt, lastSeenAt string
		ipAddress, userAgent             sql.NullString
	)
	err := scanner.Scan(
		&session.ID,
		&session.PrincipalID,
		&role,
		&session.RefreshTokenHash,
		&createdAt,
		&expiresAt,
		&lastSeenAt,
		&ipAddress,
		&userAgent,
	)
	if err != nil {
		return nil, err
	}
	session.Role = domain.Role(role)
	session.IPAddress = ipAddress.String
	session.UserAgent = userAgent.String

	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if session.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	if session.LastSeenAt, err = parseTime(lastSeenAt); err != nil {
		return nil, fmt.Errorf("parse last_seen_at: %w", err)
	}
	return &session, nil
}
