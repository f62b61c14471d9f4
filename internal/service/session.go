package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/libraryledger/ledger-server/internal/auth"
	"github.com/libraryledger/ledger-server/internal/domain"
	domainerrors "github.com/libraryledger/ledger-server/internal/errors"
	"github.com/libraryledger/ledger-server/internal/id"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/store"
)

// SessionService creates, rotates and revokes refresh-token sessions.
type SessionService struct {
	store        store.Store
	tokenService *auth.TokenService
	logger       *slog.Logger
	now          func() time.Time
}

// NewSessionService creates a new session management service.
func NewSessionService(st store.Store, tokenService *auth.TokenService, log *slog.Logger) *SessionService {
	return &SessionService{
		store:        st,
		tokenService: tokenService,
		logger:       logger.OrDiscard(log),
		now:          systemNow,
	}
}

// SessionResponse carries a fresh token pair.
type SessionResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int       `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	SessionID        string    `json:"session_id"`
}

// ClientInfo describes where a session was opened from.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// The refresh token handed to clients is "<session id>.<secret>"; only the
// secret's hash is stored.
const refreshSeparator = "."

func splitRefreshToken(token string) (sessionID, secret string, ok bool) {
	sessionID, secret, ok = strings.Cut(token, refreshSeparator)
	return sessionID, secret, ok && sessionID != "" && secret != ""
}

// CreateSession opens a session for p and returns its tokens.
func (s *SessionService) CreateSession(ctx context.Context, p *domain.Principal, client ClientInfo) (*SessionResponse, error) {
	secret, err := s.tokenService.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	sessionID, err := id.Generate(id.Session)
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	now := s.now()
	session := &domain.Session{
		ID:               sessionID,
		PrincipalID:      p.ID,
		Role:             p.Role,
		RefreshTokenHash: auth.HashRefreshToken(secret),
		ExpiresAt:        now.Add(s.tokenService.RefreshTokenDuration()),
		CreatedAt:        now,
		LastSeenAt:       now,
		IPAddress:        client.IPAddress,
		UserAgent:        client.UserAgent,
	}
	if err := s.store.Sessions().CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return s.issue(p, session, secret)
}

func (s *SessionService) issue(p *domain.Principal, session *domain.Session, secret string) (*SessionResponse, error) {
	accessToken, expires, err := s.tokenService.GenerateAccessToken(p, session.ID)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	return &SessionResponse{
		AccessToken:      accessToken,
		RefreshToken:     session.ID + refreshSeparator + secret,
		TokenType:        "Bearer",
		ExpiresIn:        int(s.tokenService.AccessTokenDuration().Seconds()),
		AccessExpiresAt:  expires,
		RefreshExpiresAt: session.ExpiresAt,
		SessionID:        session.ID,
	}, nil
}

// RefreshSession rotates the refresh token and returns a new pair.
// resolve looks up the principal so role or name changes take effect.
func (s *SessionService) RefreshSession(
	ctx context.Context,
	refreshToken string,
	client ClientInfo,
	resolve func(ctx context.Context, session *domain.Session) (*domain.Principal, error),
) (*SessionResponse, *domain.Principal, error) {
	invalid := domainerrors.TokenExpired("invalid or expired refresh token")

	sessionID, secret, ok := splitRefreshToken(refreshToken)
	if !ok {
		return nil, nil, invalid
	}
	session, err := s.store.Sessions().GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, invalid.WithCause(err)
	}
	want := auth.HashRefreshToken(secret)
	if subtle.ConstantTimeCompare([]byte(want), []byte(session.RefreshTokenHash)) != 1 {
		return nil, nil, invalid
	}
	if !s.now().Before(session.ExpiresAt) {
		_ = s.store.Sessions().DeleteSession(ctx, session.ID)
		return nil, nil, invalid
	}

	p, err := resolve(ctx, session)
	if err != nil {
		// Account is gone; the session goes with it.
		_ = s.store.Sessions().DeleteSession(ctx, session.ID)
		return nil, nil, err
	}

	newSecret, err := s.tokenService.GenerateRefreshToken()
	if err != nil {
		return nil, nil, err
	}
	session.RefreshTokenHash = auth.HashRefreshToken(newSecret)
	session.LastSeenAt = s.now()
	if client.IPAddress != "" {
		session.IPAddress = client.IPAddress
	}
	if client.UserAgent != "" {
		session.UserAgent = client.UserAgent
	}
	if err := s.store.Sessions().UpdateSession(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("update session: %w", err)
	}

	resp, err := s.issue(p, session, newSecret)
	if err != nil {
		return nil, nil, err
	}
	return resp, p, nil
}

// SessionActive reports whether sessionID still exists and has not expired.
func (s *SessionService) SessionActive(ctx context.Context, sessionID string) bool {
	session, err := s.store.Sessions().GetSession(ctx, sessionID)
	return err == nil && s.now().Before(session.ExpiresAt)
}

// RevokeSession deletes a session. Unknown sessions are ignored.
func (s *SessionService) RevokeSession(ctx context.Context, sessionID string) error {
	err := s.store.Sessions().DeleteSession(ctx, sessionID)
	if err != nil && !store.IsNotFound(err) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CleanupExpired removes sessions past their expiry.
func (s *SessionService) CleanupExpired(ctx context.Context) (int, error) {
	n, err := s.store.Sessions().DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", "count", n)
	}
	return n, nil
}

// RunCleanup calls CleanupExpired every interval until ctx ends.
func (s *SessionService) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupExpired(ctx); err != nil {
				s.logger.Warn("session cleanup failed", "error", err)
			}
		}
	}
}
