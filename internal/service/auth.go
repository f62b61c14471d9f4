package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/libraryledger/ledger-server/internal/auth"
	"github.com/libraryledger/ledger-server/internal/domain"
	domainerrors "github.com/libraryledger/ledger-server/internal/errors"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/store"
)

// AuthService handles login, token refresh and token verification.
// Session management is delegated to SessionService.
type AuthService struct {
	store          store.Store
	tokenService   *auth.TokenService
	sessionService *SessionService
	logger         *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	st store.Store,
	tokenService *auth.TokenService,
	sessionService *SessionService,
	log *slog.Logger,
) *AuthService {
	return &AuthService{
		store:          st,
		tokenService:   tokenService,
		sessionService: sessionService,
		logger:         logger.OrDiscard(log),
	}
}

// LoginRequest identifies an account by staff username, student name or
// student number.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,notblank,max=200"`
	Password   string `json:"password" validate:"required,max=1024"`
	ClientInfo `json:"-"`
}

// RefreshRequest carries a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	ClientInfo   `json:"-"`
}

// AuthResponse contains tokens and the authenticated principal.
type AuthResponse struct {
	Principal *domain.Principal `json:"principal"`
	SessionResponse
}

// account is a resolved login target.
type account struct {
	principal    *domain.Principal
	passwordHash string
}

// Login verifies credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	acct, err := s.lookup(ctx, strings.TrimSpace(req.Identifier))
	if err != nil {
		return nil, err
	}
	if acct == nil || !auth.VerifyPassword(acct.passwordHash, req.Password) {
		s.logger.Info("login failed", "identifier", req.Identifier, "ip", req.IPAddress)
		return nil, domainerrors.InvalidCredentials("invalid username or password")
	}

	sess, err := s.sessionService.CreateSession(ctx, acct.principal, req.ClientInfo)
	if err != nil {
		return nil, err
	}
	s.logger.Info("login", "principal_id", acct.principal.ID, "role", string(acct.principal.Role))
	return &AuthResponse{Principal: acct.principal, SessionResponse: *sess}, nil
}

// lookup tries staff usernames, then student names, then student numbers.
// A miss returns nil without error.
func (s *AuthService) lookup(ctx context.Context, identifier string) (*account, error) {
	staff, err := s.store.Staff().GetStaffByUsername(ctx, identifier)
	if err == nil {
		return &account{principal: domain.PrincipalForStaff(staff), passwordHash: staff.PasswordHash}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	for _, get := range []func(context.Context, string) (*domain.Student, error){
		s.store.Students().GetStudentByName,
		s.store.Students().GetStudentByStudentID,
	} {
		st, err := get(ctx, identifier)
		if err == nil {
			return &account{principal: domain.PrincipalForStudent(st), passwordHash: st.PasswordHash}, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// Refresh rotates a refresh token.
func (s *AuthService) Refresh(ctx context.Context, req RefreshRequest) (*AuthResponse, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	sess, p, err := s.sessionService.RefreshSession(ctx, req.RefreshToken, req.ClientInfo, s.principalForSession)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Principal: p, SessionResponse: *sess}, nil
}

func (s *AuthService) principalForSession(ctx context.Context, session *domain.Session) (*domain.Principal, error) {
	if session.Role == domain.RoleStudent {
		st, err := s.store.Students().GetStudent(ctx, session.PrincipalID)
		if err != nil {
			return nil, domainerrors.Unauthorized("account no longer exists").WithCause(err)
		}
		return domain.PrincipalForStudent(st), nil
	}
	u, err := s.store.Staff().GetStaff(ctx, session.PrincipalID)
	if err != nil {
		return nil, domainerrors.Unauthorized("account no longer exists").WithCause(err)
	}
	return domain.PrincipalForStaff(u), nil
}

// Logout revokes the session behind an access token.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessionService.RevokeSession(ctx, sessionID)
}

// VerifyAccessToken validates a bearer token and checks its session is
// still open, so logout revokes outstanding access tokens.
func (s *AuthService) VerifyAccessToken(ctx context.Context, token string) (*auth.AccessClaims, error) {
	claims, err := s.tokenService.VerifyAccessToken(token)
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return nil, domainerrors.TokenExpired("access token expired")
	case err != nil:
		return nil, domainerrors.Unauthorized("invalid access token").WithCause(err)
	}
	if claims.SessionID != "" && !s.sessionService.SessionActive(ctx, claims.SessionID) {
		return nil, domainerrors.Unauthorized("session has ended")
	}
	return claims, nil
}
