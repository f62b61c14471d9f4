package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
	"golang.org/x/crypto/blake2b"

	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/id"
)

const (
	tokenIssuer   = "library-ledger"
	tokenAudience = "library-ledger-client"

	refreshTokenSize = 32
)

// ErrTokenExpired is returned for a well-formed token past its expiration.
var ErrTokenExpired = errors.New("token expired")

// AccessClaims are the verified contents of an access token.
type AccessClaims struct {
	PrincipalID string
	Role        domain.Role
	Name        string
	SessionID   string
	TokenID     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Principal returns the identity the token was issued to.
func (c *AccessClaims) Principal() *domain.Principal {
	return &domain.Principal{ID: c.PrincipalID, Role: c.Role, DisplayName: c.Name}
}

// TokenService issues PASETO v4.local access tokens and opaque refresh tokens.
type TokenService struct {
	key                  paseto.V4SymmetricKey
	accessTokenDuration  time.Duration
	refreshTokenDuration time.Duration
	now                  func() time.Time
}

// NewTokenService creates a token service from a 32-byte key.
func NewTokenService(key []byte, accessDuration, refreshDuration time.Duration) (*TokenService, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("PASETO v4 key must be %d bytes, got %d", keyLength, len(key))
	}
	k, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("create PASETO key: %w", err)
	}
	return &TokenService{
		key:                  k,
		accessTokenDuration:  accessDuration,
		refreshTokenDuration: refreshDuration,
		now:                  time.Now,
	}, nil
}

// GenerateAccessToken encrypts a token for p bound to sessionID.
func (s *TokenService) GenerateAccessToken(p *domain.Principal, sessionID string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.accessTokenDuration)

	tokenID, err := id.Generate(id.Token)
	if err != nil {
		return "", time.Time{}, err
	}

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetAudience(tokenAudience)
	token.SetSubject(p.ID)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(expires)
	token.SetJti(tokenID)
	token.SetString("role", string(p.Role))
	token.SetString("name", p.DisplayName)
	token.SetString("sid", sessionID)

	return token.V4Encrypt(s.key, nil), expires, nil
}

// VerifyAccessToken decrypts and validates a token. Expiry is reported as
// ErrTokenExpired so clients know to refresh.
func (s *TokenService) VerifyAccessToken(raw string) (*AccessClaims, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))

	token, err := parser.ParseV4Local(s.key, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims := &AccessClaims{}
	if claims.ExpiresAt, err = token.GetExpiration(); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !s.now().Before(claims.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	if claims.PrincipalID, err = token.GetSubject(); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	role, err := token.GetString("role")
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims.Role = domain.Role(role)
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("invalid token: unknown role %q", role)
	}
	claims.Name, _ = token.GetString("name")
	claims.SessionID, _ = token.GetString("sid")
	claims.TokenID, _ = token.GetJti()
	claims.IssuedAt, _ = token.GetIssuedAt()
	return claims, nil
}

// GenerateRefreshToken returns a random opaque refresh token. It is not a
// PASETO token; only its hash is stored.
func (s *TokenService) GenerateRefreshToken() (string, error) {
	b := make([]byte, refreshTokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashRefreshToken returns the storage form of a refresh token.
func HashRefreshToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// AccessTokenDuration returns the configured access token lifetime.
func (s *TokenService) AccessTokenDuration() time.Duration {
	return s.accessTokenDuration
}

// RefreshTokenDuration returns the configured refresh token lifetime.
func (s *TokenService) RefreshTokenDuration() time.Duration {
	return s.refreshTokenDuration
}
