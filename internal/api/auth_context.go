package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/libraryledger/ledger-server/internal/domain"
	domainerrors "github.com/libraryledger/ledger-server/internal/errors"
	"github.com/libraryledger/ledger-server/internal/service"
)

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

const (
	principalKey  ctxKey = "principal"
	sessionIDKey  ctxKey = "sessionID"
	authErrKey    ctxKey = "authError"
	remoteAddrKey ctxKey = "remoteAddr"
)

// GetPrincipal returns the authenticated principal from context.
// It returns the verification error when a token was presented but rejected,
// and UNAUTHORIZED when none was presented.
func GetPrincipal(ctx context.Context) (*domain.Principal, error) {
	if p, ok := ctx.Value(principalKey).(*domain.Principal); ok && p != nil {
		return p, nil
	}
	if err, ok := ctx.Value(authErrKey).(error); ok {
		return nil, err
	}
	return nil, domainerrors.Unauthorized("authentication required")
}

func getSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}

// bearerToken reads the access token from the Authorization header. EventSource
// clients cannot set headers, so the event stream also accepts ?token=.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if strings.HasSuffix(r.URL.Path, "/events") {
		return r.URL.Query().Get("token")
	}
	return ""
}

// authMiddleware validates bearer tokens and stores the principal in context.
// Requests without a valid token continue anonymously; handlers decide.
func authMiddleware(auth *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			claims, err := auth.VerifyAccessToken(ctx, token)
			if err != nil {
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, authErrKey, err)))
				return
			}

			ctx = context.WithValue(ctx, principalKey, claims.Principal())
			ctx = context.WithValue(ctx, sessionIDKey, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ssePrincipal adapts the request context for the event stream handler.
func ssePrincipal(r *http.Request) (*domain.Principal, bool) {
	p, err := GetPrincipal(r.Context())
	return p, err == nil
}
