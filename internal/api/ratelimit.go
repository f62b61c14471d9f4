package api

import (
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/libraryledger/ledger-server/internal/ratelimit"
)

// rateLimited is a huma operation middleware limiting requests per client IP.
// Exceeding the limit returns 429 with the error envelope.
func (s *Server) rateLimited(limiter *ratelimit.KeyedRateLimiter) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		key := clientIP(ctx.Header, ctx.RemoteAddr())
		if !limiter.Allow(key) {
			s.logger.Warn("rate limit exceeded", "ip", key, "operation", ctx.Operation().OperationID)
			_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "too many requests, try again later")
			return
		}
		next(ctx)
	}
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	return clientIP(r.Header.Get, r.RemoteAddr)
}

// clientIP checks X-Forwarded-For and X-Real-IP before falling back to the
// remote address.
func clientIP(header func(string) string, remoteAddr string) string {
	if xff := header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := header("X-Real-IP"); xri != "" {
		return xri
	}
	if i := strings.LastIndexByte(remoteAddr, ':'); i >= 0 {
		return remoteAddr[:i]
	}
	return remoteAddr
}
