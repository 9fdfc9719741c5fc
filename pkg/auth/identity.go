package auth

import (
	"context"
	"net"
	"net/http"
	"strings"

	"shipboard/pkg/logger"
	"shipboard/pkg/utils"
)

// SecConfig mirrors the security-related configuration used to drive CORS
// and rate limiting. Kept here so limiter.go can reference the shared type.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
}

type ctxUserKey struct{}

// UserID returns the authenticated account id from the request context, or
// "" when the request carried none.
func UserID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxUserKey{}).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns a context carrying the account id. Exposed for tests.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, id)
}

// RequireUser rejects requests without an X-User-ID header and injects the
// id into the request context. Token verification happens upstream at the
// session layer; this service trusts the gateway-resolved identity header.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if id == "" {
			logger.Warn("missing_identity_header", "path", r.URL.Path, "remote", r.RemoteAddr)
			utils.JSONError(w, http.StatusUnauthorized, "missing identity")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
	})
}

// Gateway applies CORS headers and per-client rate limiting around the
// whole API surface.
func Gateway(cfg SecConfig) func(http.Handler) http.Handler {
	pool := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && originAllowed(cfg.AllowedOrigins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			if cfg.RPS > 0 {
				key := clientKey(r)
				if !pool.Allow(key) {
					logger.Warn("rate_limited", "remote", key, "path", r.URL.Path)
					utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// clientKey prefers the authenticated user header and falls back to the
// remote host so shared NATs are not over-throttled by one noisy client.
func clientKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
