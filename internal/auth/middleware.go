package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type ctxKey int

const claimsKey ctxKey = 1

func WithClaims(ctx context.Context, c *AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}
func FromContext(ctx context.Context) (*AccessClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*AccessClaims)
	return c, ok
}

type AccessParser interface {
	ParseAccess(tokenStr string) (*AccessClaims, error)
}

// AuthRequired checks Bearer token and adds claims to context.
func AuthRequired(parser AccessParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(h, "Bearer ")
			claims, err := parser.ParseAccess(token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole wraps a handler and ensures the claim carries one of the
// given roles.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := FromContext(r.Context())
			if !ok {
				http.Error(w, "no auth context", http.StatusUnauthorized)
				return
			}
			if !hasRole(claims, roles) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasRole(c *AccessClaims, roles []Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// Helper to extract claims or fail early in handlers
func MustClaims(r *http.Request) (*AccessClaims, error) {
	if c, ok := FromContext(r.Context()); ok {
		return c, nil
	}
	return nil, errors.New("no claims")
}
