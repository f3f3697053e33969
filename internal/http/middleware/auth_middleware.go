package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/chatforge/authcore/internal/http/response"
	"github.com/chatforge/authcore/internal/security"
	"github.com/chatforge/authcore/internal/service"
)

type contextKey string

const (
	ClaimsContextKey contextKey = "claims"
)

// RequestVerifier is the slice of the engine the middleware needs.
type RequestVerifier interface {
	VerifyRequest(ctx context.Context, accessToken string) (*security.Claims, error)
}

// AuthMiddleware authenticates requests through the engine, so every
// protected route gets revocation and session-liveness checks, not
// just a signature check.
func AuthMiddleware(verifier RequestVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, "unauthorized", "missing access token", nil)
				return
			}
			claims, err := verifier.VerifyRequest(r.Context(), raw)
			if err != nil {
				response.ServiceError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route on the role claim carried in the token.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, "unauthorized", "missing auth context", nil)
				return
			}
			if claims.Role != role {
				response.Error(w, r, http.StatusForbidden, "forbidden", "insufficient role", map[string]string{"required": role})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

var _ RequestVerifier = (*service.AuthService)(nil)
