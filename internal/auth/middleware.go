package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is unexported so only this package can place or read auth
// values in a request context.
type contextKey struct{}

var claimsKey contextKey

// Middleware validates the Authorization header when present.
//
// A well-formed bearer token is parsed and its claims stored in the request
// context; a malformed header or invalid token terminates the request with
// 401. Requests without an Authorization header pass through anonymously —
// read endpoints are public.
func Middleware(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := r.Header.Get("Authorization")
			if authorization == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.Fields(authorization)
			switch {
			case len(parts) == 0:
				unauthorized(w, "Token missing.")
				return
			case strings.ToLower(parts[0]) != "bearer":
				unauthorized(w, "Unsupported auth type.")
				return
			case len(parts) == 1:
				unauthorized(w, "Token missing.")
				return
			case len(parts) > 2:
				unauthorized(w, "Token contains spaces.")
				return
			}

			claims, err := tokens.Validate(parts[1])
			if err != nil {
				unauthorized(w, "Passed token is invalid.")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the validated token claims, or (nil, false) for
// an anonymous request.
func ClaimsFromContext(ctx context.Context) (*jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*jwt.RegisteredClaims)
	return claims, ok
}

func unauthorized(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"message":"` + reason + `"}`))
}
