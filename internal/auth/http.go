// ABOUTME: HTTP middleware resolving the Authorization header to a Principal
// ABOUTME: Maps resolver failures to 401/403 JSON responses

package auth

import (
	"errors"
	"net/http"
)

// Middleware resolves the Authorization header on every request and attaches
// the Principal to the request context. Requests without a valid credential
// are rejected; handlers behind this middleware can rely on FromContext
// returning a non-nil Principal.
func Middleware(resolver *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			principal, err := resolver.Resolve(r.Context(), header)
			if err != nil {
				status, msg := statusForAuthError(err)
				http.Error(w, `{"error":"`+msg+`"}`, status)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireStaff rejects requests whose Principal is not a Staff member.
// Must be used after Middleware.
func RequireStaff() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()).(Staff); !ok {
				http.Error(w, `{"error":"staff credential required"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusForAuthError maps a resolution failure to an HTTP status and a
// client-safe message.
func statusForAuthError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidScheme):
		return http.StatusUnauthorized, "unsupported credential scheme"
	case errors.Is(err, ErrInvalidSignature):
		return http.StatusUnauthorized, "invalid credential"
	case errors.Is(err, ErrExpired):
		return http.StatusUnauthorized, "credential expired"
	case errors.Is(err, ErrPrincipalNotFound):
		return http.StatusForbidden, "principal not found"
	case errors.Is(err, ErrPrincipalInactive):
		return http.StatusForbidden, "principal inactive"
	default:
		return http.StatusUnauthorized, "authentication failed"
	}
}
