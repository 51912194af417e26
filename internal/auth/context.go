// ABOUTME: Principal propagation through request handlers via context
// ABOUTME: Provides WithPrincipal/FromContext used by the HTTP middleware

package auth

import (
	"context"
)

// principalKey is the key type for storing a Principal in context.Context.
type principalKey struct{}

// WithPrincipal returns a new context with the Principal attached.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the Principal from the context, returning nil if not
// present.
func FromContext(ctx context.Context) Principal {
	val := ctx.Value(principalKey{})
	if val == nil {
		return nil
	}
	p, ok := val.(Principal)
	if !ok {
		return nil
	}
	return p
}
