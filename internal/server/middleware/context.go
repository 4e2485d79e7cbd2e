package middleware

import (
	"context"

	"coffee-shop-demo/internal/security"
)

type contextKey struct{ name string }

var principalKey = contextKey{"principal"}

// WithPrincipal returns a context carrying the validated token principal.
func WithPrincipal(ctx context.Context, p *security.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the principal set by Auth and true, or nil, false on public routes.
func GetPrincipal(ctx context.Context) (*security.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*security.Principal)
	return p, ok && p != nil
}
