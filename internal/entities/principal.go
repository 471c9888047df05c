package entities

import "context"

// Principal is the caller of an operation
type Principal struct {
	ID            int64 // Identifier of the principal record
	Authenticated bool
	Superuser     bool
}

// Anonymous returns the principal used when a request carries no valid credentials
func Anonymous() *Principal {
	return &Principal{}
}

type principalKey struct{}

// ContextWithPrincipal returns a copy of ctx carrying the principal
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored in ctx, or an anonymous one
func PrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalKey{}).(*Principal); ok && p != nil {
		return p
	}
	return Anonymous()
}
