package shared

import "context"

type storeScopeKey struct{}

// StoreScope carries the tenant identity resolved for the current request.
type StoreScope struct {
	StoreID int64
	ActorID int64
}

// ContextWithStore stores the tenant scope in context.
func ContextWithStore(ctx context.Context, scope StoreScope) context.Context {
	return context.WithValue(ctx, storeScopeKey{}, scope)
}

// StoreFromContext extracts the tenant scope from context.
func StoreFromContext(ctx context.Context) (StoreScope, bool) {
	scope, ok := ctx.Value(storeScopeKey{}).(StoreScope)
	return scope, ok
}
