// Package requestctx provides request-scoped values (e.g. the caller
// identity) set by middleware.
package requestctx

import "context"

type contextKey struct{}

var callerKey = &contextKey{}

// SetCaller stores the caller identity (the name mapped to the API key,
// or the remote address on open servers) in the context.
func SetCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// Caller returns the caller identity from context, or "" if not set.
func Caller(ctx context.Context) string {
	v, _ := ctx.Value(callerKey).(string)
	return v
}
