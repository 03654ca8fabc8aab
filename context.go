package txman

import "context"

// ContextID identifies one execution context (one goroutine, task or request
// flow). It is created by the caller's runtime, this package only uses it as a
// lookup key. It must stay stable for the whole unit of work and must not be
// shared by two units of work running concurrently.
type ContextID string

type contextIDKey string

var (
	currentKey contextIDKey = "current"
)

// WithContextID attaches an execution context id to ctx.
func WithContextID(ctx context.Context, id ContextID) context.Context {
	return context.WithValue(ctx, currentKey, id)
}

// ContextIDFromContext returns the execution context id carried by ctx.
func ContextIDFromContext(ctx context.Context) (id ContextID, ok bool) {
	id, ok = ctx.Value(currentKey).(ContextID)
	return
}
