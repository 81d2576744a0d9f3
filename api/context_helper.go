package api

import (
	"context"
	"time"
)

// QueryTimeout is the default timeout for database queries
const QueryTimeout = 10 * time.Second

// WithQueryTimeout creates a context with query timeout
func WithQueryTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, QueryTimeout)
}

// Caller is the verified identity the auth middleware attaches to each
// request. Handlers must key every authorization decision on ID, never on a
// client-supplied display name.
type Caller struct {
	ID   string
	Name string
}

type contextKey string

const callerContextKey contextKey = "caller"

// WithCaller returns a context carrying the verified caller identity
func WithCaller(parent context.Context, caller Caller) context.Context {
	return context.WithValue(parent, callerContextKey, caller)
}

// CallerFromContext returns the verified caller identity, if any
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerContextKey).(Caller)
	return caller, ok && caller.ID != ""
}
