package session

import "context"

type contextKey struct{ name string }

var idKey = &contextKey{"session-id"}

// WithID returns ctx carrying the browser's session id. The provider only answers for the
// browser whose id matches the one it issued at login.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey, id)
}

// IDFrom returns the session id on ctx, or "" for a browser without one.
func IDFrom(ctx context.Context) string {
	id, _ := ctx.Value(idKey).(string)
	return id
}
