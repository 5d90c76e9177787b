// Package audit - context.go carries the request actor through the call chain
// as immutable context values. The transport middleware binds the actor once
// per request; the change-capture hook and the access-log writer read it.
// Because the values live on the request's context.Context, concurrent
// requests are isolated by construction and nothing leaks into background
// work unless a caller re-binds explicitly.
package audit

import "context"

type contextKey struct{}

// Actor identifies who is performing the current request. UserID and Username
// are nil for anonymous requests.
type Actor struct {
	UserID    *string
	Username  *string
	IPAddress string
	UserAgent string
}

// WithActor returns a context carrying the actor. Call once per request,
// before any business logic runs.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFrom extracts the actor bound to the context. The zero Actor is
// returned when none was bound, so audit rows degrade to anonymous rather
// than failing.
func ActorFrom(ctx context.Context) Actor {
	actor, _ := ctx.Value(contextKey{}).(Actor)
	return actor
}
