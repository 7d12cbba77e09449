// Package actorcontext carries the calling actor's identity through request
// contexts. The core performs no authentication; the surrounding transport
// resolves the actor and stores it here for authorization and audit.
package actorcontext

import (
	"context"
	"strings"
)

// ActorContextKey is the request context key for the calling actor.
type ActorContextKey struct{}

// WithActor stores the actor identity (e.g. "system", "operator:42") in the
// context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorContextKey{}, strings.TrimSpace(actor))
}

// ActorFromContext returns the actor identity from context, if set.
func ActorFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value := ctx.Value(ActorContextKey{})
	if actor, ok := value.(string); ok && actor != "" {
		return actor, true
	}
	return "", false
}
