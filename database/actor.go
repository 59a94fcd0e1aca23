package database

import "context"

type keyType string

const actorKey keyType = "actor"

// DefaultActor is recorded for mutations made without an identity on the context.
const DefaultActor = "admin"

// ContextWithActor attaches the identity that activity log entries are attributed to.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the identity set by ContextWithActor, or DefaultActor.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey).(string); ok && actor != "" {
		return actor
	}
	return DefaultActor
}
