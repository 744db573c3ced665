// Package actor carries the caller identity through the transport layer.
// The scheduling core never reads it from context; handlers extract it once
// and pass it as an explicit parameter.
package actor

import "context"

type ctxKey string

const actorKey ctxKey = "turnos.actor"

// SystemActor identifies mutations performed by background jobs.
const SystemActor = "SYSTEM"

// UnknownActor is recorded when a caller supplied no identity. Audit records
// never carry a null actor.
const UnknownActor = "UNKNOWN"

// WithActor stores the caller identity in context.
func WithActor(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actorKey, id)
}

// FromContext extracts the caller identity if present.
func FromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(actorKey)
	if val == nil {
		return "", false
	}
	id, ok := val.(string)
	return id, ok && id != ""
}

// OrUnknown returns the caller identity or the UNKNOWN sentinel.
func OrUnknown(ctx context.Context) string {
	if id, ok := FromContext(ctx); ok {
		return id
	}
	return UnknownActor
}
