package model

import "context"

type actorCtxKey struct{}

// ContextWithActor stores the authenticated API principal name in the
// request context.
func ContextWithActor(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, name)
}

// ActorFromContext retrieves the authenticated principal, or "".
func ActorFromContext(ctx context.Context) string {
	name, _ := ctx.Value(actorCtxKey{}).(string)
	return name
}
