package actorctx

import "context"

type key struct{}

// WithUserID stores the authenticated user id on a request context so code
// below the HTTP layer (logging, tracing) can see who is acting.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, key{}, userID)
}

func UserIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(key{}).(string)

	return v, ok && v != ""
}
