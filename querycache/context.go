package querycache

import "context"

type userContextKey struct{}

// WithUser binds userID to the context for the duration of a cached-query
// call. The binding is an explicit scoped value, never state attached to a
// goroutine or OS thread, so a pooled worker can never leak one user's
// namespace into an unrelated query: the derived context dies with the
// call.
func WithUser(ctx context.Context, userID int64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if userID <= 0 {
		return ctx
	}
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserFromContext returns the bound user id, if any. Queries without a
// user context keep their original, unprefixed keys so unrelated cache
// consumers pass through unmodified.
func UserFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	userID, ok := ctx.Value(userContextKey{}).(int64)
	return userID, ok
}
