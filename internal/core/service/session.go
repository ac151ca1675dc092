package service

import "context"

type sessionKey struct{}

// WithSession tags ctx with the id of the client session a request
// belongs to.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

func SessionFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
