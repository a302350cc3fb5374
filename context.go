package goAdmin

import "context"

type requestIDContextKey struct{}

// WithRequestID attaches a request identifier to ctx. [Client.Issue] uses it as
// the descriptor ID, which shows up in logs, audit events and [RequestError].
// Without one, Issue generates a UUID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
