package goOnboard

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's network address to ctx. The Engine uses
// it as the rate-limit origin and records it on new sessions and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
