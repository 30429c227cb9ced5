package conversation

import "context"

// Backend is the server the machine talks to. A non-nil error means the call
// itself failed (transport, timeout); every domain verdict comes back as a
// [Result] outcome with a nil error.
type Backend interface {
	StartSession(ctx context.Context) (Result, error)
	Session(ctx context.Context, sessionID string) (Result, error)
	SetName(ctx context.Context, sessionID, name string) (Result, error)
	SetEmail(ctx context.Context, sessionID, email string) (Result, error)
	SendCode(ctx context.Context, sessionID string) (Result, error)
	ResendCode(ctx context.Context, sessionID string) (Result, error)
	ValidateCode(ctx context.Context, sessionID, code string) (Result, error)
	Complete(ctx context.Context, sessionID string) (Result, error)
}
