package conversation

import (
	"context"
	"sync"
)

// fakeBackend answers every call from a per-method queue of results. An
// empty queue answers OutcomeOK. block, when set, is waited on before
// answering so tests can observe the pending state.
type fakeBackend struct {
	mu      sync.Mutex
	results map[string][]Result
	calls   []string
	block   chan struct{}
	err     error
	snap    Result
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{results: make(map[string][]Result)}
}

func (f *fakeBackend) queue(method string, res ...Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[method] = append(f.results[method], res...)
}

func (f *fakeBackend) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *fakeBackend) answer(ctx context.Context, method string) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	block := f.block
	err := f.err
	var res Result
	if q := f.results[method]; len(q) > 0 {
		res = q[0]
		f.results[method] = q[1:]
	} else {
		res = Result{Outcome: OutcomeOK}
	}
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (f *fakeBackend) StartSession(ctx context.Context) (Result, error) {
	return f.answer(ctx, "start")
}

func (f *fakeBackend) Session(ctx context.Context, sessionID string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "session")
	if f.err != nil {
		return Result{}, f.err
	}
	return f.snap, nil
}

func (f *fakeBackend) SetName(ctx context.Context, sessionID, name string) (Result, error) {
	return f.answer(ctx, "name")
}

func (f *fakeBackend) SetEmail(ctx context.Context, sessionID, email string) (Result, error) {
	return f.answer(ctx, "email")
}

func (f *fakeBackend) SendCode(ctx context.Context, sessionID string) (Result, error) {
	return f.answer(ctx, "send")
}

func (f *fakeBackend) ResendCode(ctx context.Context, sessionID string) (Result, error) {
	return f.answer(ctx, "resend")
}

func (f *fakeBackend) ValidateCode(ctx context.Context, sessionID, code string) (Result, error) {
	return f.answer(ctx, "validate")
}

func (f *fakeBackend) Complete(ctx context.Context, sessionID string) (Result, error) {
	return f.answer(ctx, "complete")
}
