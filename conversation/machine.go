package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goOnboard/session"
)

// DefaultTimeout bounds every server call made by a [Machine].
const DefaultTimeout = 10 * time.Second

const maxCodeInput = 32

// Step describes what one [Machine.Fire] call did. To equals From when the
// event was rejected or the outcome keeps the machine in place.
type Step struct {
	From              State
	To                State
	Event             Event
	Outcome           Outcome
	Notice            Notice
	SessionID         string
	AttemptsRemaining int
	Wait              time.Duration
	Message           string
}

// Machine is one client's conversation. It is owned by the caller (one per
// browser tab or terminal) and is safe for concurrent use, but only one
// server-backed event is in flight at a time.
type Machine struct {
	backend Backend
	timeout time.Duration

	mu        sync.Mutex
	state     State
	sessionID string
	pending   bool
	last      Step
}

// Option configures a [Machine].
type Option func(*Machine)

// WithTimeout bounds each server call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithSession binds the machine to an existing session and starts it in state.
func WithSession(sessionID string, state State) Option {
	return func(m *Machine) {
		m.sessionID = sessionID
		if state < stateCount {
			m.state = state
		}
	}
}

// New returns a machine in Welcome with no session bound.
func New(backend Backend, opts ...Option) *Machine {
	m := &Machine{
		backend: backend,
		timeout: DefaultTimeout,
		state:   Welcome,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resume rebuilds a machine for sessionID from the server's view of the
// record. A session that no longer exists yields a fresh, unbound machine.
func Resume(ctx context.Context, backend Backend, sessionID string, opts ...Option) (*Machine, error) {
	m := New(backend, opts...)
	if sessionID == "" {
		return m, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	res, err := backend.Session(callCtx, sessionID)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, err
	}
	switch res.Outcome {
	case OutcomeOK:
		m.sessionID = sessionID
		m.state = Infer(res.Snapshot)
	case OutcomeNotFound:
		m.sessionID = ""
		m.state = Welcome
		m.last = Step{From: Welcome, To: Welcome, Outcome: res.Outcome, Notice: NoticeSessionRestarted}
	default:
		return nil, fmt.Errorf("resume session: unexpected outcome %q", res.Outcome)
	}
	return m, nil
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the bound session identifier, or "" before one is issued.
func (m *Machine) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Pending reports whether a server call is in flight.
func (m *Machine) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// Last returns the most recent step.
func (m *Machine) Last() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Fire applies ev with the given input. Local events apply immediately.
// Remote events hold the machine pending until the backend answers, then move
// to the destination the outcome resolves to.
func (m *Machine) Fire(ctx context.Context, ev Event, input string) (Step, error) {
	m.mu.Lock()
	from := m.state
	if m.pending {
		m.mu.Unlock()
		return Step{From: from, To: from, Event: ev}, ErrBusy
	}
	if !Legal(from, ev) {
		m.mu.Unlock()
		return Step{From: from, To: from, Event: ev}, fmt.Errorf("%w: %s in %s", ErrIllegalTransition, ev, from)
	}

	r := table[from][ev]
	if r.kind == ruleLocal {
		step := Step{From: from, To: r.next, Event: ev, SessionID: m.sessionID}
		m.state = r.next
		m.last = step
		m.mu.Unlock()
		return step, nil
	}

	input = strings.TrimSpace(input)
	if !guardAccepts(r.guard, input) {
		step := Step{From: from, To: from, Event: ev, Outcome: OutcomeInvalidFormat, Notice: noticeFor(OutcomeInvalidFormat, r.guard), SessionID: m.sessionID}
		m.last = step
		m.mu.Unlock()
		return step, ErrInvalidInput
	}

	sessionID := m.sessionID
	if r.call == callStartSession && sessionID != "" {
		// Bound after an exhausted session was replaced; no new session needed.
		step := Step{From: from, To: r.on[OutcomeOK], Event: ev, Outcome: OutcomeOK, SessionID: sessionID}
		m.state = step.To
		m.last = step
		m.mu.Unlock()
		return step, nil
	}
	if r.call != callStartSession && sessionID == "" {
		m.mu.Unlock()
		return Step{From: from, To: from, Event: ev}, ErrNoSession
	}

	m.pending = true
	m.mu.Unlock()

	res, err := m.call(ctx, r.call, sessionID, input)
	timedOut := errors.Is(err, context.DeadlineExceeded)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = false

	if err != nil {
		step := Step{From: from, To: from, Event: ev, Outcome: OutcomeUnavailable, Notice: NoticeUnavailable, SessionID: sessionID}
		if timedOut {
			step.Notice = NoticeTimeout
			err = fmt.Errorf("%w: %s in %s", ErrTimeout, ev, from)
		}
		m.last = step
		return step, err
	}

	to := from
	if d, ok := r.on[res.Outcome]; ok {
		to = d
	}

	switch res.Outcome {
	case OutcomeOK:
		if r.call == callStartSession {
			m.sessionID = res.SessionID
		}
	case OutcomeAttemptsExhausted:
		m.sessionID = res.SessionID
	case OutcomeNotFound:
		m.sessionID = ""
	}

	step := Step{
		From:              from,
		To:                to,
		Event:             ev,
		Outcome:           res.Outcome,
		Notice:            noticeFor(res.Outcome, r.guard),
		SessionID:         m.sessionID,
		AttemptsRemaining: res.AttemptsRemaining,
		Wait:              res.Wait,
		Message:           res.Message,
	}
	m.state = to
	m.last = step
	return step, nil
}

type callResult struct {
	res Result
	err error
}

// call runs the backend call under the machine timeout. A backend that
// ignores its context still cannot keep the machine pending past the timeout;
// its late answer is discarded.
func (m *Machine) call(ctx context.Context, call remoteCall, sessionID, input string) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		res, err := m.invoke(callCtx, call, sessionID, input)
		done <- callResult{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Result{}, context.DeadlineExceeded
		}
		return out.res, out.err
	case <-callCtx.Done():
		return Result{}, callCtx.Err()
	}
}

func (m *Machine) invoke(ctx context.Context, call remoteCall, sessionID, input string) (Result, error) {
	switch call {
	case callStartSession:
		return m.backend.StartSession(ctx)
	case callSetName:
		return m.backend.SetName(ctx, sessionID, input)
	case callSetEmail:
		return m.backend.SetEmail(ctx, sessionID, input)
	case callSendCode:
		return m.backend.SendCode(ctx, sessionID)
	case callResendCode:
		return m.backend.ResendCode(ctx, sessionID)
	case callValidateCode:
		return m.backend.ValidateCode(ctx, sessionID, input)
	case callComplete:
		return m.backend.Complete(ctx, sessionID)
	default:
		return Result{}, fmt.Errorf("unknown remote call %d", call)
	}
}

func guardAccepts(g guardKind, input string) bool {
	switch g {
	case guardName:
		return session.ValidName(input)
	case guardEmail:
		return session.ValidEmail(input)
	case guardCode:
		if input == "" || len(input) > maxCodeInput {
			return false
		}
		for _, r := range input {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
				return false
			}
		}
		return true
	default:
		return true
	}
}
