package conversation

import "errors"

var (
	// ErrIllegalTransition is returned for an event that is not legal in the
	// current state. The state does not change.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrBusy is returned while a server call for a previous event is in flight.
	ErrBusy = errors.New("transition already in flight")
	// ErrTimeout is returned when the server call did not finish in time. The
	// state does not change and the event may be retried.
	ErrTimeout = errors.New("server call timed out")
	// ErrInvalidInput is returned when a guard rejects the submitted input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoSession is returned for a session-scoped event before a session is bound.
	ErrNoSession = errors.New("no session bound")
)
