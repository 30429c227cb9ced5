// Package conversation implements the client side of onboarding: a finite
// state machine whose transitions are driven by user input and, for anything
// touching identity or verification, by the outcome the server reports.
//
// # Transition table
//
// Every (State, Event) pair has exactly one entry. Pairs without a rule are
// illegal and rejected with [ErrIllegalTransition]; the table is checked for
// coverage when the package loads and End is the only state without an
// outward event.
//
// # Server-driven transitions
//
// Remote events never move the machine optimistically. [Machine.Fire] marks
// the machine pending (further events get [ErrBusy]), calls the [Backend]
// under a bounded timeout, and only then resolves the destination from the
// reported [Outcome]. A timeout or transport failure leaves the state where
// it was.
//
// # Resuming
//
// State is not persisted. [Infer] maps a session [Snapshot] to the canonical
// state so a reloaded client picks up where the record says it is.
package conversation
