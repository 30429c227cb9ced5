// Package goOnboard provides the server side of a guided onboarding flow:
// collision-safe session identifiers, one-time email verification codes with
// expiry, attempt limits and resend throttling, and a per-origin rate limit.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. Two requests racing on the same session (duplicate tab,
// double click) are serialized by the session store's compare-and-set; no
// counter update is ever lost.
//
// # Architecture boundaries
//
// goOnboard is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy and value types. Persistence lives in session (Redis) and
// session/sqlite; the client state machine lives in conversation, and
// [Engine.ConversationBackend] adapts the Engine to it for in-process use.
//
// # Order of checks
//
// Rate-limited operations consult the per-origin limiter first, then the
// session's own preconditions and counters. A request refused by the limiter
// never touches the session record.
//
// # What this package must NOT do
//
//   - Expose Redis clients or store encodings in its public API.
//   - Send mail inside a store transaction; delivery happens after commit.
//   - Import any sub-package that re-imports goOnboard (no import cycles).
package goOnboard
