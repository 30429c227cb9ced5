// Package session provides the onboarding session record, its field
// predicates, and the [Store] contract with a Redis-backed implementation.
//
// # Binary encoding
//
// [RedisStore] keeps each record as one compact binary blob ([Encode] and
// [Decode]). The first byte is a format version; unknown versions are
// rejected rather than guessed at.
//
// # Atomicity
//
// [Store.Update] is a read-modify-write under optimistic concurrency: the
// callback sees a private copy of the record and its returned [Action] is
// committed only if nobody else wrote the record in between. Callers express
// every counter change (verification attempts, resend budget) inside one
// callback so two concurrent requests can never both spend the last unit.
//
// # What this package must NOT do
//
//   - Import the root onboarding package (no upward imports).
//   - Decide verification outcomes or throttle policy; that belongs to the Engine.
package session
