// Package rate provides a per-origin fixed-window limiter backed by Redis.
//
// # Window semantics
//
// One counter per origin under prefix:origin. The first hit in a window sets
// the key expiry; every hit increments the counter and reads the remaining
// window in the same Lua script, so concurrent requests from unrelated
// origins never contend and a counter can never be left without an expiry.
//
// # What this package must NOT do
//
//   - Know about onboarding sessions or per-session counters.
//   - Be imported outside the goOnboard module.
package rate
