// Package internal contains helpers private to goOnboard: random session
// identifiers and verification codes, and their shape checks.
//
// # Sub-packages
//
//   - rate: per-origin Redis fixed-window limiter
//   - sqlitemigrate: embedded SQL migration runner
//   - appconfig: onboardd configuration loading
//
// # What this package must NOT do
//
//   - Export types that appear in the public goOnboard API.
//   - Be imported by any package outside the goOnboard module.
package internal
