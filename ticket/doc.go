// Package ticket signs and verifies session tickets: short JWTs that bind an
// HTTP client to the onboarding session it started. A ticket carries only the
// session identifier; it grants nothing beyond acting on that session.
package ticket
