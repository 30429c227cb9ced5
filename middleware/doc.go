// Package middleware holds gin middleware for the onboarding HTTP API.
//
// # Handlers
//
//   - [ClientIP] attaches the caller address to the request context so the
//     engine can rate limit and record the session origin.
//   - [RequireTicket] checks the bearer session ticket against the session
//     named in the route.
//
// Ticket checks are delegated to a [TicketVerifier]; this package never parses
// tokens itself.
package middleware
