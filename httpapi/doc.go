// Package httpapi is the HTTP transport of the onboarding engine.
//
// [NewRouter] mounts the /v1 routes on a gin engine. Session-scoped routes
// require the session ticket handed out by POST /v1/sessions. Every response
// body is a [Response] whose outcome names the verdict; domain refusals are
// reported with a 4xx status and never logged as errors.
//
// [Client] speaks the same contract and implements conversation.Backend, so a
// conversation.Machine can run against a remote server.
package httpapi
