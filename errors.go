package goOnboard

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidFormat is returned for a malformed identifier, name, email or code.
	// No counter is consumed.
	ErrInvalidFormat = errors.New("invalid format")
	// ErrCollision is returned when a proposed identifier already belongs to a session.
	ErrCollision = errors.New("identifier collision")
	// ErrCollisionExhausted is returned when every generated identifier collided.
	ErrCollisionExhausted = errors.New("identifier collision retries exhausted")
	// ErrSessionNotFound is returned when the session identifier does not resolve.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionCompleted is returned when mutating a finalized session.
	ErrSessionCompleted = errors.New("session already completed")
	// ErrEmailRequired is returned when sending a code to a session without an email.
	ErrEmailRequired = errors.New("session has no valid email")
	// ErrAlreadyVerified is returned when sending a code to, or changing the
	// email of, a session whose email is already verified.
	ErrAlreadyVerified = errors.New("email already verified")
	// ErrEmailNotVerified is returned when completing a session before verification.
	ErrEmailNotVerified = errors.New("email not verified")

	// ErrIncorrectCode is the sentinel behind [IncorrectCodeError].
	ErrIncorrectCode = errors.New("incorrect verification code")
	// ErrCodeExpired is returned when no code is active or the active code is past
	// its window. It never consumes an attempt.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrAttemptsExhausted is the sentinel behind [AttemptsExhaustedError].
	ErrAttemptsExhausted = errors.New("verification attempts exhausted")
	// ErrResendThrottled is the sentinel behind [ThrottleError].
	ErrResendThrottled = errors.New("verification code resend throttled")
	// ErrRateLimited is the sentinel behind [RateLimitError].
	ErrRateLimited = errors.New("rate limited")

	// ErrDispatchFailure is returned when the code was committed but the mailer
	// failed to deliver it.
	ErrDispatchFailure = errors.New("verification code dispatch failed")
	// ErrStoreUnavailable wraps session store failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrRateLimiterUnavailable wraps rate limiter backend failures. Requests fail
	// closed while the limiter is down.
	ErrRateLimiterUnavailable = errors.New("rate limiter unavailable")
	// ErrEngineNotReady is returned by methods called on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ThrottleError reports a refused send. Wait is how long until the next send
// is allowed.
type ThrottleError struct {
	Wait             time.Duration
	ResendsRemaining int
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("%s: retry in %ds", ErrResendThrottled, WaitSeconds(e.Wait))
}

func (e *ThrottleError) Unwrap() error { return ErrResendThrottled }

// RateLimitError reports an origin that exceeded its request window.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry in %ds", ErrRateLimited, WaitSeconds(e.RetryAfter))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// IncorrectCodeError reports a wrong code that consumed one attempt.
type IncorrectCodeError struct {
	AttemptsRemaining int
}

func (e *IncorrectCodeError) Error() string {
	return fmt.Sprintf("%s: %d attempts remaining", ErrIncorrectCode, e.AttemptsRemaining)
}

func (e *IncorrectCodeError) Unwrap() error { return ErrIncorrectCode }

// AttemptsExhaustedError reports that the last attempt was spent. The session
// is gone; NextSessionID names its replacement, or is empty when a
// replacement could not be created.
type AttemptsExhaustedError struct {
	NextSessionID string
}

func (e *AttemptsExhaustedError) Error() string { return ErrAttemptsExhausted.Error() }

func (e *AttemptsExhaustedError) Unwrap() error { return ErrAttemptsExhausted }

// WaitSeconds rounds d up to whole seconds.
func WaitSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
