package goOnboard

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	auditEventSessionStarted      = "session_started"
	auditEventSessionCompleted    = "session_completed"
	auditEventSessionReset        = "session_reset"
	auditEventIdentifierExhausted = "identifier_exhausted"
	auditEventCodeIssued          = "verification_code_issued"
	auditEventCodeResent          = "verification_code_resent"
	auditEventResendThrottled     = "verification_resend_throttled"
	auditEventCodeValidated       = "verification_code_validated"
	auditEventAttemptsExhausted   = "verification_attempts_exhausted"
	auditEventRateLimitTriggered  = "rate_limit_triggered"
)

// AuditErrorCode is the stable error label written into [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrInvalidFormat      AuditErrorCode = "invalid_format"
	auditErrCollision          AuditErrorCode = "collision"
	auditErrCollisionExhausted AuditErrorCode = "collision_exhausted"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrSessionCompleted   AuditErrorCode = "session_completed"
	auditErrEmailRequired      AuditErrorCode = "email_required"
	auditErrAlreadyVerified    AuditErrorCode = "already_verified"
	auditErrNotVerified        AuditErrorCode = "not_verified"
	auditErrIncorrectCode      AuditErrorCode = "incorrect_code"
	auditErrCodeExpired        AuditErrorCode = "code_expired"
	auditErrAttemptsExhausted  AuditErrorCode = "attempts_exhausted"
	auditErrResendThrottled    AuditErrorCode = "resend_throttled"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrDispatchFailure    AuditErrorCode = "dispatch_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.clock(),
		EventType: eventType,
		SessionID: sessionID,
		Origin:    clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, retryAfter time.Duration) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"scope":               scope,
			"retry_after_seconds": fmt.Sprint(WaitSeconds(retryAfter)),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidFormat):
		return auditErrInvalidFormat
	case errors.Is(err, ErrCollision):
		return auditErrCollision
	case errors.Is(err, ErrCollisionExhausted):
		return auditErrCollisionExhausted
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionCompleted):
		return auditErrSessionCompleted
	case errors.Is(err, ErrEmailRequired):
		return auditErrEmailRequired
	case errors.Is(err, ErrAlreadyVerified):
		return auditErrAlreadyVerified
	case errors.Is(err, ErrEmailNotVerified):
		return auditErrNotVerified
	case errors.Is(err, ErrIncorrectCode):
		return auditErrIncorrectCode
	case errors.Is(err, ErrCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrAttemptsExhausted):
		return auditErrAttemptsExhausted
	case errors.Is(err, ErrResendThrottled):
		return auditErrResendThrottled
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrDispatchFailure):
		return auditErrDispatchFailure
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrRateLimiterUnavailable),
		errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
