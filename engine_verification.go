package goOnboard

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goOnboard/internal"
	"github.com/MrEthical07/goOnboard/session"
	"github.com/sirupsen/logrus"
)

// SendCode issues a fresh code for the session email and mails it. Any
// previously active code stops working immediately.
//
// Every send spends one unit of the session send budget and starts the
// resend cooldown; see [Engine.ResendCode]. The record is committed before
// the mailer runs, so a delivery failure returns the committed
// [SendResult] together with [ErrDispatchFailure].
func (e *Engine) SendCode(ctx context.Context, sessionID string) (SendResult, error) {
	return e.sendCode(ctx, sessionID, false)
}

// ResendCode replaces the active code. A send is refused with a
// [*ThrottleError] while the cooldown since the last send is running or the
// budget is spent; the budget refills once Resend.Window (by default the code
// lifetime) has passed since the last send. A refused send leaves the stored
// code and expiry untouched.
func (e *Engine) ResendCode(ctx context.Context, sessionID string) (SendResult, error) {
	return e.sendCode(ctx, sessionID, true)
}

func (e *Engine) sendCode(ctx context.Context, sessionID string, resend bool) (SendResult, error) {
	if err := e.ready(); err != nil {
		return SendResult{}, err
	}
	if !internal.ValidSessionID(sessionID) {
		return SendResult{}, ErrInvalidFormat
	}

	op, event := "send_code", auditEventCodeIssued
	if resend {
		op, event = "resend_code", auditEventCodeResent
	}

	if err := e.checkRateLimit(ctx, op); err != nil {
		return SendResult{}, err
	}

	start := time.Now()
	defer e.observeLatency(MetricSendLatency, start)

	code, err := e.newCode()
	if err != nil {
		return SendResult{}, fmt.Errorf("generate code: %w", err)
	}

	now := e.clock()
	ttl := e.config.Verification.CodeTTL
	cooldown := e.config.Resend.Cooldown

	rec, err := e.store.Update(ctx, sessionID, func(rec *session.Record) (session.Action, error) {
		if rec.Completed() {
			return session.ActionNone, ErrSessionCompleted
		}
		if rec.EmailVerified {
			return session.ActionNone, ErrAlreadyVerified
		}
		if !session.ValidEmail(rec.Email) {
			return session.ActionNone, ErrEmailRequired
		}

		if e.budgetRefilled(rec, now) {
			rec.ResendAttempts = 0
		}
		if rec.ResendAttempts >= rec.MaxResendAttempts {
			return session.ActionNone, &ThrottleError{
				Wait: rec.LastResendAt.Add(e.config.resendWindow()).Sub(now),
			}
		}
		if !rec.LastResendAt.IsZero() {
			if next := rec.LastResendAt.Add(cooldown); now.Before(next) {
				return session.ActionNone, &ThrottleError{
					Wait:             next.Sub(now),
					ResendsRemaining: rec.ResendsRemaining(),
				}
			}
		}

		rec.VerificationCode = code
		rec.VerificationExpiresAt = now.Add(ttl)
		rec.VerificationAttempts = 0
		rec.ResendAttempts++
		rec.LastResendAt = now
		rec.UpdatedAt = now
		return session.ActionSave, nil
	})
	if err != nil {
		err = e.storeErr(op, sessionID, err)
		var throttle *ThrottleError
		if errors.As(err, &throttle) {
			e.metricInc(MetricResendThrottled)
			e.emitAudit(ctx, auditEventResendThrottled, false, sessionID, err, func() map[string]string {
				return map[string]string{"wait_seconds": fmt.Sprint(WaitSeconds(throttle.Wait))}
			})
			return SendResult{}, err
		}
		e.emitAudit(ctx, event, false, sessionID, err, nil)
		return SendResult{}, err
	}

	result := SendResult{
		SessionID:        rec.ID,
		Email:            rec.Email,
		ExpiresAt:        rec.VerificationExpiresAt,
		ResendsRemaining: rec.ResendsRemaining(),
		NextSendAt:       now.Add(cooldown),
	}
	if result.ResendsRemaining == 0 {
		result.NextSendAt = now.Add(e.config.resendWindow())
	}

	if err := e.mailer.SendVerificationCode(ctx, rec.Email, rec.DisplayName, code, rec.VerificationExpiresAt); err != nil {
		e.metricInc(MetricDispatchFailure)
		e.log.WithFields(logrus.Fields{
			"op":         op,
			"session_id": sessionID,
			"error":      err,
		}).Error("verification code dispatch failed")
		err = fmt.Errorf("%w: %v", ErrDispatchFailure, err)
		e.emitAudit(ctx, event, false, sessionID, err, nil)
		return result, err
	}

	if resend {
		e.metricInc(MetricCodeResent)
	} else {
		e.metricInc(MetricCodeIssued)
	}
	e.emitAudit(ctx, event, true, sessionID, nil, func() map[string]string {
		return map[string]string{"resends_remaining": fmt.Sprint(result.ResendsRemaining)}
	})
	return result, nil
}

// budgetRefilled reports whether a full window has passed since the last send.
func (e *Engine) budgetRefilled(rec *session.Record, now time.Time) bool {
	if rec.LastResendAt.IsZero() || rec.ResendAttempts == 0 {
		return false
	}
	return !now.Before(rec.LastResendAt.Add(e.config.resendWindow()))
}

type validateOutcome int

const (
	validateVerified validateOutcome = iota
	validateAlreadyVerified
	validateIncorrect
	validateExhausted
)

// ValidateCode checks code against the active code. A nil error means the
// email is verified. Once a session is verified its code is gone, so any
// well-formed submission (a duplicate from a second tab) succeeds again
// without being compared and without touching counters. Malformed input is
// still rejected first.
//
// Failures, in evaluation order:
//   - [ErrInvalidFormat] for a code of the wrong shape; no attempt is spent.
//   - [ErrCodeExpired] when no code is active or it is past its expiry, even
//     if the characters match; no attempt is spent.
//   - [*IncorrectCodeError] for a mismatch that leaves attempts.
//   - [*AttemptsExhaustedError] when the mismatch spends the last attempt.
//     The session is deleted and a replacement is created.
func (e *Engine) ValidateCode(ctx context.Context, sessionID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !internal.ValidSessionID(sessionID) {
		return ErrInvalidFormat
	}
	if err := e.checkRateLimit(ctx, "validate_code"); err != nil {
		return err
	}

	start := time.Now()
	defer e.observeLatency(MetricValidateLatency, start)

	if !internal.ValidCodeShape(code, e.config.Verification.CodeLength, e.config.Verification.CodeAlphabet) {
		return ErrInvalidFormat
	}

	now := e.clock()
	var (
		outcome   validateOutcome
		remaining int
		origin    string
		consent   bool
	)
	_, err := e.store.Update(ctx, sessionID, func(rec *session.Record) (session.Action, error) {
		if rec.EmailVerified {
			outcome = validateAlreadyVerified
			return session.ActionNone, nil
		}
		if rec.CodeExpired(now) {
			return session.ActionNone, ErrCodeExpired
		}

		if subtle.ConstantTimeCompare([]byte(code), []byte(rec.VerificationCode)) != 1 {
			rec.VerificationAttempts++
			if rec.VerificationAttempts >= rec.MaxVerificationAttempts {
				outcome = validateExhausted
				origin, consent = rec.Origin, rec.DataConsent
				return session.ActionDelete, nil
			}
			outcome = validateIncorrect
			remaining = rec.AttemptsRemaining()
			rec.UpdatedAt = now
			return session.ActionSave, nil
		}

		outcome = validateVerified
		rec.EmailVerified = true
		rec.ClearCode()
		rec.UpdatedAt = now
		return session.ActionSave, nil
	})
	if err != nil {
		err = e.storeErr("validate_code", sessionID, err)
		if errors.Is(err, ErrCodeExpired) {
			e.metricInc(MetricCodeExpired)
		}
		e.emitAudit(ctx, auditEventCodeValidated, false, sessionID, err, nil)
		return err
	}

	switch outcome {
	case validateAlreadyVerified:
		return nil
	case validateIncorrect:
		e.metricInc(MetricCodeIncorrect)
		err := &IncorrectCodeError{AttemptsRemaining: remaining}
		e.emitAudit(ctx, auditEventCodeValidated, false, sessionID, err, func() map[string]string {
			return map[string]string{"attempts_remaining": fmt.Sprint(remaining)}
		})
		return err
	case validateExhausted:
		e.metricInc(MetricAttemptsExhausted)
		e.emitAudit(ctx, auditEventAttemptsExhausted, false, sessionID, ErrAttemptsExhausted, nil)
		exhausted := &AttemptsExhaustedError{}
		if next, err := e.replace(ctx, sessionID, origin, consent); err == nil {
			exhausted.NextSessionID = next.ID
		}
		return exhausted
	default:
		e.metricInc(MetricCodeVerified)
		e.emitAudit(ctx, auditEventCodeValidated, true, sessionID, nil, nil)
		return nil
	}
}
