package goOnboard

import (
	"context"
	"errors"

	"github.com/MrEthical07/goOnboard/conversation"
)

// OutcomeOf maps an engine error to the outcome a conversation resolves on.
// A nil error is [conversation.OutcomeOK].
func OutcomeOf(err error) conversation.Outcome {
	switch {
	case err == nil:
		return conversation.OutcomeOK
	case errors.Is(err, ErrInvalidFormat):
		return conversation.OutcomeInvalidFormat
	case errors.Is(err, ErrSessionNotFound):
		return conversation.OutcomeNotFound
	case errors.Is(err, ErrCollisionExhausted):
		return conversation.OutcomeCollisionExhausted
	case errors.Is(err, ErrCollision):
		return conversation.OutcomeCollision
	case errors.Is(err, ErrEmailRequired):
		return conversation.OutcomeEmailRequired
	case errors.Is(err, ErrAlreadyVerified):
		return conversation.OutcomeAlreadyVerified
	case errors.Is(err, ErrEmailNotVerified):
		return conversation.OutcomeNotVerified
	case errors.Is(err, ErrSessionCompleted):
		return conversation.OutcomeCompleted
	case errors.Is(err, ErrResendThrottled):
		return conversation.OutcomeResendThrottled
	case errors.Is(err, ErrRateLimited):
		return conversation.OutcomeRateLimited
	case errors.Is(err, ErrDispatchFailure):
		return conversation.OutcomeDispatchFailed
	case errors.Is(err, ErrIncorrectCode):
		return conversation.OutcomeIncorrect
	case errors.Is(err, ErrCodeExpired):
		return conversation.OutcomeExpired
	case errors.Is(err, ErrAttemptsExhausted):
		return conversation.OutcomeAttemptsExhausted
	default:
		return conversation.OutcomeUnavailable
	}
}

// ResultOf converts an engine error into a conversation result, copying the
// data carried by typed errors.
func ResultOf(err error) conversation.Result {
	res := conversation.Result{Outcome: OutcomeOf(err)}

	var (
		throttle  *ThrottleError
		limited   *RateLimitError
		incorrect *IncorrectCodeError
		exhausted *AttemptsExhaustedError
	)
	switch {
	case errors.As(err, &throttle):
		res.Wait = throttle.Wait
		res.ResendsRemaining = throttle.ResendsRemaining
	case errors.As(err, &limited):
		res.Wait = limited.RetryAfter
	case errors.As(err, &incorrect):
		res.AttemptsRemaining = incorrect.AttemptsRemaining
	case errors.As(err, &exhausted):
		res.SessionID = exhausted.NextSessionID
	}
	return res
}

// ConversationBackend adapts the engine to [conversation.Backend] for
// in-process clients. Sessions it starts carry dataConsent.
func (e *Engine) ConversationBackend(dataConsent bool) conversation.Backend {
	return &engineBackend{engine: e, consent: dataConsent}
}

type engineBackend struct {
	engine  *Engine
	consent bool
}

func viewResult(v SessionView, err error) (conversation.Result, error) {
	if err != nil {
		return ResultOf(err), nil
	}
	return conversation.Result{
		Outcome:           conversation.OutcomeOK,
		SessionID:         v.ID,
		AttemptsRemaining: v.AttemptsRemaining,
		ResendsRemaining:  v.ResendsRemaining,
		Snapshot:          v.Snapshot,
	}, nil
}

func sendResult(r SendResult, err error) (conversation.Result, error) {
	res := ResultOf(err)
	if err == nil {
		res.Outcome = conversation.OutcomeSent
	}
	if err == nil || errors.Is(err, ErrDispatchFailure) {
		res.SessionID = r.SessionID
		res.ResendsRemaining = r.ResendsRemaining
	}
	return res, nil
}

func (b *engineBackend) StartSession(ctx context.Context) (conversation.Result, error) {
	return viewResult(b.engine.StartSession(ctx, StartOptions{DataConsent: b.consent}))
}

func (b *engineBackend) Session(ctx context.Context, sessionID string) (conversation.Result, error) {
	return viewResult(b.engine.Session(ctx, sessionID))
}

func (b *engineBackend) SetName(ctx context.Context, sessionID, name string) (conversation.Result, error) {
	return viewResult(b.engine.SetName(ctx, sessionID, name))
}

func (b *engineBackend) SetEmail(ctx context.Context, sessionID, email string) (conversation.Result, error) {
	return viewResult(b.engine.SetEmail(ctx, sessionID, email))
}

func (b *engineBackend) SendCode(ctx context.Context, sessionID string) (conversation.Result, error) {
	return sendResult(b.engine.SendCode(ctx, sessionID))
}

func (b *engineBackend) ResendCode(ctx context.Context, sessionID string) (conversation.Result, error) {
	return sendResult(b.engine.ResendCode(ctx, sessionID))
}

func (b *engineBackend) ValidateCode(ctx context.Context, sessionID, code string) (conversation.Result, error) {
	err := b.engine.ValidateCode(ctx, sessionID, code)
	if err == nil {
		return conversation.Result{Outcome: conversation.OutcomeVerified, SessionID: sessionID}, nil
	}
	return ResultOf(err), nil
}

func (b *engineBackend) Complete(ctx context.Context, sessionID string) (conversation.Result, error) {
	return viewResult(b.engine.CompleteSession(ctx, sessionID))
}
