package goOnboard

import (
	"context"
	"fmt"

	"github.com/MrEthical07/goOnboard/internal"
)

// IssueIdentifier returns an identifier no session currently owns. When
// proposed is non-empty it is checked instead, as [Engine.ValidateIdentifier]
// does. Generation is retried up to Identifier.MaxIssueAttempts times; when
// every candidate collides the error is [ErrCollisionExhausted].
//
// The identifier is not reserved. [Engine.StartSession] claims it atomically
// and reports [ErrCollision] if another caller won the race.
func (e *Engine) IssueIdentifier(ctx context.Context, proposed string) (IdentifierResult, error) {
	if err := e.ready(); err != nil {
		return IdentifierResult{}, err
	}
	if err := e.checkRateLimit(ctx, "issue_identifier"); err != nil {
		return IdentifierResult{}, err
	}
	if proposed != "" {
		return e.validateIdentifier(ctx, proposed)
	}

	for attempt := 0; attempt < e.config.Identifier.MaxIssueAttempts; attempt++ {
		id, err := e.newIdentifier()
		if err != nil {
			return IdentifierResult{}, fmt.Errorf("generate identifier: %w", err)
		}
		if !internal.ValidSessionID(id) {
			e.metricInc(MetricIdentifierInvalid)
			continue
		}
		taken, err := e.store.Exists(ctx, id)
		if err != nil {
			return IdentifierResult{}, e.storeErr("issue_identifier", id, err)
		}
		if taken {
			e.metricInc(MetricIdentifierCollision)
			continue
		}
		e.metricInc(MetricIdentifierIssued)
		return IdentifierResult{
			Status:     IdentifierAvailable,
			Identifier: id,
			Message:    "identifier available",
		}, nil
	}

	e.metricInc(MetricIdentifierExhausted)
	e.emitAudit(ctx, auditEventIdentifierExhausted, false, "", ErrCollisionExhausted, nil)
	return IdentifierResult{
		Status:  IdentifierCollision,
		Message: "could not issue a free identifier",
	}, ErrCollisionExhausted
}

// ValidateIdentifier reports whether id is well formed and unused. The three
// verdicts map to [IdentifierInvalid] with [ErrInvalidFormat],
// [IdentifierCollision] with [ErrCollision], and [IdentifierAvailable].
func (e *Engine) ValidateIdentifier(ctx context.Context, id string) (IdentifierResult, error) {
	if err := e.ready(); err != nil {
		return IdentifierResult{}, err
	}
	if err := e.checkRateLimit(ctx, "validate_identifier"); err != nil {
		return IdentifierResult{}, err
	}
	return e.validateIdentifier(ctx, id)
}

func (e *Engine) validateIdentifier(ctx context.Context, id string) (IdentifierResult, error) {
	if !internal.ValidSessionID(id) {
		e.metricInc(MetricIdentifierInvalid)
		return IdentifierResult{
			Status:  IdentifierInvalid,
			Message: "identifier is not a valid session identifier",
		}, ErrInvalidFormat
	}

	taken, err := e.store.Exists(ctx, id)
	if err != nil {
		return IdentifierResult{}, e.storeErr("validate_identifier", id, err)
	}
	if taken {
		e.metricInc(MetricIdentifierCollision)
		return IdentifierResult{
			Status:  IdentifierCollision,
			Message: "identifier already belongs to a session",
		}, ErrCollision
	}
	return IdentifierResult{
		Status:     IdentifierAvailable,
		Identifier: id,
		Message:    "identifier available",
	}, nil
}
