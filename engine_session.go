package goOnboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goOnboard/internal"
	"github.com/MrEthical07/goOnboard/session"
	"github.com/sirupsen/logrus"
)

// StartSession creates a session for the caller. With opts.Identifier set
// the session takes that identifier or fails with [ErrCollision]; otherwise
// identifiers are generated until one is free, at most
// Identifier.MaxIssueAttempts times.
func (e *Engine) StartSession(ctx context.Context, opts StartOptions) (SessionView, error) {
	if err := e.ready(); err != nil {
		return SessionView{}, err
	}
	if err := e.checkRateLimit(ctx, "start_session"); err != nil {
		return SessionView{}, err
	}

	origin := clientIPFromContext(ctx)
	now := e.clock()

	var (
		rec *session.Record
		err error
	)
	if opts.Identifier != "" {
		if !internal.ValidSessionID(opts.Identifier) {
			e.metricInc(MetricIdentifierInvalid)
			return SessionView{}, ErrInvalidFormat
		}
		rec = e.newRecord(opts.Identifier, origin, opts.DataConsent, now)
		if err = e.store.Create(ctx, rec); err != nil {
			err = e.storeErr("start_session", opts.Identifier, err)
			if errors.Is(err, ErrCollision) {
				e.metricInc(MetricIdentifierCollision)
			}
		}
	} else {
		rec, err = e.createFresh(ctx, origin, opts.DataConsent)
	}
	if err != nil {
		e.emitAudit(ctx, auditEventSessionStarted, false, opts.Identifier, err, nil)
		return SessionView{}, err
	}

	e.metricInc(MetricSessionStarted)
	e.emitAudit(ctx, auditEventSessionStarted, true, rec.ID, nil, func() map[string]string {
		return map[string]string{"data_consent": fmt.Sprint(rec.DataConsent)}
	})
	return e.viewOf(rec, now), nil
}

// createFresh stores a new session under a generated identifier, retrying
// on collision.
func (e *Engine) createFresh(ctx context.Context, origin string, consent bool) (*session.Record, error) {
	now := e.clock()
	for attempt := 0; attempt < e.config.Identifier.MaxIssueAttempts; attempt++ {
		id, err := e.newIdentifier()
		if err != nil {
			return nil, fmt.Errorf("generate identifier: %w", err)
		}
		if !internal.ValidSessionID(id) {
			e.metricInc(MetricIdentifierInvalid)
			continue
		}

		rec := e.newRecord(id, origin, consent, now)
		err = e.store.Create(ctx, rec)
		if err == nil {
			e.metricInc(MetricIdentifierIssued)
			return rec, nil
		}
		if errors.Is(err, session.ErrExists) {
			e.metricInc(MetricIdentifierCollision)
			continue
		}
		return nil, e.storeErr("create_session", id, err)
	}

	e.metricInc(MetricIdentifierExhausted)
	e.emitAudit(ctx, auditEventIdentifierExhausted, false, "", ErrCollisionExhausted, nil)
	return nil, ErrCollisionExhausted
}

// Session returns the current view of a session.
func (e *Engine) Session(ctx context.Context, sessionID string) (SessionView, error) {
	if err := e.ready(); err != nil {
		return SessionView{}, err
	}
	if !internal.ValidSessionID(sessionID) {
		return SessionView{}, ErrInvalidFormat
	}

	rec, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return SessionView{}, e.storeErr("get_session", sessionID, err)
	}
	return e.viewOf(rec, e.clock()), nil
}

// SetName stores the display name after NFC normalization. Names must
// contain only letters and spaces.
func (e *Engine) SetName(ctx context.Context, sessionID, name string) (SessionView, error) {
	if err := e.ready(); err != nil {
		return SessionView{}, err
	}
	if !internal.ValidSessionID(sessionID) || !session.ValidName(name) {
		return SessionView{}, ErrInvalidFormat
	}
	name = session.NormalizeName(name)

	now := e.clock()
	rec, err := e.store.Update(ctx, sessionID, func(rec *session.Record) (session.Action, error) {
		if rec.Completed() {
			return session.ActionNone, ErrSessionCompleted
		}
		if rec.DisplayName == name {
			return session.ActionNone, nil
		}
		rec.DisplayName = name
		rec.UpdatedAt = now
		return session.ActionSave, nil
	})
	if err != nil {
		return SessionView{}, e.storeErr("set_name", sessionID, err)
	}
	return e.viewOf(rec, now), nil
}

// SetEmail stores the address. Changing it discards any active code and its
// attempt count; the send budget is kept. A verified email cannot change.
func (e *Engine) SetEmail(ctx context.Context, sessionID, email string) (SessionView, error) {
	if err := e.ready(); err != nil {
		return SessionView{}, err
	}
	if !internal.ValidSessionID(sessionID) || !session.ValidEmail(email) {
		return SessionView{}, ErrInvalidFormat
	}
	email = session.NormalizeEmail(email)

	now := e.clock()
	rec, err := e.store.Update(ctx, sessionID, func(rec *session.Record) (session.Action, error) {
		if rec.Completed() {
			return session.ActionNone, ErrSessionCompleted
		}
		if rec.EmailVerified {
			return session.ActionNone, ErrAlreadyVerified
		}
		if rec.Email == email {
			return session.ActionNone, nil
		}
		rec.Email = email
		rec.ClearCode()
		rec.VerificationAttempts = 0
		rec.UpdatedAt = now
		return session.ActionSave, nil
	})
	if err != nil {
		return SessionView{}, e.storeErr("set_email", sessionID, err)
	}
	return e.viewOf(rec, now), nil
}

// CompleteSession finalizes a verified session. Completing twice is a no-op.
func (e *Engine) CompleteSession(ctx context.Context, sessionID string) (SessionView, error) {
	if err := e.ready(); err != nil {
		return SessionView{}, err
	}
	if !internal.ValidSessionID(sessionID) {
		return SessionView{}, ErrInvalidFormat
	}

	now := e.clock()
	completed := false
	rec, err := e.store.Update(ctx, sessionID, func(rec *session.Record) (session.Action, error) {
		completed = false
		if rec.Completed() {
			return session.ActionNone, nil
		}
		if !rec.EmailVerified {
			return session.ActionNone, ErrEmailNotVerified
		}
		rec.CompletedAt = now
		rec.UpdatedAt = now
		completed = true
		return session.ActionSave, nil
	})
	if err != nil {
		err = e.storeErr("complete_session", sessionID, err)
		e.emitAudit(ctx, auditEventSessionCompleted, false, sessionID, err, nil)
		return SessionView{}, err
	}
	if completed {
		e.metricInc(MetricSessionCompleted)
		e.emitAudit(ctx, auditEventSessionCompleted, true, sessionID, nil, nil)
	}
	return e.viewOf(rec, now), nil
}

// ResetSession destroys a session and creates a replacement with the same
// origin and consent. The returned view describes the replacement.
func (e *Engine) ResetSession(ctx context.Context, sessionID string) (SessionView, error) {
	if err := e.ready(); err != nil {
		return SessionView{}, err
	}
	if !internal.ValidSessionID(sessionID) {
		return SessionView{}, ErrInvalidFormat
	}
	if err := e.checkRateLimit(ctx, "reset_session"); err != nil {
		return SessionView{}, err
	}

	var origin string
	var consent bool
	_, err := e.store.Update(ctx, sessionID, func(rec *session.Record) (session.Action, error) {
		origin, consent = rec.Origin, rec.DataConsent
		return session.ActionDelete, nil
	})
	if err != nil {
		return SessionView{}, e.storeErr("reset_session", sessionID, err)
	}

	next, err := e.replace(ctx, sessionID, origin, consent)
	if err != nil {
		return SessionView{}, err
	}
	return e.viewOf(next, e.clock()), nil
}

// replace creates the successor of a destroyed session.
func (e *Engine) replace(ctx context.Context, previousID, origin string, consent bool) (*session.Record, error) {
	next, err := e.createFresh(ctx, origin, consent)
	if err != nil {
		e.log.WithFields(logrus.Fields{
			"op":         "replace_session",
			"session_id": previousID,
			"error":      err,
		}).Warn("replacement session not created")
		return nil, err
	}

	e.metricInc(MetricSessionReset)
	e.emitAudit(ctx, auditEventSessionReset, true, previousID, nil, func() map[string]string {
		return map[string]string{"next_session_id": next.ID}
	})
	return next, nil
}
