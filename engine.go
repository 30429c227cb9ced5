package goOnboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goOnboard/conversation"
	"github.com/MrEthical07/goOnboard/internal/rate"
	"github.com/MrEthical07/goOnboard/session"
	"github.com/sirupsen/logrus"
)

// Engine runs identifier issuance, session operations and email verification
// against a [session.Store]. It is safe for concurrent use; every counter
// change is a single compare-and-set on the session record.
type Engine struct {
	config  Config
	store   session.Store
	limiter *rate.Limiter
	mailer  Mailer
	audit   *auditDispatcher
	metrics *Metrics
	log     logrus.FieldLogger

	now           func() time.Time
	newIdentifier func() (string, error)
	newCode       func() (string, error)
}

// Close flushes pending audit events. It does not close the store or Redis client.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return defaultConfig()
	}
	return cloneConfig(e.config)
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeLatency(id MetricID, start time.Time) {
	if e == nil || e.metrics == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

// checkRateLimit counts one request for the caller's origin. Requests without
// an origin are not limited. Limiter failures refuse the request.
func (e *Engine) checkRateLimit(ctx context.Context, op string) error {
	if e.limiter == nil {
		return nil
	}
	origin := clientIPFromContext(ctx)
	if origin == "" {
		return nil
	}

	d, err := e.limiter.Allow(ctx, origin)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.emitRateLimit(ctx, op, d.RetryAfter)
		return &RateLimitError{RetryAfter: d.RetryAfter}
	default:
		e.log.WithFields(logrus.Fields{
			"op":     op,
			"origin": origin,
			"error":  err,
		}).Error("rate limiter unavailable")
		return fmt.Errorf("%w: %v", ErrRateLimiterUnavailable, err)
	}
}

// storeErr maps store failures onto the engine taxonomy. Errors raised by
// update callbacks are already engine errors and pass through.
func (e *Engine) storeErr(op, sessionID string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrExists):
		return ErrCollision
	case errors.Is(err, session.ErrUnavailable),
		errors.Is(err, session.ErrConflict),
		errors.Is(err, session.ErrCorrupt),
		errors.Is(err, session.ErrInvariantViolated),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		e.metricInc(MetricStoreFailure)
		e.log.WithFields(logrus.Fields{
			"op":         op,
			"session_id": sessionID,
			"error":      err,
		}).Error("session store failure")
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}

func (e *Engine) newRecord(id, origin string, consent bool, now time.Time) *session.Record {
	return &session.Record{
		ID:                      id,
		CreatedAt:               now,
		UpdatedAt:               now,
		Origin:                  origin,
		DataConsent:             consent,
		MaxVerificationAttempts: e.config.Verification.MaxAttempts,
		MaxResendAttempts:       e.config.Resend.MaxAttempts,
	}
}

func (e *Engine) viewOf(rec *session.Record, now time.Time) SessionView {
	snap := conversation.SnapshotOf(rec, now)
	resends := rec.ResendsRemaining()
	if e.budgetRefilled(rec, now) {
		resends = rec.MaxResendAttempts
	}
	v := SessionView{
		ID:                rec.ID,
		DisplayName:       rec.DisplayName,
		Email:             rec.Email,
		EmailVerified:     rec.EmailVerified,
		DataConsent:       rec.DataConsent,
		CodeActive:        snap.CodeActive,
		AttemptsRemaining: rec.AttemptsRemaining(),
		ResendsRemaining:  resends,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
		CompletedAt:       rec.CompletedAt,
		Snapshot:          snap,
		State:             conversation.Infer(snap),
	}
	if snap.CodeActive {
		v.CodeExpiresAt = rec.VerificationExpiresAt
	}
	return v
}
