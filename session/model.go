package session

import (
	"errors"
	"time"
)

// ErrInvariantViolated is returned by [Record.CheckInvariants] when a record
// mixes verification fields in a combination that can never be persisted.
var ErrInvariantViolated = errors.New("session record invariant violated")

// Record is one onboarding attempt. Zero values stand in for nullable columns:
// an empty Email, VerificationCode or zero timestamp means "not set".
type Record struct {
	ID          string
	DisplayName string
	Email       string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time

	Origin      string
	DataConsent bool

	VerificationCode        string
	VerificationAttempts    int
	MaxVerificationAttempts int
	VerificationExpiresAt   time.Time
	EmailVerified           bool

	ResendAttempts    int
	MaxResendAttempts int
	LastResendAt      time.Time

	// Version is bumped by the store on every committed write and used for
	// compare-and-set. Callers never set it.
	Version int64
}

// Clone returns a copy safe to mutate independently of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

// HasActiveCode reports whether a code is currently stored, regardless of
// whether it has expired.
func (r *Record) HasActiveCode() bool {
	return r != nil && r.VerificationCode != ""
}

// CodeExpired reports whether the stored code is absent or past its window at now.
func (r *Record) CodeExpired(now time.Time) bool {
	if !r.HasActiveCode() || r.VerificationExpiresAt.IsZero() {
		return true
	}
	return now.After(r.VerificationExpiresAt)
}

// Completed reports whether the onboarding attempt has been finalized.
func (r *Record) Completed() bool {
	return r != nil && !r.CompletedAt.IsZero()
}

// AttemptsRemaining returns how many wrong submissions the active code tolerates.
func (r *Record) AttemptsRemaining() int {
	remaining := r.MaxVerificationAttempts - r.VerificationAttempts
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ResendsRemaining returns how many sends are left in the current budget.
func (r *Record) ResendsRemaining() int {
	remaining := r.MaxResendAttempts - r.ResendAttempts
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ClearCode drops the active code and its expiry together.
func (r *Record) ClearCode() {
	r.VerificationCode = ""
	r.VerificationExpiresAt = time.Time{}
}

// CheckInvariants validates the cross-field rules every persisted record obeys.
func (r *Record) CheckInvariants() error {
	if r == nil {
		return ErrInvariantViolated
	}
	if r.ID == "" {
		return errors.Join(ErrInvariantViolated, errors.New("empty id"))
	}
	if (r.VerificationCode == "") != r.VerificationExpiresAt.IsZero() {
		return errors.Join(ErrInvariantViolated, errors.New("code and expiry must be set together"))
	}
	if r.VerificationAttempts < 0 || r.VerificationAttempts > r.MaxVerificationAttempts {
		return errors.Join(ErrInvariantViolated, errors.New("verification attempts out of range"))
	}
	if r.ResendAttempts < 0 || r.ResendAttempts > r.MaxResendAttempts {
		return errors.Join(ErrInvariantViolated, errors.New("resend attempts out of range"))
	}
	if r.EmailVerified && r.VerificationCode != "" {
		return errors.Join(ErrInvariantViolated, errors.New("verified session still holds a code"))
	}
	return nil
}
