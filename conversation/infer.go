package conversation

import (
	"time"

	"github.com/MrEthical07/goOnboard/session"
)

// Snapshot is the part of a session record the conversation cares about.
type Snapshot struct {
	HasName       bool `json:"has_name"`
	HasEmail      bool `json:"has_email"`
	EmailVerified bool `json:"email_verified"`
	CodeActive    bool `json:"code_active"`
	Completed     bool `json:"completed"`
}

// SnapshotOf reduces rec to a [Snapshot] as of now. A stored code past its
// expiry does not count as active.
func SnapshotOf(rec *session.Record, now time.Time) Snapshot {
	if rec == nil {
		return Snapshot{}
	}
	return Snapshot{
		HasName:       rec.DisplayName != "",
		HasEmail:      rec.Email != "",
		EmailVerified: rec.EmailVerified,
		CodeActive:    rec.HasActiveCode() && !rec.CodeExpired(now),
		Completed:     rec.Completed(),
	}
}

// Infer maps a snapshot to the canonical state a resumed client starts in.
func Infer(s Snapshot) State {
	switch {
	case s.Completed:
		return End
	case s.EmailVerified:
		return VerificationComplete
	case !s.HasName:
		return CollectingName
	case !s.HasEmail:
		return CollectingEmail
	case s.CodeActive:
		return AwaitingCode
	default:
		return SendingVerification
	}
}
