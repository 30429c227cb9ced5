package conversation

import "time"

// Outcome is the server's verdict on a remote event. The machine resolves
// destinations from outcomes only, never from raw input.
type Outcome string

const (
	OutcomeOK                 Outcome = "ok"
	OutcomeInvalidFormat      Outcome = "invalid_format"
	OutcomeNotFound           Outcome = "not_found"
	OutcomeCollision          Outcome = "collision"
	OutcomeCollisionExhausted Outcome = "collision_exhausted"
	OutcomeEmailRequired      Outcome = "email_required"
	OutcomeAlreadyVerified    Outcome = "already_verified"
	OutcomeNotVerified        Outcome = "not_verified"
	OutcomeCompleted          Outcome = "completed"
	OutcomeSent               Outcome = "sent"
	OutcomeResendThrottled    Outcome = "resend_throttled"
	OutcomeRateLimited        Outcome = "rate_limited"
	OutcomeDispatchFailed     Outcome = "dispatch_failed"
	OutcomeVerified           Outcome = "verified"
	OutcomeIncorrect          Outcome = "incorrect"
	OutcomeExpired            Outcome = "expired"
	OutcomeAttemptsExhausted  Outcome = "attempts_exhausted"
	OutcomeUnavailable        Outcome = "unavailable"
)

// Result is what a [Backend] call reports. SessionID is set by StartSession
// and, after AttemptsExhausted, names the replacement session (empty if the
// server could not create one).
type Result struct {
	Outcome           Outcome
	SessionID         string
	AttemptsRemaining int
	ResendsRemaining  int
	Wait              time.Duration
	Message           string
	Snapshot          Snapshot
}

// Notice tells the UI what to surface after a step. Copy is up to the UI.
type Notice uint8

const (
	NoticeNone Notice = iota
	NoticeInvalidName
	NoticeInvalidEmail
	NoticeInvalidCode
	NoticeIncorrectCode
	NoticeCodeExpired
	NoticeCodeSent
	NoticeResendThrottled
	NoticeRateLimited
	NoticeDispatchFailed
	NoticeSessionRestarted
	NoticeAlreadyVerified
	NoticeTimeout
	NoticeUnavailable
)

var noticeNames = map[Notice]string{
	NoticeNone:             "",
	NoticeInvalidName:      "invalid_name",
	NoticeInvalidEmail:     "invalid_email",
	NoticeInvalidCode:      "invalid_code",
	NoticeIncorrectCode:    "incorrect_code",
	NoticeCodeExpired:      "code_expired",
	NoticeCodeSent:         "code_sent",
	NoticeResendThrottled:  "resend_throttled",
	NoticeRateLimited:      "rate_limited",
	NoticeDispatchFailed:   "dispatch_failed",
	NoticeSessionRestarted: "session_restarted",
	NoticeAlreadyVerified:  "already_verified",
	NoticeTimeout:          "timeout",
	NoticeUnavailable:      "unavailable",
}

func (n Notice) String() string { return noticeNames[n] }

func noticeFor(o Outcome, guard guardKind) Notice {
	switch o {
	case OutcomeInvalidFormat:
		switch guard {
		case guardName:
			return NoticeInvalidName
		case guardEmail:
			return NoticeInvalidEmail
		case guardCode:
			return NoticeInvalidCode
		}
		return NoticeNone
	case OutcomeIncorrect:
		return NoticeIncorrectCode
	case OutcomeExpired:
		return NoticeCodeExpired
	case OutcomeSent:
		return NoticeCodeSent
	case OutcomeResendThrottled:
		return NoticeResendThrottled
	case OutcomeRateLimited:
		return NoticeRateLimited
	case OutcomeDispatchFailed:
		return NoticeDispatchFailed
	case OutcomeAttemptsExhausted, OutcomeNotFound:
		return NoticeSessionRestarted
	case OutcomeAlreadyVerified:
		return NoticeAlreadyVerified
	case OutcomeUnavailable, OutcomeCollisionExhausted:
		return NoticeUnavailable
	default:
		return NoticeNone
	}
}
