package httpapi

import (
	"time"

	goOnboard "github.com/MrEthical07/goOnboard"
	"github.com/MrEthical07/goOnboard/conversation"
)

// Response is the body of every API reply.
type Response struct {
	Outcome conversation.Outcome `json:"outcome"`
	Message string               `json:"message"`

	Status     goOnboard.IdentifierStatus `json:"status,omitempty"`
	Identifier string                     `json:"identifier,omitempty"`

	SessionID       string       `json:"session_id,omitempty"`
	Ticket          string       `json:"ticket,omitempty"`
	TicketExpiresAt *time.Time   `json:"ticket_expires_at,omitempty"`
	State           string       `json:"state,omitempty"`
	Session         *SessionBody `json:"session,omitempty"`

	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	ResendsRemaining  *int       `json:"resends_remaining,omitempty"`
	AttemptsRemaining *int       `json:"attempts_remaining,omitempty"`
	WaitSeconds       int        `json:"wait_seconds,omitempty"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
}

// SessionBody is the JSON form of [goOnboard.SessionView].
type SessionBody struct {
	ID                string                `json:"id"`
	DisplayName       string                `json:"display_name,omitempty"`
	Email             string                `json:"email,omitempty"`
	EmailVerified     bool                  `json:"email_verified"`
	DataConsent       bool                  `json:"data_consent"`
	CodeActive        bool                  `json:"code_active"`
	CodeExpiresAt     *time.Time            `json:"code_expires_at,omitempty"`
	AttemptsRemaining int                   `json:"attempts_remaining"`
	ResendsRemaining  int                   `json:"resends_remaining"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
	CompletedAt       *time.Time            `json:"completed_at,omitempty"`
	Snapshot          conversation.Snapshot `json:"snapshot"`
	State             string                `json:"state"`
}

type identifierRequest struct {
	Identifier string `json:"identifier"`
}

type startRequest struct {
	Identifier  string `json:"identifier"`
	DataConsent bool   `json:"data_consent"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type codeRequest struct {
	Code string `json:"code"`
}

func sessionBody(v goOnboard.SessionView) *SessionBody {
	return &SessionBody{
		ID:                v.ID,
		DisplayName:       v.DisplayName,
		Email:             v.Email,
		EmailVerified:     v.EmailVerified,
		DataConsent:       v.DataConsent,
		CodeActive:        v.CodeActive,
		CodeExpiresAt:     optionalTime(v.CodeExpiresAt),
		AttemptsRemaining: v.AttemptsRemaining,
		ResendsRemaining:  v.ResendsRemaining,
		CreatedAt:         v.CreatedAt,
		UpdatedAt:         v.UpdatedAt,
		CompletedAt:       optionalTime(v.CompletedAt),
		Snapshot:          v.Snapshot,
		State:             v.State.String(),
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func intPtr(n int) *int { return &n }

var messages = map[conversation.Outcome]string{
	conversation.OutcomeOK:                 "ok",
	conversation.OutcomeInvalidFormat:      "the input is not in the expected format",
	conversation.OutcomeNotFound:           "session not found",
	conversation.OutcomeCollision:          "identifier already in use",
	conversation.OutcomeCollisionExhausted: "could not allocate an identifier, try again later",
	conversation.OutcomeEmailRequired:      "an email address is required first",
	conversation.OutcomeAlreadyVerified:    "email already verified",
	conversation.OutcomeNotVerified:        "email not verified yet",
	conversation.OutcomeCompleted:          "session already completed",
	conversation.OutcomeSent:               "verification code sent",
	conversation.OutcomeResendThrottled:    "please wait before requesting another code",
	conversation.OutcomeRateLimited:        "too many requests",
	conversation.OutcomeDispatchFailed:     "the code could not be delivered, try again shortly",
	conversation.OutcomeVerified:           "email verified",
	conversation.OutcomeIncorrect:          "incorrect code",
	conversation.OutcomeExpired:            "code expired, request a new one",
	conversation.OutcomeAttemptsExhausted:  "too many incorrect codes, a new session was started",
	conversation.OutcomeUnavailable:        "service temporarily unavailable",
}

func messageFor(o conversation.Outcome) string {
	if m, ok := messages[o]; ok {
		return m
	}
	return string(o)
}
