package goOnboard

import (
	"context"
	"time"

	"github.com/MrEthical07/goOnboard/conversation"
)

// IdentifierStatus is the verdict on a proposed or generated identifier.
type IdentifierStatus string

const (
	IdentifierAvailable IdentifierStatus = "available"
	IdentifierCollision IdentifierStatus = "collision"
	IdentifierInvalid   IdentifierStatus = "invalid"
)

// IdentifierResult is returned by [Engine.IssueIdentifier]. Identifier is
// empty unless Status is IdentifierAvailable.
type IdentifierResult struct {
	Status     IdentifierStatus
	Identifier string
	Message    string
}

// StartOptions configures [Engine.StartSession].
type StartOptions struct {
	// Identifier, when set, is used instead of a generated one. It must be a
	// canonical v4 UUID not already in use.
	Identifier  string
	DataConsent bool
}

// SendResult describes a committed code send.
type SendResult struct {
	SessionID        string
	Email            string
	ExpiresAt        time.Time
	ResendsRemaining int
	NextSendAt       time.Time
}

// SessionView is the caller-facing view of a session record. It never
// includes the verification code.
type SessionView struct {
	ID                string
	DisplayName       string
	Email             string
	EmailVerified     bool
	DataConsent       bool
	CodeActive        bool
	CodeExpiresAt     time.Time
	AttemptsRemaining int
	ResendsRemaining  int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       time.Time
	Snapshot          conversation.Snapshot
	State             conversation.State
}

// Mailer delivers verification codes. Implementations live in the mail
// package; tests use in-memory fakes.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, displayName, code string, expiresAt time.Time) error
}
