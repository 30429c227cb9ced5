package goOnboard

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goOnboard/conversation"
)

func TestStartSessionRecordsOriginAndConsent(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := WithClientIP(context.Background(), "192.0.2.44")

	view, err := h.engine.StartSession(ctx, StartOptions{DataConsent: true})
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if view.State != conversation.CollectingName {
		t.Fatalf("expected %s, got %s", conversation.CollectingName, view.State)
	}
	if view.AttemptsRemaining != 3 || view.ResendsRemaining != 3 {
		t.Fatalf("unexpected budgets: %+v", view)
	}

	rec := h.record(t, view.ID)
	if rec.Origin != "192.0.2.44" || !rec.DataConsent {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.CreatedAt.Equal(h.clock.Now()) {
		t.Fatalf("expected CreatedAt %v, got %v", h.clock.Now(), rec.CreatedAt)
	}
	if ttl := h.mr.TTL("obs:" + view.ID); ttl != 24*time.Hour {
		t.Fatalf("expected 24h TTL, got %v", ttl)
	}
}

func TestSessionLookup(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	_, err := h.engine.Session(ctx, "not-a-session")
	requireIs(t, err, ErrInvalidFormat)

	_, err = h.engine.Session(ctx, "5b0f8c5e-6a4e-4d8e-9a51-3f1d1c2b7a10")
	requireIs(t, err, ErrSessionNotFound)
}

func TestSetNameValidatesAndNormalizes(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	view, err := h.engine.StartSession(ctx, StartOptions{})
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	for _, bad := range []string{"", "   ", "R2D2", "Ada!"} {
		_, err := h.engine.SetName(ctx, view.ID, bad)
		requireIs(t, err, ErrInvalidFormat)
	}

	got, err := h.engine.SetName(ctx, view.ID, "  Ada   Lovelace ")
	if err != nil {
		t.Fatalf("SetName failed: %v", err)
	}
	if got.DisplayName != "Ada Lovelace" {
		t.Fatalf("expected normalized name, got %q", got.DisplayName)
	}
	if got.State != conversation.CollectingEmail {
		t.Fatalf("expected %s, got %s", conversation.CollectingEmail, got.State)
	}
}

func TestSetEmailClearsActiveCode(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")

	_, err := h.engine.SetEmail(ctx, id, "not an email")
	requireIs(t, err, ErrInvalidFormat)

	if _, err := h.engine.SendCode(ctx, id); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}
	_ = h.engine.ValidateCode(ctx, id, wrongCode(h.mailer.last(t).Code))

	view, err := h.engine.SetEmail(ctx, id, "new@Example.COM")
	if err != nil {
		t.Fatalf("SetEmail failed: %v", err)
	}
	if view.Email != "new@example.com" || view.CodeActive {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.State != conversation.SendingVerification {
		t.Fatalf("expected %s, got %s", conversation.SendingVerification, view.State)
	}

	rec := h.record(t, id)
	if rec.VerificationAttempts != 0 || rec.HasActiveCode() {
		t.Fatalf("expected verification state reset, got %+v", rec)
	}
	if rec.ResendAttempts != 1 {
		t.Fatalf("expected send budget kept, got %d", rec.ResendAttempts)
	}
}

func TestSetEmailRejectedOnceVerified(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")
	if _, err := h.engine.SendCode(ctx, id); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}
	if err := h.engine.ValidateCode(ctx, id, h.mailer.last(t).Code); err != nil {
		t.Fatalf("ValidateCode failed: %v", err)
	}

	_, err := h.engine.SetEmail(ctx, id, "other@b.com")
	requireIs(t, err, ErrAlreadyVerified)
}

func TestCompleteSession(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")

	_, err := h.engine.CompleteSession(ctx, id)
	requireIs(t, err, ErrEmailNotVerified)

	if _, err := h.engine.SendCode(ctx, id); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}
	if err := h.engine.ValidateCode(ctx, id, h.mailer.last(t).Code); err != nil {
		t.Fatalf("ValidateCode failed: %v", err)
	}

	view, err := h.engine.CompleteSession(ctx, id)
	if err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}
	if view.State != conversation.End || view.CompletedAt.IsZero() {
		t.Fatalf("unexpected view: %+v", view)
	}

	h.clock.Advance(time.Minute)
	again, err := h.engine.CompleteSession(ctx, id)
	if err != nil {
		t.Fatalf("second CompleteSession failed: %v", err)
	}
	if !again.CompletedAt.Equal(view.CompletedAt) {
		t.Fatal("second completion moved CompletedAt")
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricSessionCompleted]; got != 1 {
		t.Fatalf("expected 1 completion metric, got %d", got)
	}

	_, err = h.engine.SetName(ctx, id, "Grace Hopper")
	requireIs(t, err, ErrSessionCompleted)
}

func TestResetSessionReplacesRecord(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := WithClientIP(context.Background(), "192.0.2.50")
	id := h.sessionWithEmail(t, ctx, "a@b.com")

	next, err := h.engine.ResetSession(ctx, id)
	if err != nil {
		t.Fatalf("ResetSession failed: %v", err)
	}
	if next.ID == id || next.State != conversation.CollectingName || !next.DataConsent {
		t.Fatalf("unexpected replacement: %+v", next)
	}
	if h.record(t, next.ID).Origin != "192.0.2.50" {
		t.Fatal("replacement lost origin")
	}

	_, err = h.engine.Session(ctx, id)
	requireIs(t, err, ErrSessionNotFound)
	_, err = h.engine.ResetSession(ctx, id)
	requireIs(t, err, ErrSessionNotFound)
}

func TestStoreFailureIsReportedAsUnavailable(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")

	h.mr.Close()
	_, err := h.engine.Session(ctx, id)
	requireIs(t, err, ErrStoreUnavailable)
	if len(h.logs.AllEntries()) == 0 {
		t.Fatal("expected store failure to be logged")
	}
}

func TestSessionViewHidesExpiredCode(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")
	if _, err := h.engine.SendCode(ctx, id); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}

	view, err := h.engine.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if !view.CodeActive || view.State != conversation.AwaitingCode {
		t.Fatalf("expected active code, got %+v", view)
	}

	h.clock.Advance(11 * time.Minute)
	view, err = h.engine.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if view.CodeActive || !view.CodeExpiresAt.IsZero() || view.State != conversation.SendingVerification {
		t.Fatalf("expected expired code to be hidden, got %+v", view)
	}
	if view.ResendsRemaining != 3 {
		t.Fatalf("expected refilled budget in view, got %d", view.ResendsRemaining)
	}
}
