package goOnboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSendCodeIssuesAndMails(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")

	res, err := h.engine.SendCode(ctx, id)
	if err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}

	mail := h.mailer.last(t)
	if mail.To != "a@b.com" || mail.Name != "Ada Lovelace" {
		t.Fatalf("unexpected mail recipient: %+v", mail)
	}
	if len(mail.Code) != 6 {
		t.Fatalf("expected 6-character code, got %q", mail.Code)
	}
	if want := h.clock.Now().Add(10 * time.Minute); !res.ExpiresAt.Equal(want) || !mail.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v / %v", want, res.ExpiresAt, mail.ExpiresAt)
	}
	if res.ResendsRemaining != 2 {
		t.Fatalf("expected 2 resends remaining, got %d", res.ResendsRemaining)
	}

	rec := h.record(t, id)
	if rec.VerificationCode != mail.Code || rec.VerificationAttempts != 0 || rec.ResendAttempts != 1 {
		t.Fatalf("unexpected record after send: %+v", rec)
	}
}

func TestSendCodePreconditions(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	view, err := h.engine.StartSession(ctx, StartOptions{})
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	_, err = h.engine.SendCode(ctx, view.ID)
	requireIs(t, err, ErrEmailRequired)

	_, err = h.engine.SendCode(ctx, "not-an-id")
	requireIs(t, err, ErrInvalidFormat)

	_, err = h.engine.SendCode(ctx, "5b0f8c5e-6a4e-4d8e-9a51-3f1d1c2b7a10")
	requireIs(t, err, ErrSessionNotFound)

	if h.mailer.count() != 0 {
		t.Fatalf("expected no mail, got %d", h.mailer.count())
	}
}

func TestResendWithinCooldownIsThrottledAndLeavesCodeUntouched(t *testing.T) {
	h := newHarness(t, testConfig())
	h.sequentialCodes()
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")

	if _, err := h.engine.SendCode(ctx, id); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}
	before := h.record(t, id)

	h.clock.Advance(30 * time.Second)
	_, err := h.engine.ResendCode(ctx, id)
	var throttle *ThrottleError
	if !errors.As(err, &throttle) {
		t.Fatalf("expected ThrottleError, got %v", err)
	}
	if WaitSeconds(throttle.Wait) != 30 {
		t.Fatalf("expected wait 30s, got %v", throttle.Wait)
	}
	if throttle.ResendsRemaining != 2 {
		t.Fatalf("expected 2 resends remaining, got %d", throttle.ResendsRemaining)
	}

	after := h.record(t, id)
	if after.VerificationCode != before.VerificationCode ||
		!after.VerificationExpiresAt.Equal(before.VerificationExpiresAt) ||
		after.Version != before.Version {
		t.Fatalf("throttled resend mutated the record: before=%+v after=%+v", before, after)
	}

	h.clock.Advance(31 * time.Second)
	if _, err := h.engine.ResendCode(ctx, id); err != nil {
		t.Fatalf("ResendCode at t=61s failed: %v", err)
	}

	final := h.record(t, id)
	if final.ResendAttempts != 2 {
		t.Fatalf("expected resend_attempts=2, got %d", final.ResendAttempts)
	}
	if final.VerificationCode == before.VerificationCode {
		t.Fatal("expected a new code after resend")
	}
	if h.mailer.count() != 2 {
		t.Fatalf("expected 2 mails, got %d", h.mailer.count())
	}
}

func TestResendBudgetCapAndRefill(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")

	for i := 0; i < 3; i++ {
		if _, err := h.engine.ResendCode(ctx, id); err != nil {
			t.Fatalf("send %d failed: %v", i+1, err)
		}
		h.clock.Advance(61 * time.Second)
	}
	lastSend := h.clock.Now().Add(-61 * time.Second)

	_, err := h.engine.ResendCode(ctx, id)
	var throttle *ThrottleError
	if !errors.As(err, &throttle) {
		t.Fatalf("expected ThrottleError once the budget is spent, got %v", err)
	}
	if throttle.ResendsRemaining != 0 {
		t.Fatalf("expected 0 resends remaining, got %d", throttle.ResendsRemaining)
	}
	if want := lastSend.Add(10 * time.Minute).Sub(h.clock.Now()); throttle.Wait != want {
		t.Fatalf("expected wait %v, got %v", want, throttle.Wait)
	}

	h.clock.Advance(throttle.Wait)
	res, err := h.engine.ResendCode(ctx, id)
	if err != nil {
		t.Fatalf("expected budget to refill, got %v", err)
	}
	if res.ResendsRemaining != 2 {
		t.Fatalf("expected 2 resends remaining after refill, got %d", res.ResendsRemaining)
	}
}

func TestSendCodeDispatchFailureCommitsState(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")

	h.mailer.setErr(errors.New("smtp: connection refused"))
	res, err := h.engine.SendCode(ctx, id)
	requireIs(t, err, ErrDispatchFailure)
	if res.SessionID != id || res.ResendsRemaining != 2 {
		t.Fatalf("expected committed send result, got %+v", res)
	}
	if !h.record(t, id).HasActiveCode() {
		t.Fatal("expected the code to be committed despite dispatch failure")
	}
	if len(h.logs.AllEntries()) == 0 {
		t.Fatal("expected dispatch failure to be logged")
	}

	h.mailer.setErr(nil)
	_, err = h.engine.ResendCode(ctx, id)
	requireIs(t, err, ErrResendThrottled)

	if got := h.engine.MetricsSnapshot().Counters[MetricDispatchFailure]; got != 1 {
		t.Fatalf("expected 1 dispatch failure metric, got %d", got)
	}
}

func TestValidateAfterVerifiedIgnoresCharacters(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")
	if _, err := h.engine.SendCode(ctx, id); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}
	code := h.mailer.last(t).Code
	if err := h.engine.ValidateCode(ctx, id, code); err != nil {
		t.Fatalf("ValidateCode failed: %v", err)
	}
	before := h.record(t, id)

	if err := h.engine.ValidateCode(ctx, id, wrongCode(code)); err != nil {
		t.Fatalf("expected verified session to accept any well-formed code, got %v", err)
	}
	requireIs(t, h.engine.ValidateCode(ctx, id, "bad"), ErrInvalidFormat)

	after := h.record(t, id)
	if after.Version != before.Version || after.VerificationAttempts != before.VerificationAttempts {
		t.Fatalf("verified session was written: before %+v after %+v", before, after)
	}
}

func TestValidateCodeVerifies(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")

	if _, err := h.engine.SendCode(ctx, id); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}
	code := h.mailer.last(t).Code

	if err := h.engine.ValidateCode(ctx, id, code); err != nil {
		t.Fatalf("ValidateCode failed: %v", err)
	}

	rec := h.record(t, id)
	if !rec.EmailVerified || rec.HasActiveCode() || !rec.VerificationExpiresAt.IsZero() {
		t.Fatalf("expected verified record without code, got %+v", rec)
	}

	// A duplicate submission from a second tab succeeds without touching counters.
	if err := h.engine.ValidateCode(ctx, id, code); err != nil {
		t.Fatalf("duplicate ValidateCode failed: %v", err)
	}
	if again := h.record(t, id); again.Version != rec.Version {
		t.Fatal("duplicate validation wrote the record")
	}

	_, err := h.engine.SendCode(ctx, id)
	requireIs(t, err, ErrAlreadyVerified)
}

func TestValidateCodeIsCaseSensitive(t *testing.T) {
	h := newHarness(t, testConfig())
	h.engine.newCode = func() (string, error) { return "AbCdEf", nil }
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")

	if _, err := h.engine.SendCode(ctx, id); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}
	requireIs(t, h.engine.ValidateCode(ctx, id, "abcdef"), ErrIncorrectCode)
}

func TestValidateCodeAfterExpiryNeverConsumesAttempts(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")

	if _, err := h.engine.SendCode(ctx, id); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}
	code := h.mailer.last(t).Code

	h.clock.Advance(10*time.Minute + time.Second)
	for i := 0; i < 5; i++ {
		requireIs(t, h.engine.ValidateCode(ctx, id, code), ErrCodeExpired)
		requireIs(t, h.engine.ValidateCode(ctx, id, wrongCode(code)), ErrCodeExpired)
	}

	rec := h.record(t, id)
	if rec.VerificationAttempts != 0 || rec.EmailVerified {
		t.Fatalf("expired submissions mutated the record: %+v", rec)
	}
}

func TestValidateCodeAtExactExpiryStillValid(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")

	if _, err := h.engine.SendCode(ctx, id); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}
	h.clock.Advance(10 * time.Minute)
	if err := h.engine.ValidateCode(ctx, id, h.mailer.last(t).Code); err != nil {
		t.Fatalf("expected code valid at its expiry instant, got %v", err)
	}
}

func TestValidateCodeWithoutActiveCodeIsExpired(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")

	requireIs(t, h.engine.ValidateCode(ctx, id, "ABC123"), ErrCodeExpired)
}

func TestValidateCodeRejectsMalformedInputWithoutSpendingAttempts(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")
	if _, err := h.engine.SendCode(ctx, id); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}

	for _, code := range []string{"", "abc", "ABC-12", "1234567", "ÄBC123"} {
		requireIs(t, h.engine.ValidateCode(ctx, id, code), ErrInvalidFormat)
	}
	if got := h.record(t, id).VerificationAttempts; got != 0 {
		t.Fatalf("expected 0 attempts, got %d", got)
	}
}

func TestValidateCodeExhaustionResetsSession(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := WithClientIP(context.Background(), "203.0.113.7")
	id := h.sessionWithEmail(t, ctx, "a@b.com")

	if _, err := h.engine.SendCode(ctx, id); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}
	bad := wrongCode(h.mailer.last(t).Code)

	var incorrect *IncorrectCodeError
	if err := h.engine.ValidateCode(ctx, id, bad); !errors.As(err, &incorrect) || incorrect.AttemptsRemaining != 2 {
		t.Fatalf("expected 2 attempts remaining, got %v", err)
	}
	if got := h.record(t, id).VerificationAttempts; got != 1 {
		t.Fatalf("expected 1 attempt recorded, got %d", got)
	}
	if err := h.engine.ValidateCode(ctx, id, bad); !errors.As(err, &incorrect) || incorrect.AttemptsRemaining != 1 {
		t.Fatalf("expected 1 attempt remaining, got %v", err)
	}

	err := h.engine.ValidateCode(ctx, id, bad)
	var exhausted *AttemptsExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected AttemptsExhaustedError, got %v", err)
	}
	requireIs(t, err, ErrAttemptsExhausted)

	_, err = h.engine.Session(ctx, id)
	requireIs(t, err, ErrSessionNotFound)
	requireIs(t, h.engine.ValidateCode(ctx, id, bad), ErrSessionNotFound)

	if exhausted.NextSessionID == "" || exhausted.NextSessionID == id {
		t.Fatalf("expected a fresh replacement session, got %q", exhausted.NextSessionID)
	}
	next := h.record(t, exhausted.NextSessionID)
	if next.Origin != "203.0.113.7" || !next.DataConsent {
		t.Fatalf("replacement lost origin or consent: %+v", next)
	}
	if next.Email != "" || next.HasActiveCode() || next.VerificationAttempts != 0 {
		t.Fatalf("replacement carried verification state: %+v", next)
	}
}

func TestValidateCodeExhaustionWithoutReplacement(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")
	other := h.sessionWithEmail(t, ctx, "c@d.com")

	if _, err := h.engine.SendCode(ctx, id); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}
	bad := wrongCode(h.mailer.last(t).Code)
	for i := 0; i < 2; i++ {
		requireIs(t, h.engine.ValidateCode(ctx, id, bad), ErrIncorrectCode)
	}

	// Every replacement candidate collides with a live session.
	h.engine.newIdentifier = func() (string, error) { return other, nil }

	err := h.engine.ValidateCode(ctx, id, bad)
	var exhausted *AttemptsExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected AttemptsExhaustedError, got %v", err)
	}
	if exhausted.NextSessionID != "" {
		t.Fatalf("expected no replacement, got %q", exhausted.NextSessionID)
	}
	_, err = h.engine.Session(ctx, id)
	requireIs(t, err, ErrSessionNotFound)
}

func TestValidateCodeAttemptsNeverExceedMaxUnderConcurrency(t *testing.T) {
	cfg := testConfig()
	cfg.Verification.MaxAttempts = 4
	h := newHarness(t, cfg)
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")
	if _, err := h.engine.SendCode(ctx, id); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}
	bad := wrongCode(h.mailer.last(t).Code)

	const workers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		incorrect int
		exhausted int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			err := h.engine.ValidateCode(ctx, id, bad)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrIncorrectCode):
				incorrect++
			case errors.Is(err, ErrAttemptsExhausted):
				exhausted++
			case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrStoreUnavailable):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if exhausted > 1 {
		t.Fatalf("expected at most one exhaustion, got %d", exhausted)
	}
	if incorrect > cfg.Verification.MaxAttempts-1 {
		t.Fatalf("expected at most %d incorrect verdicts, got %d", cfg.Verification.MaxAttempts-1, incorrect)
	}
	if exhausted == 1 && incorrect != cfg.Verification.MaxAttempts-1 {
		t.Fatalf("exhaustion after %d counted attempts, want %d", incorrect, cfg.Verification.MaxAttempts-1)
	}
}

func TestConcurrentResendIssuesOneCode(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.sessionWithEmail(t, ctx, "a@b.com")

	const workers = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sent int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := h.engine.ResendCode(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sent++
			case errors.Is(err, ErrResendThrottled), errors.Is(err, ErrStoreUnavailable):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if sent != 1 {
		t.Fatalf("expected exactly one send, got %d", sent)
	}
	if h.mailer.count() != 1 {
		t.Fatalf("expected exactly one mail, got %d", h.mailer.count())
	}
	if got := h.record(t, id).ResendAttempts; got != 1 {
		t.Fatalf("expected resend_attempts=1, got %d", got)
	}
}

func TestRateLimiterRunsBeforeSessionChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit.Limit = 2
	h := newHarness(t, cfg)
	ctx := WithClientIP(context.Background(), "198.51.100.9")
	missing := "5b0f8c5e-6a4e-4d8e-9a51-3f1d1c2b7a10"

	for i := 0; i < 2; i++ {
		requireIs(t, h.engine.ValidateCode(ctx, missing, "ABC123"), ErrSessionNotFound)
	}

	err := h.engine.ValidateCode(ctx, missing, "ABC123")
	var limited *RateLimitError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if limited.RetryAfter <= 0 || limited.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry-after %v", limited.RetryAfter)
	}

	// Other origins have their own window.
	other := WithClientIP(context.Background(), "198.51.100.10")
	requireIs(t, h.engine.ValidateCode(other, missing, "ABC123"), ErrSessionNotFound)

	if got := h.engine.MetricsSnapshot().Counters[MetricRateLimitHit]; got != 1 {
		t.Fatalf("expected 1 rate limit hit, got %d", got)
	}
}

func TestRateLimiterFailsClosed(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := WithClientIP(context.Background(), "198.51.100.9")

	h.mr.Close()
	_, err := h.engine.SendCode(ctx, "5b0f8c5e-6a4e-4d8e-9a51-3f1d1c2b7a10")
	requireIs(t, err, ErrRateLimiterUnavailable)
}
