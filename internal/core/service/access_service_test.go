package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
	"github.com/vamosfrotas/fleet-access/internal/core/ports"
)

func registerInput(username, password, email string) ports.RegisterInput {
	return ports.RegisterInput{Username: username, Password: password, Email: email}
}

// tokenFromMail extracts the reset token from the link in a reset message.
func tokenFromMail(t *testing.T, m sentMail) string {
	t.Helper()
	for _, line := range strings.Split(m.body, "\n") {
		if !strings.HasPrefix(line, testBaseURL+"/reset-password") {
			continue
		}
		u, err := url.Parse(line)
		if err != nil {
			t.Fatalf("parse reset link: %v", err)
		}
		return u.Query().Get("token")
	}
	t.Fatalf("no reset link in message body: %q", m.body)
	return ""
}

// ── Login ─────────────────────────────────────────────────────────────────────

func TestLogin_RegisteredUserIsPendingUntilApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, registerInput("ana", anaPassword, anaEmail), t0)
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if res.User.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", res.User.Status)
	}
	if got := f.store.get(t, "ana"); got.Status != domain.StatusPending || got.PasswordHash == "" {
		t.Fatalf("unexpected stored record: %+v", got)
	}

	if _, err := f.svc.Login(ctx, "ana", anaPassword, t0); !errors.Is(err, domain.ErrPending) {
		t.Fatalf("expected ErrPending, got %v", err)
	}

	if err := f.svc.Approve(ctx, superadmin, "ana", t0); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}

	out, err := f.svc.Login(ctx, "ana", anaPassword, t0)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if out.State != domain.StateTermsPending {
		t.Fatalf("expected terms_pending, got %s", out.State)
	}
}

func TestLogin_EnumerationResistance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeUser(t, "ana", anaPassword, anaEmail)

	_, unknown := f.svc.Login(ctx, "nobody", anaPassword, t0)
	_, wrong := f.svc.Login(ctx, "ana", "WrongPass9!", t0)

	if !errors.Is(unknown, domain.ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", unknown)
	}
	if !errors.Is(wrong, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrong)
	}
	if !errors.Is(unknown, domain.ErrNotFound) || !errors.Is(wrong, domain.ErrBadCredential) {
		t.Fatalf("internal causes should stay distinguishable: %v / %v", unknown, wrong)
	}
}

func TestLogin_StatusNotRevealedWithoutValidPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, registerInput("ana", anaPassword, anaEmail), t0); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := f.svc.Login(ctx, "ana", "WrongPass9!", t0)
	if errors.Is(err, domain.ErrPending) || !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_States(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeUser(t, "ana", anaPassword, anaEmail)

	out, err := f.svc.Login(ctx, "ana", anaPassword, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if out.State != domain.StateAuthenticated {
		t.Fatalf("expected authenticated, got %s", out.State)
	}

	later := t0.Add(91 * 24 * time.Hour)
	out, err = f.svc.Login(ctx, "ana", anaPassword, later)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if out.State != domain.StatePasswordExpired {
		t.Fatalf("expected password_expired, got %s", out.State)
	}
}

func TestLogin_WritesNothing(t *testing.T) {
	f := newFixture(t)
	before := f.store.writes

	if _, err := f.svc.Login(context.Background(), superadmin, superPass, t0); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if f.store.writes != before {
		t.Fatalf("login must not persist anything")
	}
}

func TestLogin_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.loadErr = fmt.Errorf("%w: disk gone", domain.ErrStoreUnavailable)

	if _, err := f.svc.Login(context.Background(), superadmin, superPass, t0); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

// ── Register ──────────────────────────────────────────────────────────────────

func TestRegister_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, registerInput("ana", anaPassword, anaEmail), t0); err != nil {
		t.Fatalf("Register: %v", err)
	}

	cases := []struct {
		name string
		in   ports.RegisterInput
		want error
	}{
		{"duplicate", registerInput("ana", thirdPasswd, ""), domain.ErrAlreadyExists},
		{"superadmin name", registerInput(superadmin, thirdPasswd, ""), domain.ErrAlreadyExists},
		{"weak password", registerInput("bob", "short", ""), domain.ErrPolicyViolation},
		{"password contains username", registerInput("bob", "Xbob12345!", ""), domain.ErrPolicyViolation},
		{"empty username", registerInput("", thirdPasswd, ""), domain.ErrInvalidUsername},
		{"padded username", registerInput(" bob", thirdPasswd, ""), domain.ErrInvalidUsername},
		{"email with line break", registerInput("bob", thirdPasswd, "bob@frotas.example\r\nBcc: x@evil.example"), domain.ErrInvalidEmail},
		{"email without domain", registerInput("bob", thirdPasswd, "bob@"), domain.ErrInvalidEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Register(ctx, tc.in, t0); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	users, _ := f.store.Load(ctx)
	if len(users) != 2 {
		t.Fatalf("expected 2 records, got %d", len(users))
	}
}

func TestRegister_UsernamesAreCaseSensitive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, registerInput("ana", anaPassword, ""), t0); err != nil {
		t.Fatalf("Register(ana): %v", err)
	}
	if _, err := f.svc.Register(ctx, registerInput("Ana", anaPassword, ""), t0); err != nil {
		t.Fatalf("Register(Ana): %v", err)
	}
}

func TestRegister_NotifiesAdmins(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Register(context.Background(), registerInput("ana", anaPassword, anaEmail), t0); err != nil {
		t.Fatalf("Register: %v", err)
	}
	m := f.notifier.last(t)
	if m.to != superEmail {
		t.Fatalf("expected mail to %s, got %s", superEmail, m.to)
	}
	if !strings.Contains(m.subject, "ana") {
		t.Fatalf("subject should name the new user: %q", m.subject)
	}
}

func TestRegister_NotificationFailureIsAWarning(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errBoom

	res, err := f.svc.Register(context.Background(), registerInput("ana", anaPassword, anaEmail), t0)
	if err != nil {
		t.Fatalf("notification failure must not fail registration: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", res.Warnings)
	}
	f.store.get(t, "ana")
}

func TestRegister_ConcurrentWritesAreNotLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.svc.Register(ctx, registerInput(fmt.Sprintf("driver%02d", i), anaPassword, ""), t0); err != nil {
				t.Errorf("Register(driver%02d): %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	users, _ := f.store.Load(ctx)
	if len(users) != 17 {
		t.Fatalf("expected 17 records, got %d", len(users))
	}
}

// ── Reset flow ────────────────────────────────────────────────────────────────

func TestReset_RoundTripIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeUser(t, "ana", anaPassword, anaEmail)

	if err := f.svc.RequestReset(ctx, "ana", t0); err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	m := f.notifier.last(t)
	if m.to != anaEmail {
		t.Fatalf("expected reset mail to %s, got %s", anaEmail, m.to)
	}
	tok := tokenFromMail(t, m)

	stored := f.store.get(t, "ana")
	if stored.ResetToken == nil || stored.ResetToken.Digest == tok {
		t.Fatalf("expected a digest to be stored, got %+v", stored.ResetToken)
	}
	if !stored.ResetToken.ExpiresAt.Equal(t0.Add(24 * time.Hour)) {
		t.Fatalf("unexpected expiry %s", stored.ResetToken.ExpiresAt)
	}

	at := t0.Add(2 * time.Hour)
	if err := f.svc.CompleteReset(ctx, "ana", tok, rotatedPass, at); err != nil {
		t.Fatalf("CompleteReset: %v", err)
	}

	got := f.store.get(t, "ana")
	if got.ResetToken != nil || !got.PasswordSetAt.Equal(at) {
		t.Fatalf("expected token cleared and password_set_at updated: %+v", got)
	}

	if err := f.svc.CompleteReset(ctx, "ana", tok, thirdPasswd, at); !errors.Is(err, domain.ErrTokenMissing) {
		t.Fatalf("expected ErrTokenMissing on reuse, got %v", err)
	}

	if _, err := f.svc.Login(ctx, "ana", anaPassword, at); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("old password should no longer work, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "ana", rotatedPass, at); err != nil {
		t.Fatalf("new password should work: %v", err)
	}
}

func TestReset_ExpiredTokenIsRejectedAndCleared(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeUser(t, "ana", anaPassword, anaEmail)

	if err := f.svc.RequestReset(ctx, "ana", t0); err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	tok := tokenFromMail(t, f.notifier.last(t))

	err := f.svc.CompleteReset(ctx, "ana", tok, "NewPass2@", t0.Add(25*time.Hour))
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected collapse to ErrInvalidToken")
	}
	if got := f.store.get(t, "ana"); got.ResetToken != nil {
		t.Fatalf("expired token should be cleared")
	}
}

func TestReset_MismatchKeepsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeUser(t, "ana", anaPassword, anaEmail)

	if err := f.svc.RequestReset(ctx, "ana", t0); err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	tok := tokenFromMail(t, f.notifier.last(t))

	if err := f.svc.CompleteReset(ctx, "ana", "guess", rotatedPass, t0); !errors.Is(err, domain.ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
	if err := f.svc.CompleteReset(ctx, "ana", tok, rotatedPass, t0); err != nil {
		t.Fatalf("genuine token should still work: %v", err)
	}
}

func TestReset_PolicyAppliesToNewPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeUser(t, "ana", anaPassword, anaEmail)

	if err := f.svc.RequestReset(ctx, "ana", t0); err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	tok := tokenFromMail(t, f.notifier.last(t))

	if err := f.svc.CompleteReset(ctx, "ana", tok, "weak", t0); !errors.Is(err, domain.ErrPolicyViolation) {
		t.Fatalf("expected ErrPolicyViolation, got %v", err)
	}
	if err := f.svc.CompleteReset(ctx, "ana", tok, anaPassword, t0); !errors.Is(err, domain.ErrPolicyViolation) {
		t.Fatalf("reusing the current password should be rejected, got %v", err)
	}
	if got := f.store.get(t, "ana"); got.ResetToken == nil {
		t.Fatalf("token must survive a rejected password")
	}
}

func TestReset_UnknownOrDisabledUsersReportSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeUser(t, "ana", anaPassword, anaEmail)
	if err := f.svc.SetStatus(ctx, superadmin, "ana", domain.StatusDisabled); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	sent := len(f.notifier.sent)
	writes := f.store.writes

	for _, name := range []string{"nobody", "ana"} {
		if err := f.svc.RequestReset(ctx, name, t0); err != nil {
			t.Fatalf("RequestReset(%s) should report success, got %v", name, err)
		}
	}
	if f.store.writes != writes || len(f.notifier.sent) != sent {
		t.Fatalf("expected no write and no mail")
	}

	if err := f.svc.CompleteReset(ctx, "nobody", "x", rotatedPass, t0); !errors.Is(err, domain.ErrTokenMissing) {
		t.Fatalf("expected ErrTokenMissing, got %v", err)
	}
}

func TestReset_PendingUserGetsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, registerInput("ana", anaPassword, anaEmail), t0); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := f.svc.RequestReset(ctx, "ana", t0); err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	if got := f.store.get(t, "ana"); got.ResetToken == nil || got.Status != domain.StatusPending {
		t.Fatalf("expected token on a still pending record, got %+v", got)
	}
	if m := f.notifier.last(t); m.to != anaEmail || m.subject != "Password reset" {
		t.Fatalf("expected reset mail to ana, got %+v", m)
	}
}

// The token is stored even when no link can be mailed, so the expiry rule
// applies to it like any other.
func TestReset_UserWithoutEmailExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, registerInput("ana", anaPassword, ""), t0); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := f.svc.Approve(ctx, superadmin, "ana", t0); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	sent := len(f.notifier.sent)

	if err := f.svc.RequestReset(ctx, "ana", t0); err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	stored := f.store.get(t, "ana")
	if stored.ResetToken == nil || !stored.ResetToken.ExpiresAt.Equal(t0.Add(24*time.Hour)) {
		t.Fatalf("expected token expiring at t0+24h, got %+v", stored.ResetToken)
	}
	if len(f.notifier.sent) != sent {
		t.Fatalf("no mail can be sent without an address")
	}

	err := f.svc.CompleteReset(ctx, "ana", "any-token", "NewPass2@", t0.Add(25*time.Hour))
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestReset_SendFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.activeUser(t, "ana", anaPassword, anaEmail)
	f.notifier.err = errBoom

	if err := f.svc.RequestReset(context.Background(), "ana", t0); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if got := f.store.get(t, "ana"); got.ResetToken == nil {
		t.Fatalf("token should still be persisted")
	}
}

func TestReset_Throttled(t *testing.T) {
	f := newFixture(t)
	f.activeUser(t, "ana", anaPassword, anaEmail)
	throttle := &stubThrottle{allow: false}
	f.svc.WithResetThrottle(throttle)
	sent := len(f.notifier.sent)

	if err := f.svc.RequestReset(context.Background(), "ana", t0); err != nil {
		t.Fatalf("throttled request should report success, got %v", err)
	}
	if throttle.calls != 1 || len(f.notifier.sent) != sent {
		t.Fatalf("expected throttle consulted and no mail sent")
	}

	throttle.err = errBoom
	if err := f.svc.RequestReset(context.Background(), "ana", t0); err != nil {
		t.Fatalf("throttle errors must not fail the request: %v", err)
	}
	if len(f.notifier.sent) != sent+1 {
		t.Fatalf("throttle failure should fall through to sending")
	}
}

// ── Terms and rotation ────────────────────────────────────────────────────────

func TestAcceptTerms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, registerInput("ana", anaPassword, anaEmail), t0); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := f.svc.AcceptTerms(ctx, "ana", t0); !errors.Is(err, domain.ErrPending) {
		t.Fatalf("pending accounts cannot accept terms, got %v", err)
	}
	if err := f.svc.Approve(ctx, superadmin, "ana", t0); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	state, err := f.svc.AcceptTerms(ctx, "ana", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("AcceptTerms: %v", err)
	}
	if state != domain.StateAuthenticated {
		t.Fatalf("expected authenticated, got %s", state)
	}
	first := f.store.get(t, "ana").TermsAcceptedAt
	writes := f.store.writes

	if _, err := f.svc.AcceptTerms(ctx, "ana", t0.Add(time.Hour)); err != nil {
		t.Fatalf("AcceptTerms again: %v", err)
	}
	if f.store.writes != writes || !f.store.get(t, "ana").TermsAcceptedAt.Equal(*first) {
		t.Fatalf("second acceptance must not rewrite the timestamp")
	}
}

func TestChangePassword_ClearsExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeUser(t, "ana", anaPassword, anaEmail)
	later := t0.Add(100 * 24 * time.Hour)

	if _, err := f.svc.ChangePassword(ctx, "ana", "WrongPass9!", rotatedPass, later); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := f.svc.ChangePassword(ctx, "ana", anaPassword, anaPassword, later); !errors.Is(err, domain.ErrPolicyViolation) {
		t.Fatalf("expected ErrPolicyViolation, got %v", err)
	}

	state, err := f.svc.ChangePassword(ctx, "ana", anaPassword, rotatedPass, later)
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if state != domain.StateAuthenticated {
		t.Fatalf("expected authenticated, got %s", state)
	}
	out, err := f.svc.Login(ctx, "ana", rotatedPass, later)
	if err != nil || out.State != domain.StateAuthenticated {
		t.Fatalf("expected authenticated login, got %v / %v", out, err)
	}
}
