package auth

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"
)

type captureNotifier struct {
	lastTo      string
	lastSubject string
	lastOTP     string
	lastLink    string
}

func (c *captureNotifier) SendOTPEmail(to, subject, otp string) error {
	c.lastTo, c.lastSubject, c.lastOTP = to, subject, otp
	return nil
}

func (c *captureNotifier) SendLinkEmail(to, subject, link string) error {
	c.lastTo, c.lastSubject, c.lastLink = to, subject, link
	return nil
}

func (c *captureNotifier) Enabled() bool { return true }

func newTestService(t *testing.T) (*Service, *MemoryDirectory, *captureNotifier) {
	t.Helper()
	dir := NewMemoryDirectory()
	notifier := &captureNotifier{}
	logger := log.New(io.Discard, "", 0)
	svc := NewService(ServiceConfig{OTPDigits: 6, FrontendURL: "http://localhost:5173"},
		dir, testHasher(), testCodec(), notifier, logger)
	return svc, dir, notifier
}

func seedUser(t *testing.T, dir *MemoryDirectory, email, password string, mutate func(*User)) *User {
	t.Helper()
	hash, err := testHasher().HashPassword(password)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	u := &User{Email: email, PassHash: hash, Role: RoleUser, Status: StatusActive}
	if mutate != nil {
		mutate(u)
	}
	if err := dir.Add(u); err != nil {
		t.Fatalf("seed error: %v", err)
	}
	seeded, err := dir.FindByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("seed lookup error: %v", err)
	}
	return seeded
}

func TestLoginSuccess(t *testing.T) {
	ctx := context.Background()
	svc, dir, _ := newTestService(t)
	seeded := seedUser(t, dir, "u@x.com", "secret", nil)

	res, err := svc.Login(ctx, "u@x.com", "secret", "")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if res.User == nil || res.User.Email != "u@x.com" {
		t.Fatalf("unexpected user: %+v", res.User)
	}

	access, err := testCodec().ParseAccess(res.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess error: %v", err)
	}
	if access.UserID != seeded.ID || access.Email != "u@x.com" || access.Role != RoleUser {
		t.Fatalf("unexpected access claims: %+v", access)
	}
	refresh, err := testCodec().ParseRefresh(res.RefreshToken)
	if err != nil {
		t.Fatalf("ParseRefresh error: %v", err)
	}
	if refresh.UserID != seeded.ID || refresh.Email != "u@x.com" || refresh.Role != RoleUser {
		t.Fatalf("unexpected refresh claims: %+v", refresh)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, dir, _ := newTestService(t)
	seedUser(t, dir, "u@x.com", "secret", nil)

	_, err := svc.Login(context.Background(), "u@x.com", "wrong", "")
	if KindOf(err) != KindForbidden {
		t.Fatalf("want Forbidden, got %v", err)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Login(context.Background(), "nobody@x.com", "secret", "")
	if KindOf(err) != KindNotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
}

func TestLoginGateRunsBeforePasswordCheck(t *testing.T) {
	svc, dir, _ := newTestService(t)
	seedUser(t, dir, "gone@x.com", "secret", func(u *User) { u.IsDeleted = true })
	seedUser(t, dir, "blocked@x.com", "secret", func(u *User) { u.Status = StatusBlocked })

	// correct password, but the eligibility gate fires first
	if _, err := svc.Login(context.Background(), "gone@x.com", "secret", ""); KindOf(err) != KindForbidden {
		t.Fatalf("deleted user: want Forbidden, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "blocked@x.com", "secret", ""); KindOf(err) != KindForbidden {
		t.Fatalf("blocked user: want Forbidden, got %v", err)
	}
}

func TestLoginPersistsFCMToken(t *testing.T) {
	ctx := context.Background()
	svc, dir, _ := newTestService(t)
	seedUser(t, dir, "u@x.com", "secret", nil)

	if _, err := svc.Login(ctx, "u@x.com", "secret", "device-42"); err != nil {
		t.Fatalf("Login error: %v", err)
	}
	u, err := dir.FindByEmail(ctx, "u@x.com")
	if err != nil {
		t.Fatalf("lookup error: %v", err)
	}
	if u.FCMToken != "device-42" {
		t.Fatalf("fcm token not persisted: %+v", u)
	}
}

func TestEmailVerificationFlow(t *testing.T) {
	ctx := context.Background()
	svc, dir, notifier := newTestService(t)
	seedUser(t, dir, "new@x.com", "secret", nil)

	verifyToken, err := svc.SendVerifyEmailOTP(ctx, "new@x.com")
	if err != nil {
		t.Fatalf("SendVerifyEmailOTP error: %v", err)
	}
	if notifier.lastOTP == "" || notifier.lastTo != "new@x.com" {
		t.Fatalf("OTP email not sent: %+v", notifier)
	}

	u, _ := dir.FindByEmail(ctx, "new@x.com")
	if u.Verification.OTPHash == "" {
		t.Fatalf("OTP hash not stored")
	}
	if !strings.HasPrefix(u.Verification.OTPHash, "argon2id$") {
		t.Fatalf("OTP not stored hashed: %q", u.Verification.OTPHash)
	}

	if err := svc.VerifyEmail(ctx, notifier.lastOTP, verifyToken); err != nil {
		t.Fatalf("VerifyEmail error: %v", err)
	}

	u, _ = dir.FindByEmail(ctx, "new@x.com")
	if !u.Verification.Verified || u.Verification.OTPHash != "" {
		t.Fatalf("verification not applied: %+v", u.Verification)
	}

	// one-shot: replay fails because the account is already verified
	if err := svc.VerifyEmail(ctx, notifier.lastOTP, verifyToken); KindOf(err) != KindForbidden {
		t.Fatalf("replayed confirm: want Forbidden, got %v", err)
	}
}

func TestVerifyEmailWrongOTP(t *testing.T) {
	ctx := context.Background()
	svc, dir, notifier := newTestService(t)
	seedUser(t, dir, "new@x.com", "secret", nil)

	verifyToken, err := svc.SendVerifyEmailOTP(ctx, "new@x.com")
	if err != nil {
		t.Fatalf("SendVerifyEmailOTP error: %v", err)
	}
	wrong := "000000"
	if notifier.lastOTP == wrong {
		wrong = "111111"
	}
	if err := svc.VerifyEmail(ctx, wrong, verifyToken); KindOf(err) != KindBadRequest {
		t.Fatalf("want BadRequest, got %v", err)
	}
}

func TestVerifyEmailWithoutChallenge(t *testing.T) {
	ctx := context.Background()
	svc, dir, _ := newTestService(t)
	seedUser(t, dir, "new@x.com", "secret", nil)

	verifyToken, err := svc.codec.IssueVerifyEmail("new@x.com")
	if err != nil {
		t.Fatalf("IssueVerifyEmail error: %v", err)
	}
	if err := svc.VerifyEmail(ctx, "123456", verifyToken); KindOf(err) != KindBadRequest {
		t.Fatalf("missing OTP hash: want BadRequest, got %v", err)
	}
}

func TestVerifyEmailBadToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.VerifyEmail(context.Background(), "123456", "garbage"); KindOf(err) != KindUnauthorized {
		t.Fatalf("want Unauthorized, got %v", err)
	}
}

func TestSendVerifyOTPUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.SendVerifyEmailOTP(context.Background(), "nobody@x.com"); KindOf(err) != KindNotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
}

func TestResetPathDirectLink(t *testing.T) {
	ctx := context.Background()
	svc, dir, notifier := newTestService(t)
	seedUser(t, dir, "u@x.com", "old-secret", func(u *User) { u.Verification.Verified = true })

	resetToken, err := svc.RequestResetLink(ctx, "u@x.com")
	if err != nil {
		t.Fatalf("RequestResetLink error: %v", err)
	}
	if !strings.Contains(notifier.lastLink, resetToken) {
		t.Fatalf("reset link email does not carry the token: %q", notifier.lastLink)
	}

	u, _ := dir.FindByEmail(ctx, "u@x.com")
	if u.Verification.OTPHash != resetLinkMarker {
		t.Fatalf("placeholder marker not stamped: %q", u.Verification.OTPHash)
	}

	updated, err := svc.ResetPassword(ctx, "new-secret", "new-secret", resetToken)
	if err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}
	if updated.Verification.OTPHash != "" {
		t.Fatalf("OTP field not cleared: %q", updated.Verification.OTPHash)
	}
	if updated.PasswordChangedAt.IsZero() {
		t.Fatalf("watermark not stamped")
	}

	if _, err := svc.Login(ctx, "u@x.com", "new-secret", ""); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
	if _, err := svc.Login(ctx, "u@x.com", "old-secret", ""); KindOf(err) != KindForbidden {
		t.Fatalf("old password still accepted: %v", err)
	}
}

func TestResetPathOTPChallenge(t *testing.T) {
	ctx := context.Background()
	svc, dir, notifier := newTestService(t)
	seedUser(t, dir, "u@x.com", "old-secret", func(u *User) { u.Verification.Verified = true })

	forgetToken, err := svc.RequestResetOTP(ctx, "u@x.com")
	if err != nil {
		t.Fatalf("RequestResetOTP error: %v", err)
	}

	wrong := "000000"
	if notifier.lastOTP == wrong {
		wrong = "111111"
	}
	if _, err := svc.VerifyResetOTP(ctx, wrong, forgetToken); KindOf(err) != KindBadRequest {
		t.Fatalf("wrong OTP: want BadRequest, got %v", err)
	}

	resetToken, err := svc.VerifyResetOTP(ctx, notifier.lastOTP, forgetToken)
	if err != nil {
		t.Fatalf("VerifyResetOTP error: %v", err)
	}

	u, _ := dir.FindByEmail(ctx, "u@x.com")
	if u.Verification.OTPHash != "" {
		t.Fatalf("OTP hash not cleared after verify")
	}

	// one-time: the same OTP cannot be verified again
	if _, err := svc.VerifyResetOTP(ctx, notifier.lastOTP, forgetToken); KindOf(err) != KindBadRequest {
		t.Fatalf("replayed OTP: want BadRequest, got %v", err)
	}

	if _, err := svc.ResetPassword(ctx, "new-secret", "new-secret", resetToken); err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}
	if _, err := svc.Login(ctx, "u@x.com", "new-secret", ""); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestResetOTPRequiresVerifiedAccount(t *testing.T) {
	ctx := context.Background()
	svc, dir, notifier := newTestService(t)
	seedUser(t, dir, "u@x.com", "secret", nil) // not verified

	forgetToken, err := svc.RequestResetOTP(ctx, "u@x.com")
	if err != nil {
		t.Fatalf("RequestResetOTP error: %v", err)
	}
	if _, err := svc.VerifyResetOTP(ctx, notifier.lastOTP, forgetToken); KindOf(err) != KindForbidden {
		t.Fatalf("unverified account: want Forbidden, got %v", err)
	}
}

func TestResetPasswordConfirmMismatch(t *testing.T) {
	ctx := context.Background()
	svc, dir, _ := newTestService(t)
	seeded := seedUser(t, dir, "u@x.com", "secret", func(u *User) { u.Verification.Verified = true })

	resetToken, err := svc.RequestResetLink(ctx, "u@x.com")
	if err != nil {
		t.Fatalf("RequestResetLink error: %v", err)
	}
	if _, err := svc.ResetPassword(ctx, "one-secret", "other-secret", resetToken); KindOf(err) != KindBadRequest {
		t.Fatalf("want BadRequest, got %v", err)
	}

	u, _ := dir.FindByEmail(ctx, "u@x.com")
	if u.PassHash != seeded.PassHash {
		t.Fatalf("password hash changed on failed reset")
	}
}

func TestNewOTPRequestInvalidatesPrior(t *testing.T) {
	ctx := context.Background()
	svc, dir, notifier := newTestService(t)
	seedUser(t, dir, "u@x.com", "secret", func(u *User) { u.Verification.Verified = true })

	firstToken, err := svc.RequestResetOTP(ctx, "u@x.com")
	if err != nil {
		t.Fatalf("RequestResetOTP error: %v", err)
	}
	firstOTP := notifier.lastOTP

	if _, err := svc.RequestResetOTP(ctx, "u@x.com"); err != nil {
		t.Fatalf("second RequestResetOTP error: %v", err)
	}
	if notifier.lastOTP == firstOTP {
		t.Skip("random OTPs collided")
	}

	// only the most recently written hash is valid
	if _, err := svc.VerifyResetOTP(ctx, firstOTP, firstToken); KindOf(err) != KindBadRequest {
		t.Fatalf("stale OTP: want BadRequest, got %v", err)
	}
}

func TestInvalidationWatermark(t *testing.T) {
	ctx := context.Background()
	svc, dir, _ := newTestService(t)
	seedUser(t, dir, "u@x.com", "secret", func(u *User) { u.Verification.Verified = true })

	res, err := svc.Login(ctx, "u@x.com", "secret", "")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	resetToken, err := svc.RequestResetLink(ctx, "u@x.com")
	if err != nil {
		t.Fatalf("RequestResetLink error: %v", err)
	}

	// advance the watermark past the tokens' whole-second issue time
	changed := time.Now().Add(2 * time.Second)
	if _, err := dir.UpdateByEmail(ctx, "u@x.com", UserPatch{PasswordChangedAt: &changed}); err != nil {
		t.Fatalf("UpdateByEmail error: %v", err)
	}

	if _, err := svc.Refresh(ctx, res.RefreshToken); KindOf(err) != KindUnauthorized {
		t.Fatalf("stale refresh token: want Unauthorized, got %v", err)
	}
	if _, err := svc.ResetPassword(ctx, "new-secret", "new-secret", resetToken); KindOf(err) != KindUnauthorized {
		t.Fatalf("stale reset token: want Unauthorized, got %v", err)
	}
}

func TestRefreshIssuesLoginShapedClaims(t *testing.T) {
	ctx := context.Background()
	svc, dir, _ := newTestService(t)
	seeded := seedUser(t, dir, "u@x.com", "secret", nil)

	res, err := svc.Login(ctx, "u@x.com", "secret", "")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	accessToken, err := svc.Refresh(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	claims, err := testCodec().ParseAccess(accessToken)
	if err != nil {
		t.Fatalf("ParseAccess error: %v", err)
	}
	if claims.UserID != seeded.ID || claims.Email != "u@x.com" || claims.Role != RoleUser {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Refresh(context.Background(), "garbage"); KindOf(err) != KindUnauthorized {
		t.Fatalf("want Unauthorized, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, dir, _ := newTestService(t)
	seeded := seedUser(t, dir, "u@x.com", "old-secret", nil)

	// correct old password, mismatched confirmation
	err := svc.ChangePassword(ctx, "u@x.com", "old-secret", "new-secret", "other")
	if KindOf(err) != KindForbidden {
		t.Fatalf("confirm mismatch: want Forbidden, got %v", err)
	}
	u, _ := dir.FindByEmail(ctx, "u@x.com")
	if u.PassHash != seeded.PassHash {
		t.Fatalf("record changed on failed change")
	}

	// wrong old password
	err = svc.ChangePassword(ctx, "u@x.com", "wrong", "new-secret", "new-secret")
	if KindOf(err) != KindForbidden {
		t.Fatalf("wrong old password: want Forbidden, got %v", err)
	}

	// success
	if err := svc.ChangePassword(ctx, "u@x.com", "old-secret", "new-secret", "new-secret"); err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}
	u, _ = dir.FindByEmail(ctx, "u@x.com")
	if u.PasswordChangedAt.IsZero() {
		t.Fatalf("watermark not stamped")
	}
	if _, err := svc.Login(ctx, "u@x.com", "new-secret", ""); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestChangePasswordUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.ChangePassword(context.Background(), "nobody@x.com", "a", "b", "b")
	if KindOf(err) != KindNotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
}

func TestDeactivateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, dir, _ := newTestService(t)
	seeded := seedUser(t, dir, "u@x.com", "secret", nil)

	if err := svc.Deactivate(ctx, seeded.ID); err != nil {
		t.Fatalf("Deactivate error: %v", err)
	}
	if err := svc.Deactivate(ctx, seeded.ID); err != nil {
		t.Fatalf("second Deactivate error: %v", err)
	}
	u, _ := dir.FindByID(ctx, seeded.ID)
	if !u.IsDeleted {
		t.Fatalf("expected isDeleted to stay set")
	}

	// deactivated accounts fail every authenticated flow
	if _, err := svc.Login(ctx, "u@x.com", "secret", ""); KindOf(err) != KindForbidden {
		t.Fatalf("deleted user login: want Forbidden, got %v", err)
	}
}

func TestDeactivateUnknownID(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.Deactivate(context.Background(), "missing"); KindOf(err) != KindNotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
}
