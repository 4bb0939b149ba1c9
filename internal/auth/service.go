package auth

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/webashraf/shawmsll-employ-ee-zone-backend/internal/mail"
)

// resetLinkMarker is stamped into the OTP field when a direct reset link is
// issued. Nothing ever compares against it; the emailed token is the
// credential on that path.
const resetLinkMarker = "link-issued"

type ServiceConfig struct {
	OTPDigits   int
	FrontendURL string
}

func (c *ServiceConfig) setDefaults() {
	if c.OTPDigits <= 0 {
		c.OTPDigits = DefaultOTPDigits
	}
	if c.FrontendURL == "" {
		c.FrontendURL = "http://localhost:5173"
	}
}

// Service drives the credential and token lifecycle flows. It keeps no
// state of its own; everything lives in the directory and in the tokens.
type Service struct {
	cfg    ServiceConfig
	dir    UserDirectory
	hasher *Hasher
	codec  *TokenCodec
	mail   mail.Notifier
	logger *log.Logger
}

func NewService(cfg ServiceConfig, dir UserDirectory, hasher *Hasher, codec *TokenCodec, notifier mail.Notifier, logger *log.Logger) *Service {
	cfg.setDefaults()
	return &Service{
		cfg:    cfg,
		dir:    dir,
		hasher: hasher,
		codec:  codec,
		mail:   notifier,
		logger: logger,
	}
}

// notify logs a delivery failure and nothing else; mail is fire-and-forget
// and must never fail a flow.
func (s *Service) notify(what string, err error) {
	if err != nil {
		s.logger.Printf("mail %s error: %v", what, err)
	}
}

// Login verifies the password and issues an access/refresh token pair.
// The eligibility lookup runs strictly before the password comparison.
func (s *Service) Login(ctx context.Context, email, password, fcmToken string) (*LoginResult, error) {
	user, err := s.dir.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(password, user.PassHash)
	if err != nil || !ok {
		return nil, Forbidden("password does not match")
	}

	if fcmToken != "" {
		user, err = s.dir.UpdateByEmail(ctx, user.Email, UserPatch{FCMToken: &fcmToken})
		if err != nil {
			return nil, err
		}
	}

	accessToken, err := s.codec.IssueAccess(user)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.codec.IssueRefresh(user)
	if err != nil {
		return nil, err
	}

	return &LoginResult{AccessToken: accessToken, RefreshToken: refreshToken, User: user}, nil
}

// SendVerifyEmailOTP starts the email-verification flow: a hashed OTP is
// stored on the record, the plaintext is emailed, and a short-lived token
// binding the address is returned. Unknown emails fail NotFound; the same
// policy applies to every OTP-issuing operation.
func (s *Service) SendVerifyEmailOTP(ctx context.Context, email string) (string, error) {
	user, err := s.dir.ExistsByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	otp, err := GenerateOTP(s.cfg.OTPDigits)
	if err != nil {
		return "", err
	}
	otpHash, err := s.hasher.HashOTP(otp)
	if err != nil {
		return "", err
	}

	verifyToken, err := s.codec.IssueVerifyEmail(user.Email)
	if err != nil {
		return "", err
	}

	if _, err := s.dir.UpdateByEmail(ctx, user.Email, UserPatch{OTPHash: &otpHash}); err != nil {
		return "", err
	}
	s.notify("verify-otp", s.mail.SendOTPEmail(user.Email, "OTP for verifying your email", otp))

	return verifyToken, nil
}

// VerifyEmail confirms the OTP challenge and marks the account verified.
// The transition is one-shot: a verified account fails Forbidden on replay.
func (s *Service) VerifyEmail(ctx context.Context, otp, verifyToken string) error {
	claims, err := s.codec.ParseVerifyEmail(verifyToken)
	if err != nil {
		return err
	}

	user, err := s.dir.FindByEmail(ctx, claims.Email)
	if err != nil {
		return err
	}
	if user.Verification.Verified {
		return Forbidden("user is already verified")
	}
	if err := checkEligibility(user); err != nil {
		return err
	}
	if user.Verification.OTPHash == "" {
		return BadRequest("OTP not found")
	}

	ok, err := s.hasher.Verify(otp, user.Verification.OTPHash)
	if err != nil || !ok {
		return BadRequest("OTP does not match")
	}

	verified := true
	cleared := ""
	_, err = s.dir.UpdateByEmail(ctx, user.Email, UserPatch{Verified: &verified, OTPHash: &cleared})
	return err
}

// RequestResetLink is reset path A: the emailed token itself is the
// credential, no OTP comparison happens later. The OTP field only gets a
// placeholder marker.
func (s *Service) RequestResetLink(ctx context.Context, email string) (string, error) {
	user, err := s.dir.ExistsByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	resetToken, err := s.codec.IssueReset(user.Email)
	if err != nil {
		return "", err
	}

	link := fmt.Sprintf("%s/reset-password?email=%s&token=%s", s.cfg.FrontendURL, user.Email, resetToken)
	s.notify("reset-link", s.mail.SendLinkEmail(user.Email, "Reset your password", link))

	marker := resetLinkMarker
	if _, err := s.dir.UpdateByEmail(ctx, user.Email, UserPatch{OTPHash: &marker}); err != nil {
		return "", err
	}

	return resetToken, nil
}

// RequestResetOTP is reset path B, step one: the challenge token embeds the
// OTP hash alongside the email, and the same hash is persisted on the
// record.
func (s *Service) RequestResetOTP(ctx context.Context, email string) (string, error) {
	user, err := s.dir.ExistsByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	otp, err := GenerateOTP(s.cfg.OTPDigits)
	if err != nil {
		return "", err
	}
	otpHash, err := s.hasher.HashOTP(otp)
	if err != nil {
		return "", err
	}

	forgetToken, err := s.codec.IssueResetChallenge(user.Email, user.Role, otpHash)
	if err != nil {
		return "", err
	}

	if _, err := s.dir.UpdateByEmail(ctx, user.Email, UserPatch{OTPHash: &otpHash}); err != nil {
		return "", err
	}
	s.notify("reset-otp", s.mail.SendOTPEmail(user.Email, "OTP for resetting your password", otp))

	return forgetToken, nil
}

// VerifyResetOTP is reset path B, step two: on a matching OTP it clears the
// stored hash and issues a fresh terminal reset token bound only to the
// email.
func (s *Service) VerifyResetOTP(ctx context.Context, otp, forgetToken string) (string, error) {
	claims, err := s.codec.ParseReset(forgetToken)
	if err != nil {
		return "", err
	}

	user, err := s.dir.FindByEmail(ctx, claims.Email)
	if err != nil {
		return "", err
	}
	if !user.Verification.Verified {
		return "", Forbidden("you are not verified; please verify your email")
	}
	if err := checkEligibility(user); err != nil {
		return "", err
	}
	if user.Verification.OTPHash == "" {
		return "", BadRequest("OTP not found")
	}

	ok, err := s.hasher.Verify(otp, user.Verification.OTPHash)
	if err != nil || !ok {
		return "", BadRequest("OTP does not match")
	}

	cleared := ""
	if _, err := s.dir.UpdateByEmail(ctx, user.Email, UserPatch{OTPHash: &cleared}); err != nil {
		return "", err
	}

	return s.codec.IssueReset(user.Email)
}

// ResetPassword is the terminal step shared by both reset paths. A token
// issued before the most recent password change is rejected, which is the
// only invalidation mechanism tokens have.
func (s *Service) ResetPassword(ctx context.Context, newPassword, confirmPassword, resetToken string) (*User, error) {
	claims, err := s.codec.ParseReset(resetToken)
	if err != nil {
		return nil, err
	}

	user, err := s.dir.ExistsByEmail(ctx, claims.Email)
	if err != nil {
		return nil, err
	}
	if issuedBeforePasswordChange(user.PasswordChangedAt, claims.IssuedAt) {
		return nil, Unauthorized("you are not authorized")
	}
	if newPassword != confirmPassword {
		return nil, BadRequest("passwords do not match")
	}

	hash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	cleared := ""
	now := time.Now()
	return s.dir.UpdateByEmail(ctx, user.Email, UserPatch{
		PassHash:          &hash,
		OTPHash:           &cleared,
		PasswordChangedAt: &now,
	})
}

// ChangePassword is the authenticated in-place change; the caller identity
// comes from the transport layer, not from a token parsed here.
func (s *Service) ChangePassword(ctx context.Context, email, oldPassword, newPassword, confirmPassword string) error {
	user, err := s.dir.ExistsByEmail(ctx, email)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(oldPassword, user.PassHash)
	if err != nil || !ok {
		return Forbidden("password does not match")
	}
	if newPassword != confirmPassword {
		return Forbidden("new password and confirm password do not match")
	}

	hash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = s.dir.UpdateByEmail(ctx, user.Email, UserPatch{
		PassHash:          &hash,
		PasswordChangedAt: &now,
	})
	return err
}

// Refresh exchanges a live refresh token for a new access token carrying
// the same claim shape as login.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.codec.ParseRefresh(refreshToken)
	if err != nil {
		return "", err
	}

	user, err := s.dir.ExistsByEmail(ctx, claims.Email)
	if err != nil {
		return "", err
	}
	if issuedBeforePasswordChange(user.PasswordChangedAt, claims.IssuedAt) {
		return "", Unauthorized("you are not authorized")
	}

	return s.codec.IssueAccess(user)
}

// Deactivate soft-deletes the account. The existence check does not apply
// the eligibility gate, so repeating the call succeeds and leaves the flag
// set. Outstanding tokens are not revoked; authenticated reads re-check
// the flag.
func (s *Service) Deactivate(ctx context.Context, userID string) error {
	if _, err := s.dir.FindByID(ctx, userID); err != nil {
		return err
	}
	deleted := true
	_, err := s.dir.UpdateByID(ctx, userID, UserPatch{IsDeleted: &deleted})
	return err
}

// issuedBeforePasswordChange reports whether the watermark postdates the
// token. Sub-second precision is lost in the iat claim, so the comparison
// is on whole seconds.
func issuedBeforePasswordChange(changedAt time.Time, issuedAt *jwt.NumericDate) bool {
	if changedAt.IsZero() || issuedAt == nil {
		return false
	}
	return changedAt.Unix() > issuedAt.Unix()
}
