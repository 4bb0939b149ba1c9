package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenConfig holds one secret and TTL per token class. A secret must never
// be shared across classes; a token signed for one class has to fail
// verification under every other.
type TokenConfig struct {
	AccessSecret []byte
	AccessTTL    time.Duration

	RefreshSecret []byte
	RefreshTTL    time.Duration

	VerifyEmailSecret []byte
	VerifyEmailTTL    time.Duration

	ResetSecret []byte
	ResetTTL    time.Duration
}

func (c *TokenConfig) setDefaults() {
	if c.AccessTTL <= 0 {
		c.AccessTTL = 15 * time.Minute
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.VerifyEmailTTL <= 0 {
		c.VerifyEmailTTL = 5 * time.Minute
	}
	if c.ResetTTL <= 0 {
		c.ResetTTL = 15 * time.Minute
	}
}

// AccessClaims authorizes API calls.
type AccessClaims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims carries the same identity as AccessClaims but is only
// accepted by the refresh flow.
type RefreshClaims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// VerifyEmailClaims binds an outstanding email-verification OTP to its
// recipient.
type VerifyEmailClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ResetClaims binds a password-reset challenge. Role and OTPHash are set
// only on the OTP-challenge path; the terminal reset token carries just
// the email.
type ResetClaims struct {
	Email   string `json:"email"`
	Role    Role   `json:"role,omitempty"`
	OTPHash string `json:"otp,omitempty"`
	jwt.RegisteredClaims
}

type TokenCodec struct {
	cfg TokenConfig
}

func NewTokenCodec(cfg TokenConfig) *TokenCodec {
	cfg.setDefaults()
	return &TokenCodec{cfg: cfg}
}

func registered(ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func sign(claims jwt.Claims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (c *TokenCodec) IssueAccess(u *User) (string, error) {
	return sign(&AccessClaims{
		UserID:           u.ID,
		Email:            u.Email,
		Role:             u.Role,
		RegisteredClaims: registered(c.cfg.AccessTTL),
	}, c.cfg.AccessSecret)
}

func (c *TokenCodec) IssueRefresh(u *User) (string, error) {
	return sign(&RefreshClaims{
		UserID:           u.ID,
		Email:            u.Email,
		Role:             u.Role,
		RegisteredClaims: registered(c.cfg.RefreshTTL),
	}, c.cfg.RefreshSecret)
}

func (c *TokenCodec) IssueVerifyEmail(email string) (string, error) {
	return sign(&VerifyEmailClaims{
		Email:            email,
		RegisteredClaims: registered(c.cfg.VerifyEmailTTL),
	}, c.cfg.VerifyEmailSecret)
}

// IssueResetChallenge signs the OTP-challenge reset token; the OTP hash
// rides in the token so the verify step can be compared against the stored
// copy without a second lookup key.
func (c *TokenCodec) IssueResetChallenge(email string, role Role, otpHash string) (string, error) {
	return sign(&ResetClaims{
		Email:            email,
		Role:             role,
		OTPHash:          otpHash,
		RegisteredClaims: registered(c.cfg.ResetTTL),
	}, c.cfg.ResetSecret)
}

// IssueReset signs the terminal reset token, bound only to the email.
func (c *TokenCodec) IssueReset(email string) (string, error) {
	return sign(&ResetClaims{
		Email:            email,
		RegisteredClaims: registered(c.cfg.ResetTTL),
	}, c.cfg.ResetSecret)
}

func parse[T jwt.Claims](tokenStr string, secret []byte, claims T) (T, error) {
	var zero T
	keyFunc := func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, Unauthorized("unexpected signing method")
		}
		return secret, nil
	}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, keyFunc)
	if err != nil || !tok.Valid {
		return zero, Unauthorized("invalid or expired token")
	}
	return claims, nil
}

func (c *TokenCodec) ParseAccess(tokenStr string) (*AccessClaims, error) {
	return parse(tokenStr, c.cfg.AccessSecret, &AccessClaims{})
}

func (c *TokenCodec) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	return parse(tokenStr, c.cfg.RefreshSecret, &RefreshClaims{})
}

func (c *TokenCodec) ParseVerifyEmail(tokenStr string) (*VerifyEmailClaims, error) {
	return parse(tokenStr, c.cfg.VerifyEmailSecret, &VerifyEmailClaims{})
}

func (c *TokenCodec) ParseReset(tokenStr string) (*ResetClaims, error) {
	return parse(tokenStr, c.cfg.ResetSecret, &ResetClaims{})
}
