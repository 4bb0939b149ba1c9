package server

import (
	"time"

	"github.com/webashraf/shawmsll-employ-ee-zone-backend/internal/mail"
)

type Config struct {
	MongoURI        string
	MongoDB         string
	UsersCollection string

	FrontendURL string

	AccessSecret      string
	AccessTTL         time.Duration
	RefreshSecret     string
	RefreshTTL        time.Duration
	VerifyEmailSecret string
	VerifyEmailTTL    time.Duration
	ResetSecret       string
	ResetTTL          time.Duration

	OTPDigits int

	SMTP mail.SMTPConfig
}

func (c *Config) setDefaults() {
	if c.UsersCollection == "" {
		c.UsersCollection = "users"
	}
	if c.FrontendURL == "" {
		c.FrontendURL = "http://localhost:5173"
	}
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
	if c.OTPDigits <= 0 {
		c.OTPDigits = 6
	}
	if c.SMTP.Security == "" {
		c.SMTP.Security = "starttls"
	}
}
