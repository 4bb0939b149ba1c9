package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/webashraf/shawmsll-employ-ee-zone-backend/internal/mail"
	"github.com/webashraf/shawmsll-employ-ee-zone-backend/internal/server"
)

func main() {
	cfg := server.Config{
		MongoURI:        getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:         getenv("MONGO_DB", "employzone"),
		UsersCollection: getenv("USERS_COLLECTION", "users"),
		FrontendURL:     getenv("FRONTEND_URL", "http://localhost:5173"),

		AccessSecret:      os.Getenv("JWT_ACCESS_SECRET"),
		AccessTTL:         getenvDuration("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshSecret:     os.Getenv("JWT_REFRESH_SECRET"),
		RefreshTTL:        getenvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		VerifyEmailSecret: os.Getenv("JWT_VERIFY_EMAIL_SECRET"),
		VerifyEmailTTL:    getenvDuration("OTP_TTL", 5*time.Minute),
		ResetSecret:       os.Getenv("JWT_RESET_SECRET"),
		ResetTTL:          getenvDuration("RESET_LINK_TTL", 15*time.Minute),

		OTPDigits: getenvInt("OTP_DIGITS", 6),

		SMTP: mail.SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     os.Getenv("SMTP_PORT"),
			User:     os.Getenv("SMTP_USER"),
			Pass:     os.Getenv("SMTP_PASS"),
			From:     os.Getenv("SMTP_FROM"),
			Security: os.Getenv("SMTP_SECURITY"),
		},
	}

	ctx := context.Background()
	s, err := server.New(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	addr := getenv("LISTEN_ADDR", ":8080")
	log.Printf("auth backend on %s", addr)
	log.Fatal(http.ListenAndServe(addr, s.Handler()))
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
