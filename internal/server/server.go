package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/webashraf/shawmsll-employ-ee-zone-backend/internal/audit"
	"github.com/webashraf/shawmsll-employ-ee-zone-backend/internal/auth"
	"github.com/webashraf/shawmsll-employ-ee-zone-backend/internal/mail"
)

type Server struct {
	cfg Config

	mux    *http.ServeMux
	svc    *auth.Service
	codec  *auth.TokenCodec
	logger *log.Logger
	audit  *audit.Log

	rlLoginIP  *keyedLimiter
	rlLoginID  *keyedLimiter
	rlOtpIP    *keyedLimiter
	rlOtpID    *keyedLimiter
	rlForgotIP *keyedLimiter
	rlForgotID *keyedLimiter
	rlResetIP  *keyedLimiter
}

func New(ctx context.Context, cfg Config) (*Server, error) {
	cfg.setDefaults()
	if cfg.MongoURI == "" {
		return nil, errors.New("server: MongoURI required")
	}
	if cfg.MongoDB == "" {
		return nil, errors.New("server: MongoDB required")
	}

	dir, err := auth.NewMongoDirectory(ctx, cfg.MongoURI, cfg.MongoDB, cfg.UsersCollection)
	if err != nil {
		return nil, err
	}
	return NewWithDirectory(cfg, dir)
}

// NewWithDirectory wires the server around an already-built directory.
// Tests use it with the in-memory implementation.
func NewWithDirectory(cfg Config, dir auth.UserDirectory) (*Server, error) {
	cfg.setDefaults()
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" || cfg.VerifyEmailSecret == "" || cfg.ResetSecret == "" {
		return nil, errors.New("server: all four token secrets required")
	}
	if sharesSecret(cfg) {
		return nil, errors.New("server: token secrets must be distinct per class")
	}

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	codec := auth.NewTokenCodec(auth.TokenConfig{
		AccessSecret:      []byte(cfg.AccessSecret),
		AccessTTL:         cfg.AccessTTL,
		RefreshSecret:     []byte(cfg.RefreshSecret),
		RefreshTTL:        cfg.RefreshTTL,
		VerifyEmailSecret: []byte(cfg.VerifyEmailSecret),
		VerifyEmailTTL:    cfg.VerifyEmailTTL,
		ResetSecret:       []byte(cfg.ResetSecret),
		ResetTTL:          cfg.ResetTTL,
	})

	notifier := mail.NewSMTPMailer(cfg.SMTP, logger)
	svc := auth.NewService(auth.ServiceConfig{
		OTPDigits:   cfg.OTPDigits,
		FrontendURL: cfg.FrontendURL,
	}, dir, auth.NewHasher(), codec, notifier, logger)

	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		svc:    svc,
		codec:  codec,
		logger: logger,
		audit:  audit.New(),
	}

	perWindow := func(n int, window time.Duration) float64 { return float64(n) / window.Seconds() }

	s.rlLoginIP = newKeyedLimiter(rate.Limit(perWindow(10, time.Minute)), 10, 1*time.Hour)
	s.rlLoginID = newKeyedLimiter(rate.Limit(perWindow(5, time.Minute)), 5, 1*time.Hour)

	s.rlOtpIP = newKeyedLimiter(rate.Limit(perWindow(10, time.Minute)), 10, 10*time.Minute)
	s.rlOtpID = newKeyedLimiter(rate.Limit(perWindow(3, time.Minute)), 3, 10*time.Minute)

	s.rlForgotIP = newKeyedLimiter(rate.Limit(perWindow(5, 15*time.Minute)), 5, 30*time.Minute)
	s.rlForgotID = newKeyedLimiter(rate.Limit(perWindow(3, 15*time.Minute)), 3, 30*time.Minute)

	s.rlResetIP = newKeyedLimiter(rate.Limit(perWindow(10, 15*time.Minute)), 10, 30*time.Minute)

	s.routes()
	return s, nil
}

func sharesSecret(cfg Config) bool {
	seen := map[string]bool{}
	for _, sec := range []string{cfg.AccessSecret, cfg.RefreshSecret, cfg.VerifyEmailSecret, cfg.ResetSecret} {
		if seen[sec] {
			return true
		}
		seen[sec] = true
	}
	return false
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Printf("panic: %v", rec)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}()

	s.addDefaultHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	path := r.URL.Path
	if strings.HasPrefix(path, "/api/") {
		if s.isPublic(path) {
			s.mux.ServeHTTP(w, r)
			return
		}
		handler := auth.AuthRequired(s.codec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		}))
		handler.ServeHTTP(w, r)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s
}

func (s *Server) isPublic(path string) bool {
	switch path {
	case "/health", "/api/health",
		"/api/auth/login",
		"/api/auth/refresh-token",
		"/api/auth/send-verify-otp",
		"/api/auth/verify-email",
		"/api/auth/forgot-password-link",
		"/api/auth/forgot-password",
		"/api/auth/verify-otp",
		"/api/auth/reset-password":
		return true
	default:
		return false
	}
}

func (s *Server) addDefaultHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	if strings.HasPrefix(r.URL.Path, "/api/") {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
}
