package server

import "net/http"

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/health", s.handleHealth)

	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/refresh-token", s.handleRefresh)
	s.mux.HandleFunc("/api/auth/send-verify-otp", s.handleSendVerifyOTP)
	s.mux.HandleFunc("/api/auth/verify-email", s.handleVerifyEmail)
	s.mux.HandleFunc("/api/auth/forgot-password-link", s.handleForgotPasswordLink)
	s.mux.HandleFunc("/api/auth/forgot-password", s.handleForgotPassword)
	s.mux.HandleFunc("/api/auth/verify-otp", s.handleVerifyResetOTP)
	s.mux.HandleFunc("/api/auth/reset-password", s.handleResetPassword)
	s.mux.HandleFunc("/api/auth/change-password", s.handleChangePassword)
	s.mux.HandleFunc("/api/auth/me", s.handleMe)
	s.mux.HandleFunc("/api/auth/audit", s.handleAudit)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
