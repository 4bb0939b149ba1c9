package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/webashraf/shawmsll-employ-ee-zone-backend/internal/auth"
)

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FCMToken string `json:"fcmToken,omitempty"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResp struct {
	AccessToken string `json:"accessToken"`
}

type emailReq struct {
	Email string `json:"email"`
}

type verifyTokenResp struct {
	VerifyToken string `json:"verifyToken"`
}

type verifyEmailReq struct {
	OTP   string `json:"otp"`
	Token string `json:"token"`
}

type resetTokenResp struct {
	ResetToken string `json:"resetToken"`
}

type forgetTokenResp struct {
	ForgetToken string `json:"forgetToken"`
}

type verifyOtpReq struct {
	OTP   string `json:"otp"`
	Token string `json:"token"`
}

type resetPasswordReq struct {
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
	Token           string `json:"token"`
}

type changePasswordReq struct {
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type noteResp struct {
	Note string `json:"note"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	if !s.rlLoginIP.allow(getClientIP(r)) || !s.rlLoginID.allow(email) {
		tooMany(w, 60)
		return
	}

	res, err := s.svc.Login(r.Context(), email, req.Password, req.FCMToken)
	if err != nil {
		s.audit.Append(email, "login-denied")
		writeErr(w, err)
		return
	}
	s.audit.Append(email, "login")
	writeJSON(w, res)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req refreshReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		http.Error(w, "refresh token required", http.StatusBadRequest)
		return
	}

	accessToken, err := s.svc.Refresh(r.Context(), token)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, refreshResp{AccessToken: accessToken})
}

func (s *Server) handleSendVerifyOTP(w http.ResponseWriter, r *http.Request) {
	email, ok := s.decodeEmailReq(w, r)
	if !ok {
		return
	}
	if !s.rlOtpIP.allow(getClientIP(r)) || !s.rlOtpID.allow(email) {
		tooMany(w, 60)
		return
	}

	verifyToken, err := s.svc.SendVerifyEmailOTP(r.Context(), email)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, verifyTokenResp{VerifyToken: verifyToken})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req verifyEmailReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	otp := strings.TrimSpace(req.OTP)
	token := strings.TrimSpace(req.Token)
	if otp == "" || token == "" {
		http.Error(w, "otp and token required", http.StatusBadRequest)
		return
	}
	if !s.rlOtpIP.allow(getClientIP(r)) {
		tooMany(w, 60)
		return
	}

	if err := s.svc.VerifyEmail(r.Context(), otp, token); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, noteResp{Note: "Email verified."})
}

func (s *Server) handleForgotPasswordLink(w http.ResponseWriter, r *http.Request) {
	email, ok := s.decodeEmailReq(w, r)
	if !ok {
		return
	}
	if !s.rlForgotIP.allow(getClientIP(r)) || !s.rlForgotID.allow(email) {
		tooMany(w, 60)
		return
	}

	resetToken, err := s.svc.RequestResetLink(r.Context(), email)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, resetTokenResp{ResetToken: resetToken})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	email, ok := s.decodeEmailReq(w, r)
	if !ok {
		return
	}
	if !s.rlForgotIP.allow(getClientIP(r)) || !s.rlForgotID.allow(email) {
		tooMany(w, 60)
		return
	}

	forgetToken, err := s.svc.RequestResetOTP(r.Context(), email)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, forgetTokenResp{ForgetToken: forgetToken})
}

func (s *Server) handleVerifyResetOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req verifyOtpReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	otp := strings.TrimSpace(req.OTP)
	token := strings.TrimSpace(req.Token)
	if otp == "" || token == "" {
		http.Error(w, "otp and token required", http.StatusBadRequest)
		return
	}
	if !s.rlResetIP.allow(getClientIP(r)) {
		tooMany(w, 60)
		return
	}

	resetToken, err := s.svc.VerifyResetOTP(r.Context(), otp, token)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, resetTokenResp{ResetToken: resetToken})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req resetPasswordReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" || req.NewPassword == "" {
		http.Error(w, "token and new password required", http.StatusBadRequest)
		return
	}
	if !s.rlResetIP.allow(getClientIP(r)) {
		tooMany(w, 60)
		return
	}

	user, err := s.svc.ResetPassword(r.Context(), req.NewPassword, req.ConfirmPassword, token)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.audit.Append(user.Email, "password-reset")
	writeJSON(w, user)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}

	var req changePasswordReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		http.Error(w, "old and new passwords required", http.StatusBadRequest)
		return
	}

	if err := s.svc.ChangePassword(r.Context(), claims.Email, req.OldPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		writeErr(w, err)
		return
	}
	s.audit.Append(claims.Email, "password-change")
	writeJSON(w, noteResp{Note: "Password updated."})
}

// handleMe serves the authenticated user's claims on GET and soft-deletes
// the account on DELETE.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, claims)
	case http.MethodDelete:
		if err := s.svc.Deactivate(r.Context(), claims.UserID); err != nil {
			writeErr(w, err)
			return
		}
		s.audit.Append(claims.Email, "deactivate")
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAudit exposes the event trail to admins.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	if claims.Role != auth.RoleAdmin && claims.Role != auth.RoleSuperAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	writeJSON(w, s.audit.Entries())
}

func (s *Server) decodeEmailReq(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	var req emailReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return "", false
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !isValidEmail(email) {
		http.Error(w, "valid email required", http.StatusBadRequest)
		return "", false
	}
	return email, true
}
