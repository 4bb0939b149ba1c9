package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/webashraf/shawmsll-employ-ee-zone-backend/internal/auth"
)

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errResp struct {
	Error string `json:"error"`
}

// writeErr maps the core's typed errors onto HTTP statuses. Untyped errors
// never leak their message.
func writeErr(w http.ResponseWriter, err error) {
	var e *auth.Error
	if errors.As(err, &e) {
		writeJSONStatus(w, statusForKind(e.Kind), errResp{Error: e.Message})
		return
	}
	writeJSONStatus(w, http.StatusInternalServerError, errResp{Error: "internal error"})
}

func statusForKind(k auth.Kind) int {
	switch k {
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindForbidden:
		return http.StatusForbidden
	case auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func tooMany(w http.ResponseWriter, retryAfterSeconds int) {
	if retryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	http.Error(w, "too many requests", http.StatusTooManyRequests)
}

var reEmail = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func isValidEmail(email string) bool {
	return reEmail.MatchString(email)
}
