package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/chatforge/authcore/internal/service"
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
	Meta    meta        `json:"meta"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Meta: buildMeta(r)})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &apiError{Code: code, Message: message, Details: details}, Meta: buildMeta(r)})
}

// ServiceError maps an engine error onto the wire. Internal failure
// detail never crosses this boundary; callers see the stable code only.
func ServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := service.ErrorCode(err)
	Error(w, r, statusFor(err), code, messageFor(code), nil)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidRefreshToken),
		errors.Is(err, service.ErrTokenRevoked),
		errors.Is(err, service.ErrSessionExpired),
		errors.Is(err, service.ErrUnauthorized),
		errors.Is(err, service.ErrInvalidTwoFactorCode),
		errors.Is(err, service.ErrChallengeExpired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAccountLocked):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrTwoFactorNotEnabled),
		errors.Is(err, service.ErrTwoFactorEnabled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(code string) string {
	switch code {
	case "invalid_credentials":
		return "invalid email or password"
	case "account_locked":
		return "too many failed attempts, try again later"
	case "invalid_refresh_token":
		return "refresh token is not valid"
	case "token_revoked":
		return "token has been revoked"
	case "session_expired":
		return "session is no longer active"
	case "unauthorized":
		return "authentication required"
	case "invalid_2fa_code":
		return "one-time code is not valid"
	case "2fa_not_enabled":
		return "two-factor authentication is not enabled"
	case "2fa_already_enabled":
		return "two-factor authentication is already enabled"
	case "2fa_required":
		return "second factor required"
	case "challenge_expired":
		return "login challenge expired, start over"
	default:
		return "internal error"
	}
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}
