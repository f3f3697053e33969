package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chatforge/authcore/internal/http/middleware"
	"github.com/chatforge/authcore/internal/http/response"
	"github.com/chatforge/authcore/internal/observability"
	"github.com/chatforge/authcore/internal/service"
)

// AuthHandler exposes the engine's login, refresh, logout, and session
// operations over JSON.
type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type twoFactorLoginRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	Token string `json:"token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
	SessionID    string `json:"session_id,omitempty"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "invalid_request", "email and password are required", nil)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password, requestMeta(r))
	if err != nil {
		observability.Audit(r, "login_rejected", "email", req.Email, "code", service.ErrorCode(err))
		response.ServiceError(w, r, err)
		return
	}
	if result.ChallengeID != "" {
		observability.Audit(r, "login_awaiting_second_factor", "email", req.Email)
		response.JSON(w, r, http.StatusAccepted, map[string]string{
			"challenge_id": result.ChallengeID,
			"status":       "2fa_required",
		})
		return
	}
	observability.Audit(r, "login_success", "email", req.Email)
	response.JSON(w, r, http.StatusOK, tokenResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		ExpiresAt:    result.Tokens.AccessExpiresAt.Unix(),
		SessionID:    result.Tokens.SessionID,
	})
}

func (h *AuthHandler) TwoFactorLogin(w http.ResponseWriter, r *http.Request) {
	var req twoFactorLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChallengeID == "" || req.Code == "" {
		response.Error(w, r, http.StatusBadRequest, "invalid_request", "challenge_id and code are required", nil)
		return
	}

	result, err := h.auth.CompleteTwoFactorLogin(r.Context(), req.ChallengeID, req.Code)
	if err != nil {
		observability.Audit(r, "2fa_login_rejected", "code", service.ErrorCode(err))
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "2fa_login_success")
	response.JSON(w, r, http.StatusOK, tokenResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		ExpiresAt:    result.Tokens.AccessExpiresAt.Unix(),
		SessionID:    result.Tokens.SessionID,
	})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		response.Error(w, r, http.StatusBadRequest, "invalid_request", "refresh_token is required", nil)
		return
	}

	token, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		observability.Audit(r, "refresh_rejected", "code", service.ErrorCode(err))
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, tokenResponse{
		AccessToken: token.Token,
		ExpiresAt:   token.ExpiresAt.Unix(),
	})
}

// Logout accepts the token to revoke from the Authorization header or,
// for expired tokens a client wants to clean up, from the body.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		var req logoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			raw = req.Token
		}
	}
	if raw == "" {
		response.Error(w, r, http.StatusBadRequest, "invalid_request", "no token supplied", nil)
		return
	}

	if err := h.auth.Logout(r.Context(), raw); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "logout")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "unauthorized", "missing auth context", nil)
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "unauthorized", "malformed subject", nil)
		return
	}
	views, err := h.auth.Sessions(r.Context(), userID)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": views})
}

func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "unauthorized", "missing auth context", nil)
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "unauthorized", "malformed subject", nil)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		response.Error(w, r, http.StatusBadRequest, "invalid_request", "session id is required", nil)
		return
	}
	if err := h.auth.RevokeSession(r.Context(), userID, sessionID); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "session_revoked", "session_id", sessionID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *AuthHandler) LogoutEverywhere(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "unauthorized", "missing auth context", nil)
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "unauthorized", "malformed subject", nil)
		return
	}
	count, err := h.auth.LogoutEverywhere(r.Context(), userID)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "logout_everywhere", "sessions_invalidated", count)
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions_invalidated": count})
}

func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
