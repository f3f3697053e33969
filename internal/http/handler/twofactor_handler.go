package handler

import (
	"encoding/json"
	"net/http"

	"github.com/chatforge/authcore/internal/http/middleware"
	"github.com/chatforge/authcore/internal/http/response"
	"github.com/chatforge/authcore/internal/observability"
	"github.com/chatforge/authcore/internal/security"
	"github.com/chatforge/authcore/internal/service"
)

// TwoFactorHandler exposes enrollment and management of the second
// factor. All routes require an authenticated session.
type TwoFactorHandler struct {
	gate *service.TwoFactorGate
}

func NewTwoFactorHandler(gate *service.TwoFactorGate) *TwoFactorHandler {
	return &TwoFactorHandler{gate: gate}
}

type twoFactorCodeRequest struct {
	Code string `json:"code"`
}

func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	enrollment, err := h.gate.GenerateSecret(r.Context(), userID, claims.Subject)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "2fa_setup_started")
	response.JSON(w, r, http.StatusOK, enrollment)
}

func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	var req twoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		response.Error(w, r, http.StatusBadRequest, "invalid_request", "code is required", nil)
		return
	}
	if err := h.gate.Enable(r.Context(), userID, req.Code); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "2fa_enabled")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "enabled"})
}

func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	var req twoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		response.Error(w, r, http.StatusBadRequest, "invalid_request", "code is required", nil)
		return
	}
	if err := h.gate.Disable(r.Context(), userID, req.Code); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "2fa_disabled")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "disabled"})
}

func (h *TwoFactorHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	var req twoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		response.Error(w, r, http.StatusBadRequest, "invalid_request", "code is required", nil)
		return
	}
	codes, err := h.gate.RegenerateBackupCodes(r.Context(), userID, req.Code)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "2fa_backup_codes_regenerated")
	response.JSON(w, r, http.StatusOK, map[string]any{"backup_codes": codes})
}

func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	enabled, err := h.gate.IsEnabled(r.Context(), userID)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"enabled": enabled})
}

func authedUser(w http.ResponseWriter, r *http.Request) (*security.Claims, uint, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "unauthorized", "missing auth context", nil)
		return nil, 0, false
	}
	userID, err := claims.UserID()
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "unauthorized", "malformed subject", nil)
		return nil, 0, false
	}
	return claims, userID, true
}
