package handler

import (
	"net/http"

	"github.com/keygate/backend/internal/contextkeys"
	"github.com/keygate/backend/internal/domain"
	"github.com/keygate/backend/internal/service"
)

// AuthHandler handles signup, login, and identity lookup.
type AuthHandler struct {
	svc *service.AccountService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AccountService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Signup handles POST /api/v1/auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.svc.Signup(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusCreated, resp)
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.svc.Login(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, resp)
}

// Me handles GET /api/v1/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value(contextkeys.AccountID).(string)
	if !ok || accountID == "" {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	account, err := h.svc.GetAccount(r.Context(), accountID)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, account)
}
