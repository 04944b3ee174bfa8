package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/pantry/internal/auth"
	"github.com/dukerupert/pantry/internal/middleware"
)

// Authenticator is the sign-in surface the auth endpoints need.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*auth.Principal, error)
	Register(ctx context.Context, email, password, tenantID string) (*auth.Principal, error)
	ResetPassword(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, email, code, newPassword string) error
}

type AuthHandler struct {
	gateway Authenticator
	logger  *slog.Logger
}

func NewAuthHandler(gateway Authenticator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{gateway: gateway, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Tenant   string `json:"tenant"`
}

type resetRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	p, err := h.gateway.Register(r.Context(), req.Email, req.Password, req.Tenant)
	if err != nil {
		writeError(w, h.logger, "register", err)
		return
	}

	setSessionCookie(w, r, p.Token, p.ExpiresAt)
	writeJSON(w, http.StatusCreated, p)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	p, err := h.gateway.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, "login", err)
		return
	}

	h.logger.Info("signed in", "account", p.AccountID, "tenant", p.TenantID)
	setSessionCookie(w, r, p.Token, p.ExpiresAt)
	writeJSON(w, http.StatusOK, p)
}

// Logout handles POST /api/auth/logout. Tokens are stateless, so this only
// clears the browser cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

// ResetPassword handles POST /api/auth/reset
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if err := h.gateway.ResetPassword(r.Context(), req.Email); err != nil {
		writeError(w, h.logger, "reset password", err)
		return
	}

	// Same response whether or not the address is registered.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "if the address is registered, a code is on its way"})
}

// ConfirmReset handles POST /api/auth/reset/confirm
func (h *AuthHandler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if err := h.gateway.ConfirmReset(r.Context(), req.Email, req.Code, req.Password); err != nil {
		writeError(w, h.logger, "confirm reset", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
}
