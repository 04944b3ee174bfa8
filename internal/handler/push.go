package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/pantry/internal/auth"
	"github.com/dukerupert/pantry/internal/model"
	"github.com/dukerupert/pantry/internal/notify"
)

// PushSubscriptions stores browser push endpoints.
type PushSubscriptions interface {
	CreateSubscription(ctx context.Context, accountID int64, tenantID, endpoint, p256dh, auth, deviceName string, at time.Time) (*model.PushSubscription, error)
	ListByAccount(ctx context.Context, accountID int64, tenantID string) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, id, accountID int64) error
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// PushSender delivers a single web push message.
type PushSender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload notify.Payload) error
	VAPIDPublicKey() string
}

type PushHandler struct {
	subs   PushSubscriptions
	sender PushSender
	now    func() time.Time
	logger *slog.Logger
}

func NewPushHandler(subs PushSubscriptions, sender PushSender, now func() time.Time, logger *slog.Logger) *PushHandler {
	if now == nil {
		now = time.Now
	}
	return &PushHandler{subs: subs, sender: sender, now: now, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req subscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "endpoint, p256dh, and auth are required"})
		return
	}

	sub, err := h.subs.CreateSubscription(r.Context(), ac.AccountID, ac.TenantID, req.Endpoint, req.P256dh, req.Auth, req.DeviceName, h.now())
	if err != nil {
		h.logger.Error("create push subscription", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save subscription"})
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	if err := h.subs.DeleteSubscription(r.Context(), id, auth.AccountID(r.Context())); err != nil {
		h.logger.Error("delete push subscription", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete subscription"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	subs, err := h.subs.ListByAccount(r.Context(), ac.AccountID, ac.TenantID)
	if err != nil {
		h.logger.Error("list push subscriptions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list subscriptions"})
		return
	}
	if subs == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.sender.VAPIDPublicKey()})
}

// TestNotification handles POST /api/push/test by sending a message to every
// device the caller has registered.
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	subs, err := h.subs.ListByAccount(r.Context(), ac.AccountID, ac.TenantID)
	if err != nil {
		h.logger.Error("list push subscriptions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list subscriptions"})
		return
	}
	if len(subs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no devices registered for notifications"})
		return
	}

	payload := notify.Payload{Title: "Pantry", Body: "Notifications are working.", Tag: "test"}
	sent := 0
	for i := range subs {
		err := h.sender.Send(r.Context(), &subs[i], payload)
		if errors.Is(err, notify.ErrExpired) {
			if err := h.subs.DeleteByEndpoint(r.Context(), subs[i].Endpoint); err != nil {
				h.logger.Error("delete expired subscription", "error", err)
			}
			continue
		}
		if err != nil {
			h.logger.Warn("test notification", "subscription", subs[i].ID, "error", err)
			continue
		}
		sent++
	}

	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}
