package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/pantry/internal/auth"
	"github.com/dukerupert/pantry/internal/inventory"
	"github.com/dukerupert/pantry/internal/model"
)

// ScreenHeader lets one session drive several scanners, each with its own
// in-flight slot.
const ScreenHeader = "X-Screen-ID"

// Inventory is the stock service behind the item endpoints.
type Inventory interface {
	Reconcile(ctx context.Context, req inventory.ReconcileRequest) (*model.Item, error)
	Adjust(ctx context.Context, tenantID string, id int64, delta int) (*model.Item, error)
	Delete(ctx context.Context, tenantID string, id int64) error
	View(ctx context.Context, tenantID string) (*inventory.View, error)
}

// ScanRecorder counts scans turned away by the guard.
type ScanRecorder interface {
	ScanRejected()
}

type ItemHandler struct {
	inventory Inventory
	guard     *inventory.ScanGuard
	recorder  ScanRecorder
	logger    *slog.Logger
}

func NewItemHandler(inv Inventory, guard *inventory.ScanGuard, recorder ScanRecorder, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{inventory: inv, guard: guard, recorder: recorder, logger: logger}
}

// List handles GET /api/items
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	v, err := h.inventory.View(r.Context(), auth.TenantID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "view inventory", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Scan handles POST /api/items/scan
func (h *ItemHandler) Scan(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	release, ok := h.guard.TryBegin(screenKey(ac, r))
	if !ok {
		if h.recorder != nil {
			h.recorder.ScanRejected()
		}
		writeJSON(w, http.StatusConflict, map[string]string{"error": inventory.ErrScanInProgress.Error()})
		return
	}
	defer release()

	var req inventory.ReconcileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.TenantID = ac.TenantID

	item, err := h.inventory.Reconcile(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type adjustRequest struct {
	Delta int `json:"delta"`
}

// Adjust handles POST /api/items/{id}/adjust
func (h *ItemHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req adjustRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	item, err := h.inventory.Adjust(r.Context(), auth.TenantID(r.Context()), id, req.Delta)
	if err != nil {
		writeError(w, h.logger, "adjust item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Delete handles DELETE /api/items/{id}
func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	if err := h.inventory.Delete(r.Context(), auth.TenantID(r.Context()), id); err != nil {
		writeError(w, h.logger, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func screenKey(ac auth.AuthContext, r *http.Request) string {
	key := ac.TokenID
	if screen := r.Header.Get(ScreenHeader); screen != "" {
		key += "|" + screen
	}
	return key
}
