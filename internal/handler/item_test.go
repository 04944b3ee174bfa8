package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/dukerupert/pantry/internal/apperr"
	"github.com/dukerupert/pantry/internal/expiry"
	"github.com/dukerupert/pantry/internal/inventory"
	"github.com/dukerupert/pantry/internal/model"
)

type fakeInventory struct {
	reconciled []inventory.ReconcileRequest
	reconcile  func(req inventory.ReconcileRequest) (*model.Item, error)
	adjustErr  error
	deleteErr  error
	view       *inventory.View
}

func (f *fakeInventory) Reconcile(ctx context.Context, req inventory.ReconcileRequest) (*model.Item, error) {
	f.reconciled = append(f.reconciled, req)
	if f.reconcile != nil {
		return f.reconcile(req)
	}
	return &model.Item{ID: 1, TenantID: req.TenantID, Code: req.Code, Expiry: req.Expiry, Quantity: req.Quantity}, nil
}

func (f *fakeInventory) Adjust(ctx context.Context, tenantID string, id int64, delta int) (*model.Item, error) {
	if f.adjustErr != nil {
		return nil, f.adjustErr
	}
	return &model.Item{ID: id, TenantID: tenantID, Quantity: 1 + delta}, nil
}

func (f *fakeInventory) Delete(ctx context.Context, tenantID string, id int64) error {
	return f.deleteErr
}

func (f *fakeInventory) View(ctx context.Context, tenantID string) (*inventory.View, error) {
	if f.view == nil {
		return &inventory.View{InStock: []inventory.ClassifiedItem{}, Shopping: []model.Item{}}, nil
	}
	return f.view, nil
}

type countingRecorder struct{ rejected int }

func (c *countingRecorder) ScanRejected() { c.rejected++ }

func newItemHandler(inv *fakeInventory) (*ItemHandler, *inventory.ScanGuard, *countingRecorder) {
	guard := inventory.NewScanGuard()
	rec := &countingRecorder{}
	return NewItemHandler(inv, guard, rec, testLogger()), guard, rec
}

func TestScanUsesSessionTenant(t *testing.T) {
	inv := &fakeInventory{}
	h, guard, _ := newItemHandler(inv)

	req := newRequest(t, "POST", "/api/items/scan", map[string]any{
		"code": "7891000100103", "expiry": "15/03/2026", "quantity": 2,
	})
	rec := serve("POST /api/items/scan", h.Scan, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if len(inv.reconciled) != 1 {
		t.Fatalf("reconcile calls = %d, want 1", len(inv.reconciled))
	}
	if got := inv.reconciled[0]; got.TenantID != "HOME" || got.Quantity != 2 || got.Code != "7891000100103" {
		t.Errorf("request = %+v", got)
	}
	if guard.InFlight() != 0 {
		t.Errorf("guard still held after scan")
	}
}

func TestScanIgnoresTenantInBody(t *testing.T) {
	inv := &fakeInventory{}
	h, _, _ := newItemHandler(inv)

	req := newRequest(t, "POST", "/api/items/scan", map[string]any{
		"tenant_id": "OTHER", "code": "7891000100103", "expiry": "15/03/2026", "quantity": 1,
	})
	serve("POST /api/items/scan", h.Scan, req)

	if len(inv.reconciled) != 1 || inv.reconciled[0].TenantID != "HOME" {
		t.Errorf("reconciled = %+v, want tenant HOME", inv.reconciled)
	}
}

func TestScanRejectedWhileBusy(t *testing.T) {
	inv := &fakeInventory{}
	h, guard, counter := newItemHandler(inv)

	release, ok := guard.TryBegin("jti-1")
	if !ok {
		t.Fatal("could not claim guard")
	}
	defer release()

	req := newRequest(t, "POST", "/api/items/scan", map[string]any{
		"code": "7891000100103", "expiry": "15/03/2026", "quantity": 1,
	})
	rec := serve("POST /api/items/scan", h.Scan, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if msg := errorMessage(t, rec); msg != inventory.ErrScanInProgress.Error() {
		t.Errorf("error = %q", msg)
	}
	if len(inv.reconciled) != 0 {
		t.Error("rejected scan reached the service")
	}
	if counter.rejected != 1 {
		t.Errorf("rejected = %d, want 1", counter.rejected)
	}
}

func TestScanSeparateScreens(t *testing.T) {
	inv := &fakeInventory{}
	h, guard, _ := newItemHandler(inv)

	release, ok := guard.TryBegin("jti-1|kitchen")
	if !ok {
		t.Fatal("could not claim guard")
	}
	defer release()

	req := newRequest(t, "POST", "/api/items/scan", map[string]any{
		"code": "7891000100103", "expiry": "15/03/2026", "quantity": 1,
	})
	req.Header.Set(ScreenHeader, "garage")
	rec := serve("POST /api/items/scan", h.Scan, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestScanValidationError(t *testing.T) {
	inv := &fakeInventory{reconcile: func(req inventory.ReconcileRequest) (*model.Item, error) {
		return nil, apperr.Validation("quantity must be at least 1")
	}}
	h, _, _ := newItemHandler(inv)

	req := newRequest(t, "POST", "/api/items/scan", map[string]any{"code": "7891000100103", "expiry": "15/03/2026"})
	rec := serve("POST /api/items/scan", h.Scan, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if msg := errorMessage(t, rec); msg != "quantity must be at least 1" {
		t.Errorf("error = %q", msg)
	}
}

func TestScanStorageErrorHidesCause(t *testing.T) {
	inv := &fakeInventory{reconcile: func(req inventory.ReconcileRequest) (*model.Item, error) {
		return nil, apperr.Storage("create item", errSecret)
	}}
	h, _, _ := newItemHandler(inv)

	req := newRequest(t, "POST", "/api/items/scan", map[string]any{"code": "7891000100103", "expiry": "15/03/2026", "quantity": 1})
	rec := serve("POST /api/items/scan", h.Scan, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if msg := errorMessage(t, rec); msg != "could not save, please try again" {
		t.Errorf("error = %q", msg)
	}
}

func TestScanInvalidJSON(t *testing.T) {
	inv := &fakeInventory{}
	h, guard, _ := newItemHandler(inv)

	req := newRequest(t, "POST", "/api/items/scan", "not an object")
	rec := serve("POST /api/items/scan", h.Scan, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if guard.InFlight() != 0 {
		t.Error("guard still held after bad request")
	}
}

func TestAdjust(t *testing.T) {
	inv := &fakeInventory{}
	h, _, _ := newItemHandler(inv)

	rec := serve("POST /api/items/{id}/adjust", h.Adjust, newRequest(t, "POST", "/api/items/5/adjust", map[string]int{"delta": 2}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var item model.Item
	decodeBody(t, rec, &item)
	if item.ID != 5 || item.Quantity != 3 {
		t.Errorf("item = %+v", item)
	}

	rec = serve("POST /api/items/{id}/adjust", h.Adjust, newRequest(t, "POST", "/api/items/abc/adjust", map[string]int{"delta": 1}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	inv.adjustErr = apperr.NotFound("item not found")
	rec = serve("POST /api/items/{id}/adjust", h.Adjust, newRequest(t, "POST", "/api/items/9/adjust", map[string]int{"delta": -1}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing: status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDelete(t *testing.T) {
	inv := &fakeInventory{}
	h, _, _ := newItemHandler(inv)

	rec := serve("DELETE /api/items/{id}", h.Delete, newRequest(t, "DELETE", "/api/items/5", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	inv.deleteErr = apperr.Validation("item is no longer listed and cannot be deleted")
	rec = serve("DELETE /api/items/{id}", h.Delete, newRequest(t, "DELETE", "/api/items/5", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestList(t *testing.T) {
	inv := &fakeInventory{view: &inventory.View{
		InStock: []inventory.ClassifiedItem{{
			Item:           model.Item{ID: 1, Name: "Milk", Quantity: 2, Expiry: "03/12/2025"},
			Classification: expiry.Classification{Bucket: expiry.Critical, DaysRemaining: 2},
		}},
		Shopping: []model.Item{},
	}}
	h, _, _ := newItemHandler(inv)

	rec := serve("GET /api/items", h.List, newRequest(t, "GET", "/api/items", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		InStock []struct {
			Name           string `json:"name"`
			Classification struct {
				Bucket        string `json:"bucket"`
				DaysRemaining int    `json:"days_remaining"`
			} `json:"classification"`
		} `json:"in_stock"`
		Shopping []any `json:"shopping"`
	}
	decodeBody(t, rec, &body)
	if len(body.InStock) != 1 || body.InStock[0].Name != "Milk" {
		t.Fatalf("in_stock = %+v", body.InStock)
	}
	if body.InStock[0].Classification.DaysRemaining != 2 {
		t.Errorf("classification = %+v", body.InStock[0].Classification)
	}
	if body.Shopping == nil {
		t.Error("shopping should encode as an empty array")
	}
}
