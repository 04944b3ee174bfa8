package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/dukerupert/pantry/internal/lookup"
)

type fakeLookup struct{ codes []string }

func (f *fakeLookup) Lookup(ctx context.Context, code string) lookup.ProductInfo {
	f.codes = append(f.codes, code)
	if code == "7891000100103" {
		return lookup.ProductInfo{Name: "Leite Condensado", Brand: "Moça", Source: "brasilapi"}
	}
	return lookup.Placeholder()
}

func TestProductGet(t *testing.T) {
	fl := &fakeLookup{}
	h := NewProductHandler(fl, testLogger())

	rec := serve("GET /api/products/{code}", h.Get, newRequest(t, "GET", "/api/products/7891000100103", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["name"] != "Leite Condensado" || body["brand"] != "Moça" || body["symbology"] != "ean13" {
		t.Errorf("body = %v", body)
	}
}

func TestProductGetPlaceholder(t *testing.T) {
	h := NewProductHandler(&fakeLookup{}, testLogger())

	rec := serve("GET /api/products/{code}", h.Get, newRequest(t, "GET", "/api/products/96385074", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["name"] != lookup.PlaceholderName || body["source"] != "placeholder" {
		t.Errorf("body = %v", body)
	}
}

func TestProductGetInvalidBarcode(t *testing.T) {
	fl := &fakeLookup{}
	h := NewProductHandler(fl, testLogger())

	for _, code := range []string{"7891000100104", "12345", "abcdefgh"} {
		rec := serve("GET /api/products/{code}", h.Get, newRequest(t, "GET", "/api/products/"+code, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", code, rec.Code, http.StatusBadRequest)
		}
	}
	if len(fl.codes) != 0 {
		t.Errorf("lookup called for invalid codes: %v", fl.codes)
	}
}
