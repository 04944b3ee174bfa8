package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/pantry/internal/barcode"
	"github.com/dukerupert/pantry/internal/lookup"
)

// ProductLookup resolves a barcode to a display name and brand.
type ProductLookup interface {
	Lookup(ctx context.Context, code string) lookup.ProductInfo
}

type ProductHandler struct {
	lookup ProductLookup
	logger *slog.Logger
}

func NewProductHandler(l ProductLookup, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{lookup: l, logger: logger}
}

type productResponse struct {
	Code      string `json:"code"`
	Symbology string `json:"symbology"`
	lookup.ProductInfo
}

// Get handles GET /api/products/{code}. It always answers with something the
// scan form can prefill; unknown products come back as the placeholder.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	sym, err := barcode.Validate(code)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	info := h.lookup.Lookup(r.Context(), code)
	writeJSON(w, http.StatusOK, productResponse{Code: code, Symbology: string(sym), ProductInfo: info})
}
