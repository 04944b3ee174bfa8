package model

import "time"

// CatalogEntry is product metadata shared by every tenant, keyed by barcode.
type CatalogEntry struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Brand     string    `json:"brand"`
	NCM       string    `json:"ncm,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
