package model

import "time"

// Item statuses. StatusAvailable holds exactly when Quantity > 0.
const (
	StatusAvailable = "available"
	StatusDepleted  = "depleted"
)

// Item is one stock line: a product code with a specific expiry date inside
// a tenant's pantry.
type Item struct {
	ID         int64      `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	Brand      string     `json:"brand"`
	Quantity   int        `json:"quantity"`
	Expiry     string     `json:"expiry"`
	Status     string     `json:"status"`
	AddedAt    time.Time  `json:"added_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	DepletedAt *time.Time `json:"depleted_at,omitempty"`
}

// InStock reports whether the item has any units left.
func (i Item) InStock() bool {
	return i.Quantity > 0
}

// StatusFor returns the status that matches a quantity.
func StatusFor(quantity int) string {
	if quantity > 0 {
		return StatusAvailable
	}
	return StatusDepleted
}
