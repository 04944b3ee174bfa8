// Package expiry classifies pantry items by how close they are to their
// expiry date and splits a tenant's items into the in-stock list and the
// shopping list.
package expiry

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dukerupert/pantry/internal/model"
)

// Layout is the stored expiry format, DD/MM/YYYY.
const Layout = "02/01/2006"

// RetentionWindow is how long a depleted item stays on the shopping list.
const RetentionWindow = 30 * 24 * time.Hour

var ErrInvalidDate = errors.New("expiry must be a complete date in DD/MM/YYYY format")

// ParseDate parses a DD/MM/YYYY string into midnight UTC of that day.
// Partial dates and impossible days are rejected.
func ParseDate(s string) (time.Time, error) {
	if len(s) != len(Layout) {
		return time.Time{}, ErrInvalidDate
	}
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	return t, nil
}

// FormatDate renders the calendar date of t as DD/MM/YYYY.
func FormatDate(t time.Time) string {
	return t.Format(Layout)
}

type Bucket string

const (
	Expired  Bucket = "expired"
	Critical Bucket = "critical"
	Warning  Bucket = "warning"
	Normal   Bucket = "normal"
	Unknown  Bucket = "unknown"
)

type Classification struct {
	Bucket        Bucket `json:"bucket"`
	DaysRemaining int    `json:"days_remaining"`
}

// Classify places an in-stock item into an urgency bucket relative to today.
// Depleted items and items with an unparseable expiry are Unknown.
func Classify(item model.Item, today time.Time) Classification {
	if item.Quantity <= 0 {
		return Classification{Bucket: Unknown}
	}
	exp, err := ParseDate(item.Expiry)
	if err != nil {
		return Classification{Bucket: Unknown}
	}

	days := DaysBetween(today, exp)
	return Classification{Bucket: bucketFor(days), DaysRemaining: days}
}

func bucketFor(days int) Bucket {
	switch {
	case days < 0:
		return Expired
	case days <= 2:
		return Critical
	case days <= 7:
		return Warning
	default:
		return Normal
	}
}

// DaysBetween counts whole calendar days from the date of a to the date of
// b, each taken in its own location.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// SortByExpiry orders items by ascending expiry. Items whose expiry cannot
// be parsed go last; equal keys keep their incoming order.
func SortByExpiry(items []model.Item) {
	type keyed struct {
		item model.Item
		at   time.Time
		ok   bool
	}
	ks := make([]keyed, len(items))
	for i, it := range items {
		at, err := ParseDate(it.Expiry)
		ks[i] = keyed{item: it, at: at, ok: err == nil}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		if ks[i].ok && ks[j].ok {
			return ks[i].at.Before(ks[j].at)
		}
		return ks[i].ok && !ks[j].ok
	})
	for i := range ks {
		items[i] = ks[i].item
	}
}

// InShoppingList reports whether a depleted item is still recent enough to
// show on the shopping list. A depleted item without a depletion time counts
// as depleted now.
func InShoppingList(item model.Item, now time.Time) bool {
	if item.Quantity > 0 {
		return false
	}
	depletedAt := now
	if item.DepletedAt != nil {
		depletedAt = *item.DepletedAt
	}
	return depletedAt.After(now.Add(-RetentionWindow))
}

// Partition splits items into in-stock (sorted by expiry) and the shopping
// list. Depleted items outside the retention window are dropped.
func Partition(items []model.Item, now time.Time) (inStock, shopping []model.Item) {
	for _, it := range items {
		switch {
		case it.Quantity > 0:
			inStock = append(inStock, it)
		case InShoppingList(it, now):
			shopping = append(shopping, it)
		}
	}
	SortByExpiry(inStock)
	return inStock, shopping
}
