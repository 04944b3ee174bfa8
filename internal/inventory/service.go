// Package inventory reconciles scanned products into a tenant's stock and
// builds the in-stock and shopping-list views.
package inventory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/pantry/internal/apperr"
	"github.com/dukerupert/pantry/internal/barcode"
	"github.com/dukerupert/pantry/internal/expiry"
	"github.com/dukerupert/pantry/internal/lookup"
	"github.com/dukerupert/pantry/internal/model"
	"github.com/dukerupert/pantry/internal/websocket"
)

// Items is the tenant-partitioned item store.
type Items interface {
	GetByID(ctx context.Context, tenantID string, id int64) (*model.Item, error)
	FindByCodeAndExpiry(ctx context.Context, tenantID, code, expiry string) (*model.Item, error)
	Create(ctx context.Context, item model.Item) (*model.Item, error)
	AddQuantity(ctx context.Context, tenantID string, id int64, delta int, at time.Time) (*model.Item, error)
	AdjustQuantity(ctx context.Context, tenantID string, id int64, delta int, at time.Time) (*model.Item, error)
	ListByTenant(ctx context.Context, tenantID string) ([]model.Item, error)
	Delete(ctx context.Context, tenantID string, id int64) error
}

type ProductLookup interface {
	Lookup(ctx context.Context, code string) lookup.ProductInfo
}

type ExpiryScheduler interface {
	ScheduleExpiryWarning(ctx context.Context, tenantID, code, itemName, expiry string)
}

type Publisher interface {
	Publish(tenantID string, msg websocket.Message)
}

// Recorder counts inventory operations; it may be nil.
type Recorder interface {
	ReconcileResult(result string)
	Adjusted()
	Deleted()
}

type Config struct {
	// Location decides which calendar day "today" is when classifying.
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	items     Items
	products  ProductLookup
	scheduler ExpiryScheduler
	publisher Publisher
	recorder  Recorder
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(items Items, products ProductLookup, scheduler ExpiryScheduler, publisher Publisher, recorder Recorder, cfg Config, logger *slog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		items:     items,
		products:  products,
		scheduler: scheduler,
		publisher: publisher,
		recorder:  recorder,
		loc:       cfg.Location,
		now:       cfg.Now,
		logger:    logger,
	}
}

// ReconcileRequest is one scan-and-save from a client.
type ReconcileRequest struct {
	TenantID string `json:"-"`
	Code     string `json:"code"`
	Expiry   string `json:"expiry"`
	Quantity int    `json:"quantity"`
	Name     string `json:"name"`
	Brand    string `json:"brand"`
}

// Reconcile adds Quantity units of (Code, Expiry) to the tenant's stock. An
// existing line for the same pair is incremented; otherwise a new line is
// created. An expiry warning is scheduled either way.
func (s *Service) Reconcile(ctx context.Context, req ReconcileRequest) (*model.Item, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.Expiry = strings.TrimSpace(req.Expiry)
	req.Name = strings.TrimSpace(req.Name)
	req.Brand = strings.TrimSpace(req.Brand)

	if err := validate(req); err != nil {
		s.record("invalid")
		return nil, err
	}

	now := s.now()
	existing, err := s.items.FindByCodeAndExpiry(ctx, req.TenantID, req.Code, req.Expiry)
	if err != nil {
		s.record("failed")
		return nil, apperr.Storage("find item", err)
	}

	var item *model.Item
	action := "created"
	if existing != nil {
		item, err = s.items.AddQuantity(ctx, req.TenantID, existing.ID, req.Quantity, now)
		if err != nil {
			s.record("failed")
			return nil, apperr.Storage("add quantity", err)
		}
		action = "updated"
	}

	// Also covers a matched line deleted between find and update.
	if item == nil {
		name, brand := req.Name, req.Brand
		if name == "" {
			info := s.products.Lookup(ctx, req.Code)
			name, brand = info.Name, info.Brand
		}
		if brand == "" {
			brand = lookup.PlaceholderBrand
		}

		item, err = s.items.Create(ctx, model.Item{
			TenantID: req.TenantID,
			Code:     req.Code,
			Name:     name,
			Brand:    brand,
			Quantity: req.Quantity,
			Expiry:   req.Expiry,
			AddedAt:  now,
		})
		if err != nil {
			s.record("failed")
			return nil, apperr.Storage("create item", err)
		}
		action = "created"
	}

	s.scheduler.ScheduleExpiryWarning(ctx, req.TenantID, item.Code, item.Name, item.Expiry)
	s.publish(req.TenantID, action, item)
	if action == "created" {
		s.record("created")
	} else {
		s.record("merged")
	}

	s.logger.Info("item reconciled", "tenant", req.TenantID, "item", item.ID, "code", item.Code, "action", action, "quantity", item.Quantity)
	return item, nil
}

func validate(req ReconcileRequest) error {
	if req.TenantID == "" {
		return apperr.Validation("household is required")
	}
	if req.Code == "" {
		return apperr.Validation("barcode is required")
	}
	if _, err := barcode.Validate(req.Code); err != nil {
		return apperr.Validation("barcode must be a valid EAN-13, EAN-8 or UPC-A code")
	}
	if req.Expiry == "" {
		return apperr.Validation("expiry date is required")
	}
	if _, err := expiry.ParseDate(req.Expiry); err != nil {
		return apperr.Validation("expiry must be a complete date in DD/MM/YYYY format")
	}
	if req.Quantity < 1 {
		return apperr.Validation("quantity must be at least 1")
	}
	return nil
}

// Adjust changes an item's quantity by delta, never below zero. Reaching zero
// moves the item to the shopping list.
func (s *Service) Adjust(ctx context.Context, tenantID string, id int64, delta int) (*model.Item, error) {
	if delta == 0 {
		return nil, apperr.Validation("delta must not be zero")
	}

	item, err := s.items.AdjustQuantity(ctx, tenantID, id, delta, s.now())
	if err != nil {
		return nil, apperr.Storage("adjust quantity", err)
	}
	if item == nil {
		return nil, apperr.NotFound("item not found")
	}

	s.publish(tenantID, "updated", item)
	if s.recorder != nil {
		s.recorder.Adjusted()
	}
	return item, nil
}

// Delete removes an item that is still visible to the user, either in stock
// or on the shopping list.
func (s *Service) Delete(ctx context.Context, tenantID string, id int64) error {
	item, err := s.items.GetByID(ctx, tenantID, id)
	if err != nil {
		return apperr.Storage("get item", err)
	}
	if item == nil {
		return apperr.NotFound("item not found")
	}
	if !item.InStock() && !expiry.InShoppingList(*item, s.now()) {
		return apperr.Validation("item is no longer listed and cannot be deleted")
	}

	if err := s.items.Delete(ctx, tenantID, id); err != nil {
		return apperr.Storage("delete item", err)
	}

	if s.publisher != nil {
		s.publisher.Publish(tenantID, websocket.NewMessage("item", "deleted", id, nil))
	}
	if s.recorder != nil {
		s.recorder.Deleted()
	}
	s.logger.Info("item deleted", "tenant", tenantID, "item", id, "code", item.Code)
	return nil
}

// ClassifiedItem is an in-stock item with its expiry urgency.
type ClassifiedItem struct {
	model.Item
	Classification expiry.Classification `json:"classification"`
}

// View is what the inventory screen shows.
type View struct {
	InStock  []ClassifiedItem `json:"in_stock"`
	Shopping []model.Item     `json:"shopping"`
}

// View lists a tenant's in-stock items by expiry and its recent shopping list.
func (s *Service) View(ctx context.Context, tenantID string) (*View, error) {
	items, err := s.items.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, apperr.Storage("list items", err)
	}

	now := s.now()
	today := now.In(s.loc)
	inStock, shopping := expiry.Partition(items, now)

	v := &View{
		InStock:  make([]ClassifiedItem, 0, len(inStock)),
		Shopping: make([]model.Item, 0, len(shopping)),
	}
	for _, it := range inStock {
		v.InStock = append(v.InStock, ClassifiedItem{Item: it, Classification: expiry.Classify(it, today)})
	}
	v.Shopping = append(v.Shopping, shopping...)
	return v, nil
}

func (s *Service) publish(tenantID, action string, item *model.Item) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(tenantID, websocket.NewMessage("item", action, item.ID, item))
}

func (s *Service) record(result string) {
	if s.recorder != nil {
		s.recorder.ReconcileResult(result)
	}
}
