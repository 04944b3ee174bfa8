package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/pantry/internal/model"
)

// ItemStore is the inventory adapter over a tenant-partitioned items table.
type ItemStore struct {
	db *sql.DB
}

func NewItemStore(db *sql.DB) *ItemStore {
	return &ItemStore{db: db}
}

func scanItem(scanner interface{ Scan(...any) error }) (*model.Item, error) {
	var item model.Item
	var updatedAt, depletedAt sql.NullTime

	err := scanner.Scan(
		&item.ID, &item.TenantID, &item.Code, &item.Name, &item.Brand,
		&item.Quantity, &item.Expiry, &item.Status, &item.AddedAt,
		&updatedAt, &depletedAt,
	)
	if err != nil {
		return nil, err
	}

	if updatedAt.Valid {
		item.UpdatedAt = &updatedAt.Time
	}
	if depletedAt.Valid {
		item.DepletedAt = &depletedAt.Time
	}
	return &item, nil
}

const itemCols = `id, tenant_id, code, name, brand, quantity, expiry, status, added_at, updated_at, depleted_at`

// dbTime normalises timestamps so stored values compare correctly as text.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func (s *ItemStore) GetByID(ctx context.Context, tenantID string, id int64) (*model.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemCols+` FROM items WHERE id = ? AND tenant_id = ?`, id, tenantID)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// FindByCodeAndExpiry returns the stock line for an exact (code, expiry)
// pair, or nil when the tenant has none.
func (s *ItemStore) FindByCodeAndExpiry(ctx context.Context, tenantID, code, expiry string) (*model.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemCols+` FROM items WHERE tenant_id = ? AND code = ? AND expiry = ? ORDER BY id ASC LIMIT 1`,
		tenantID, code, expiry,
	)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find item by code and expiry: %w", err)
	}
	return item, nil
}

// Create inserts a new stock line. Status and depleted_at are derived from
// the quantity.
func (s *ItemStore) Create(ctx context.Context, item model.Item) (*model.Item, error) {
	status := model.StatusFor(item.Quantity)
	var depletedAt sql.NullTime
	if status == model.StatusDepleted {
		depletedAt = sql.NullTime{Time: dbTime(item.AddedAt), Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO items (tenant_id, code, name, brand, quantity, expiry, status, added_at, depleted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.TenantID, item.Code, item.Name, item.Brand, item.Quantity, item.Expiry,
		status, dbTime(item.AddedAt), depletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, item.TenantID, id)
}

// AddQuantity increments a stock line and marks it available again.
func (s *ItemStore) AddQuantity(ctx context.Context, tenantID string, id int64, delta int, at time.Time) (*model.Item, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE items
		 SET quantity = quantity + ?, status = 'available', depleted_at = NULL, updated_at = ?
		 WHERE id = ? AND tenant_id = ?`,
		delta, dbTime(at), id, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("add quantity: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, nil
	}
	return s.GetByID(ctx, tenantID, id)
}

// AdjustQuantity applies delta, clamping at zero. A transition to zero stamps
// depleted_at; any positive result clears it.
func (s *ItemStore) AdjustQuantity(ctx context.Context, tenantID string, id int64, delta int, at time.Time) (*model.Item, error) {
	ts := dbTime(at)
	result, err := s.db.ExecContext(ctx,
		`UPDATE items
		 SET quantity = MAX(0, quantity + ?1),
		     status = CASE WHEN quantity + ?1 > 0 THEN 'available' ELSE 'depleted' END,
		     depleted_at = CASE
		         WHEN quantity + ?1 > 0 THEN NULL
		         WHEN quantity = 0 AND depleted_at IS NOT NULL THEN depleted_at
		         ELSE ?2
		     END,
		     updated_at = ?2
		 WHERE id = ?3 AND tenant_id = ?4`,
		delta, ts, id, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("adjust quantity: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, nil
	}
	return s.GetByID(ctx, tenantID, id)
}

// ListByTenant returns every item of a tenant, newest first.
func (s *ItemStore) ListByTenant(ctx context.Context, tenantID string) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemCols+` FROM items WHERE tenant_id = ? ORDER BY added_at DESC, id DESC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *ItemStore) Delete(ctx context.Context, tenantID string, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}
