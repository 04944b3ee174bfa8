package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/pantry/internal/model"
)

// CatalogStore holds product metadata shared across tenants.
type CatalogStore struct {
	db *sql.DB
}

func NewCatalogStore(db *sql.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

const catalogCols = `code, name, brand, ncm, source, created_at`

func (s *CatalogStore) Get(ctx context.Context, code string) (*model.CatalogEntry, error) {
	var e model.CatalogEntry
	err := s.db.QueryRowContext(ctx, `SELECT `+catalogCols+` FROM catalog WHERE code = ?`, code).
		Scan(&e.Code, &e.Name, &e.Brand, &e.NCM, &e.Source, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get catalog entry: %w", err)
	}
	return &e, nil
}

// Put stores an entry unless one already exists for the code. The first
// writer wins; it reports whether this call inserted the row.
func (s *CatalogStore) Put(ctx context.Context, e model.CatalogEntry) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog (code, name, brand, ncm, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(code) DO NOTHING`,
		e.Code, e.Name, e.Brand, e.NCM, e.Source, dbTime(e.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("put catalog entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
