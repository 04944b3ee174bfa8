package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/pantry/internal/model"
)

// ErrEmailTaken is returned when registering an email that already has an account.
var ErrEmailTaken = errors.New("email already registered")

// AccountStore keeps credentials, tenants, and the one-to-one mapping
// between an account and its tenant.
type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

func scanAccount(scanner interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	err := scanner.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const accountCols = `id, email, password_hash, created_at, updated_at`

// Register creates the account, makes sure the tenant exists, and maps the
// account to it in a single transaction.
func (s *AccountStore) Register(ctx context.Context, email, passwordHash, tenantID string, at time.Time) (*model.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE email = ?`, email).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists > 0 {
		return nil, ErrEmailTaken
	}

	ts := dbTime(at)
	result, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		email, passwordHash, ts, ts,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tenants (id, created_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		tenantID, ts,
	); err != nil {
		return nil, fmt.Errorf("ensure tenant %q: %w", tenantID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_tenants (account_id, tenant_id) VALUES (?, ?)`,
		id, tenantID,
	); err != nil {
		return nil, fmt.Errorf("map account to tenant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *AccountStore) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE email = ?`, email)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return a, nil
}

func (s *AccountStore) UpdatePassword(ctx context.Context, id int64, passwordHash string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, dbTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// TenantFor returns the tenant mapped to an account, or "" when the mapping
// record is missing.
func (s *AccountStore) TenantFor(ctx context.Context, accountID int64) (string, error) {
	var tenantID string
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id FROM user_tenants WHERE account_id = ?`, accountID,
	).Scan(&tenantID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get tenant for account: %w", err)
	}
	return tenantID, nil
}

// UnmapTenant removes an account's tenant mapping.
func (s *AccountStore) UnmapTenant(ctx context.Context, accountID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_tenants WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("unmap tenant: %w", err)
	}
	return nil
}

func (s *AccountStore) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	var t model.Tenant
	err := s.db.QueryRowContext(ctx, `SELECT id, created_at FROM tenants WHERE id = ?`, id).Scan(&t.ID, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}
