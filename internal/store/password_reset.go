package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/dukerupert/pantry/internal/model"
)

// ResetCodeTTL is how long a password reset code stays valid.
const ResetCodeTTL = 15 * time.Minute

type PasswordResetStore struct {
	db *sql.DB
}

func NewPasswordResetStore(db *sql.DB) *PasswordResetStore {
	return &PasswordResetStore{db: db}
}

func scanPasswordReset(scanner interface{ Scan(...any) error }) (*model.PasswordReset, error) {
	var pr model.PasswordReset
	var usedAt sql.NullTime

	err := scanner.Scan(&pr.ID, &pr.Email, &pr.Code, &pr.ExpiresAt, &usedAt, &pr.Attempts, &pr.CreatedAt)
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		pr.UsedAt = &usedAt.Time
	}
	return &pr, nil
}

const passwordResetCols = `id, email, code, expires_at, used_at, attempts, created_at`

// generateCode returns a 6-digit numeric code (100000–999999).
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// Create issues a new reset code for email. Pending codes for the same email
// are invalidated first.
func (s *PasswordResetStore) Create(ctx context.Context, email string, now time.Time) (*model.PasswordReset, error) {
	ts := dbTime(now)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE password_resets SET used_at = ? WHERE email = ? AND used_at IS NULL AND expires_at > ?`,
		ts, email, ts,
	); err != nil {
		return nil, fmt.Errorf("invalidate previous codes: %w", err)
	}

	code, err := generateCode()
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO password_resets (email, code, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		email, code, ts.Add(ResetCodeTTL), ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert password reset: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+passwordResetCols+` FROM password_resets WHERE id = ?`, id)
	return scanPasswordReset(row)
}

// GetLatestByEmail returns the most recent unexpired, unused code for an email.
func (s *PasswordResetStore) GetLatestByEmail(ctx context.Context, email string, now time.Time) (*model.PasswordReset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+passwordResetCols+` FROM password_resets
		 WHERE email = ? AND expires_at > ? AND used_at IS NULL
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		email, dbTime(now),
	)
	pr, err := scanPasswordReset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest password reset: %w", err)
	}
	return pr, nil
}

// IncrementAttempts increments the attempt count and returns the new value.
func (s *PasswordResetStore) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	if _, err := s.db.ExecContext(ctx, `UPDATE password_resets SET attempts = attempts + 1 WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}

	var attempts int
	if err := s.db.QueryRowContext(ctx, `SELECT attempts FROM password_resets WHERE id = ?`, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("read attempts: %w", err)
	}
	return attempts, nil
}

func (s *PasswordResetStore) MarkUsed(ctx context.Context, id int64, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at = ? WHERE id = ?`, dbTime(at), id); err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PasswordResetStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM password_resets WHERE expires_at <= ?`, dbTime(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired password resets: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
