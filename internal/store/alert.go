package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/pantry/internal/model"
)

// AlertStore is the queue of one-shot notifications waiting for their fire time.
type AlertStore struct {
	db *sql.DB
}

func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

const alertCols = `id, tenant_id, title, body, fire_at, dedupe_key, sent_at, created_at`

func scanAlert(scanner interface{ Scan(...any) error }) (*model.Alert, error) {
	var a model.Alert
	var dedupeKey sql.NullString
	var sentAt sql.NullTime

	err := scanner.Scan(&a.ID, &a.TenantID, &a.Title, &a.Body, &a.FireAt, &dedupeKey, &sentAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if dedupeKey.Valid {
		a.DedupeKey = &dedupeKey.String
	}
	if sentAt.Valid {
		a.SentAt = &sentAt.Time
	}
	return &a, nil
}

// Enqueue stores an alert. When the alert carries a dedupe key that is
// already queued, nothing is written and inserted is false.
func (s *AlertStore) Enqueue(ctx context.Context, a model.Alert) (inserted bool, err error) {
	var key sql.NullString
	if a.DedupeKey != nil {
		key = sql.NullString{String: *a.DedupeKey, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (tenant_id, title, body, fire_at, dedupe_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(dedupe_key) DO NOTHING`,
		a.TenantID, a.Title, a.Body, dbTime(a.FireAt), key, dbTime(a.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("enqueue alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListDue returns unsent alerts whose fire time is at or before now.
func (s *AlertStore) ListDue(ctx context.Context, now time.Time, limit int) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+alertCols+` FROM alerts WHERE sent_at IS NULL AND fire_at <= ? ORDER BY fire_at ASC, id ASC LIMIT ?`,
		dbTime(now), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (s *AlertStore) ListByTenant(ctx context.Context, tenantID string) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+alertCols+` FROM alerts WHERE tenant_id = ? ORDER BY fire_at ASC, id ASC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (s *AlertStore) MarkSent(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE alerts SET sent_at = ? WHERE id = ?`, dbTime(at), id)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	return nil
}

// CleanupSent deletes delivered alerts sent before the given time.
func (s *AlertStore) CleanupSent(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE sent_at IS NOT NULL AND sent_at < ?`, dbTime(before))
	if err != nil {
		return 0, fmt.Errorf("cleanup sent alerts: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

func scanAlerts(rows *sql.Rows) ([]model.Alert, error) {
	var alerts []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}
