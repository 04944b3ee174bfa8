// Package backup takes encrypted snapshots of the pantry database and keeps
// them in S3-compatible object storage.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/pantry/internal/model"
	"github.com/dukerupert/pantry/internal/store"

	_ "modernc.org/sqlite"
)

var (
	ErrDisabled   = errors.New("backup not configured")
	ErrInProgress = errors.New("a backup is already running")
	ErrNotFound   = errors.New("backup not found")
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup manager configuration.
type Config struct {
	S3         S3Config
	Passphrase string
	// Prefix is prepended to every object key.
	Prefix string
	// Hour is the local hour at which the daily backup runs.
	Hour      int
	Retention time.Duration
	Location  *time.Location
	Now       func() time.Time
}

// Enabled reports whether storage and encryption are both configured.
func (c Config) Enabled() bool {
	return c.S3.Bucket != "" && c.S3.AccessKey != "" && c.S3.SecretKey != "" && c.Passphrase != ""
}

// State represents the backup manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
}

// Recorder counts backup outcomes.
type Recorder interface {
	BackupResult(result string)
}

// Manager runs scheduled and on-demand backups.
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	status Status

	db       *sql.DB
	history  *store.BackupStore
	client   s3Client
	recorder Recorder
	logger   *slog.Logger

	lastRun string // local date of the last scheduled run

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a new backup manager. It is disabled unless cfg is
// fully configured.
func NewManager(cfg Config, db *sql.DB, history *store.BackupStore, recorder Recorder, logger *slog.Logger) *Manager {
	if cfg.Prefix == "" {
		cfg.Prefix = "pantry"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{
		cfg:      cfg,
		db:       db,
		history:  history,
		recorder: recorder,
		logger:   logger,
		status:   Status{State: StateDisabled},
	}
	if cfg.Enabled() {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Start begins the scheduled backup loop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.status.State == StateDisabled {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	if last, err := m.history.LatestCompleted(ctx); err != nil {
		m.logger.Warn("load last backup", "error", err)
	} else if last != nil && last.CompletedAt != nil {
		m.mu.Lock()
		m.status.LastBackup = last.CompletedAt
		m.mu.Unlock()
	}

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkSchedule(ctx)
			}
		}
	}()
}

// Stop gracefully stops the backup manager.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Status returns the current backup status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if s.LastBackup == nil {
		s.LastBackup = m.status.LastBackup
	}
	m.status = s
	m.mu.Unlock()
}

// checkSchedule runs the daily backup once the configured hour is reached.
func (m *Manager) checkSchedule(ctx context.Context) {
	now := m.cfg.Now().In(m.cfg.Location)
	if now.Hour() != m.cfg.Hour {
		return
	}
	day := now.Format("2006-01-02")

	m.mu.Lock()
	if m.lastRun == day {
		m.mu.Unlock()
		return
	}
	m.lastRun = day
	m.mu.Unlock()

	if _, err := m.RunNow(ctx); err != nil {
		m.logger.Error("scheduled backup failed", "error", err)
	}
	if err := m.Cleanup(ctx); err != nil {
		m.logger.Error("backup cleanup failed", "error", err)
	}
}

// RunNow snapshots the database, encrypts it and uploads it.
func (m *Manager) RunNow(ctx context.Context) (*model.Backup, error) {
	m.mu.Lock()
	client := m.client
	if client == nil {
		m.mu.Unlock()
		return nil, ErrDisabled
	}
	if m.status.InProgress {
		m.mu.Unlock()
		return nil, ErrInProgress
	}
	m.status.State = StateRunning
	m.status.InProgress = true
	m.mu.Unlock()

	started := m.cfg.Now().UTC()
	key := fmt.Sprintf("%s/%s.db.enc", m.cfg.Prefix, started.Format("2006-01-02T150405Z"))

	record, err := m.history.Create(ctx, key, started)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		m.record("failed")
		return nil, fmt.Errorf("create backup record: %w", err)
	}

	size, err := m.upload(ctx, client, record)
	if err != nil {
		if uerr := m.history.UpdateStatus(ctx, record.ID, model.BackupStatusFailed, err.Error()); uerr != nil {
			m.logger.Error("record backup failure", "backup", record.ID, "error", uerr)
		}
		m.setStatus(Status{State: StateError, Error: err.Error()})
		m.record("failed")
		return nil, err
	}

	completed := m.cfg.Now().UTC()
	if err := m.history.UpdateCompleted(ctx, record.ID, size, completed); err != nil {
		m.logger.Error("record backup completion", "backup", record.ID, "error", err)
	}
	m.setStatus(Status{State: StateIdle, LastBackup: &completed})
	m.record("completed")
	m.logger.Info("backup completed", "backup", record.ID, "key", key, "bytes", size)

	record.Status = model.BackupStatusCompleted
	record.SizeBytes = size
	record.CompletedAt = &completed
	return record, nil
}

func (m *Manager) upload(ctx context.Context, client s3Client, record *model.Backup) (int64, error) {
	if err := m.history.UpdateStatus(ctx, record.ID, model.BackupStatusUploading, ""); err != nil {
		return 0, err
	}

	dir, err := os.MkdirTemp("", "pantry-backup-")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	// VACUUM INTO gives a consistent copy without stopping writers.
	snapshot := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, "VACUUM INTO ?", snapshot); err != nil {
		return 0, fmt.Errorf("snapshot database: %w", err)
	}

	f, err := os.Open(snapshot)
	if err != nil {
		return 0, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	var sealed bytes.Buffer
	size, err := Encrypt(&sealed, f, m.cfg.Passphrase)
	if err != nil {
		return 0, fmt.Errorf("encrypt: %w", err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(record.ObjectKey),
		Body:          bytes.NewReader(sealed.Bytes()),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return 0, fmt.Errorf("upload to s3: %w", err)
	}
	return size, nil
}

// Restore downloads backup id, decrypts it, checks its integrity and writes
// it to dstPath. The server must not be running against dstPath.
func (m *Manager) Restore(ctx context.Context, id int64, dstPath string) error {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil {
		return ErrDisabled
	}

	record, err := m.history.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get backup: %w", err)
	}
	if record == nil {
		return ErrNotFound
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(record.ObjectKey),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	dir, err := os.MkdirTemp("", "pantry-restore-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	restored := filepath.Join(dir, "restored.db")
	out, err := os.OpenFile(restored, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if err := Decrypt(out, result.Body, m.cfg.Passphrase); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("write restored file: %w", err)
	}

	if err := checkIntegrity(ctx, restored); err != nil {
		return err
	}

	if err := copyFile(restored, dstPath); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	os.Remove(dstPath + "-wal")
	os.Remove(dstPath + "-shm")

	m.logger.Info("backup restored", "backup", id, "path", dstPath)
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var integrity string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if integrity != "ok" {
		return fmt.Errorf("integrity check failed: %s", integrity)
	}
	return nil
}

// Cleanup deletes backups older than the retention period.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil {
		return nil
	}

	before := m.cfg.Now().Add(-m.cfg.Retention)
	keys, err := m.history.DeleteOlderThan(ctx, before)
	if err != nil {
		return fmt.Errorf("delete old backups: %w", err)
	}

	for _, key := range keys {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete backup object", "key", key, "error", err)
		}
	}
	if len(keys) > 0 {
		m.logger.Info("pruned old backups", "count", len(keys))
	}
	return nil
}

// List returns recent backups, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]model.Backup, error) {
	return m.history.List(ctx, limit)
}

func (m *Manager) record(result string) {
	if m.recorder != nil {
		m.recorder.BackupResult(result)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
