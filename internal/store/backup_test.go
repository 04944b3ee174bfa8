package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/pantry/internal/model"
)

func TestBackupCreate(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))
	ctx := context.Background()

	b, err := bs.Create(ctx, "pantry/2025-12-01T120000Z.db.enc", testNow)
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if b.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if b.Status != model.BackupStatusPending {
		t.Errorf("status = %q, want %q", b.Status, model.BackupStatusPending)
	}

	got, err := bs.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.ObjectKey != b.ObjectKey || !got.StartedAt.Equal(testNow) {
		t.Errorf("got = %+v", got)
	}
}

func TestBackupGetMissing(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))

	got, err := bs.GetByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil", got)
	}
}

func TestBackupStatusTransitions(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))
	ctx := context.Background()

	b, _ := bs.Create(ctx, "a.db.enc", testNow)

	if err := bs.UpdateStatus(ctx, b.ID, model.BackupStatusFailed, "upload: connection reset"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ := bs.GetByID(ctx, b.ID)
	if got.Status != model.BackupStatusFailed || got.ErrorMessage != "upload: connection reset" {
		t.Errorf("after failure = %+v", got)
	}

	if err := bs.UpdateCompleted(ctx, b.ID, 4096, testNow.Add(time.Minute)); err != nil {
		t.Fatalf("update completed: %v", err)
	}
	got, _ = bs.GetByID(ctx, b.ID)
	if got.Status != model.BackupStatusCompleted || got.SizeBytes != 4096 || got.ErrorMessage != "" {
		t.Errorf("after completion = %+v", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(testNow.Add(time.Minute)) {
		t.Errorf("completed_at = %v", got.CompletedAt)
	}
}

func TestBackupListNewestFirst(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := bs.Create(ctx, "k"+string(rune('a'+i)), testNow.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	list, err := bs.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ObjectKey != "kc" || list[1].ObjectKey != "kb" {
		t.Errorf("order = %s, %s", list[0].ObjectKey, list[1].ObjectKey)
	}
}

func TestBackupDeleteOlderThan(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))
	ctx := context.Background()

	bs.Create(ctx, "old.db.enc", testNow.AddDate(0, 0, -40))
	bs.Create(ctx, "recent.db.enc", testNow.AddDate(0, 0, -1))

	keys, err := bs.DeleteOlderThan(ctx, testNow.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("delete older: %v", err)
	}
	if len(keys) != 1 || keys[0] != "old.db.enc" {
		t.Errorf("keys = %v", keys)
	}

	list, _ := bs.List(ctx, 10)
	if len(list) != 1 || list[0].ObjectKey != "recent.db.enc" {
		t.Errorf("remaining = %+v", list)
	}
}

func TestBackupLatestCompleted(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))
	ctx := context.Background()

	got, err := bs.LatestCompleted(ctx)
	if err != nil || got != nil {
		t.Fatalf("empty: got %+v, err %v", got, err)
	}

	a, _ := bs.Create(ctx, "a", testNow)
	b, _ := bs.Create(ctx, "b", testNow.Add(time.Hour))
	bs.UpdateCompleted(ctx, a.ID, 10, testNow.Add(time.Minute))
	bs.UpdateStatus(ctx, b.ID, model.BackupStatusFailed, "boom")

	got, err = bs.LatestCompleted(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got == nil || got.ID != a.ID {
		t.Errorf("latest = %+v, want backup %d", got, a.ID)
	}
}
