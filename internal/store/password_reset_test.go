package store

import (
	"context"
	"testing"
	"time"
)

func TestPasswordResetCreate(t *testing.T) {
	s := NewPasswordResetStore(setupTestDB(t))

	pr, err := s.Create(context.Background(), "ana@example.com", testNow)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(pr.Code) != 6 {
		t.Errorf("code = %q, want 6 digits", pr.Code)
	}
	if !pr.ExpiresAt.Equal(testNow.Add(ResetCodeTTL)) {
		t.Errorf("expires_at = %v, want %v", pr.ExpiresAt, testNow.Add(ResetCodeTTL))
	}
}

func TestPasswordResetNewCodeInvalidatesOld(t *testing.T) {
	s := NewPasswordResetStore(setupTestDB(t))
	ctx := context.Background()

	if _, err := s.Create(ctx, "ana@example.com", testNow); err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := s.Create(ctx, "ana@example.com", testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	latest, err := s.GetLatestByEmail(ctx, "ana@example.com", testNow.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest == nil || latest.ID != second.ID {
		t.Errorf("latest = %+v, want id %d", latest, second.ID)
	}
}

func TestPasswordResetExpired(t *testing.T) {
	s := NewPasswordResetStore(setupTestDB(t))
	ctx := context.Background()

	if _, err := s.Create(ctx, "ana@example.com", testNow); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetLatestByEmail(ctx, "ana@example.com", testNow.Add(ResetCodeTTL+time.Second))
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if got != nil {
		t.Error("expected expired code to be ignored")
	}

	n, err := s.DeleteExpired(ctx, testNow.Add(ResetCodeTTL+time.Second))
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}

func TestPasswordResetAttemptsAndUse(t *testing.T) {
	s := NewPasswordResetStore(setupTestDB(t))
	ctx := context.Background()

	pr, err := s.Create(ctx, "ana@example.com", testNow)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for want := 1; want <= 3; want++ {
		got, err := s.IncrementAttempts(ctx, pr.ID)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Errorf("attempts = %d, want %d", got, want)
		}
	}

	if err := s.MarkUsed(ctx, pr.ID, testNow.Add(time.Minute)); err != nil {
		t.Fatalf("mark used: %v", err)
	}
	latest, err := s.GetLatestByEmail(ctx, "ana@example.com", testNow.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest != nil {
		t.Error("expected used code to be ignored")
	}
}
