package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		AccountID: 1,
		TenantID:  "CASA1",
		TokenID:   "jti",
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got != ac {
		t.Errorf("got %+v, want %+v", got, ac)
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestTenantID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{TenantID: "CASA1"})
	if TenantID(ctx) != "CASA1" {
		t.Errorf("TenantID = %q, want CASA1", TenantID(ctx))
	}
	if TenantID(context.Background()) != "" {
		t.Error("expected empty tenant for missing context")
	}
}

func TestAccountID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{AccountID: 7})
	if AccountID(ctx) != 7 {
		t.Errorf("AccountID = %d, want 7", AccountID(ctx))
	}
	if AccountID(context.Background()) != 0 {
		t.Error("expected 0 for missing context")
	}
}
