package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/pantry/internal/apperr"
	"github.com/dukerupert/pantry/internal/database"
	"github.com/dukerupert/pantry/internal/store"

	"golang.org/x/crypto/bcrypt"
)

type fakeMailer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (m *fakeMailer) SendResetCode(ctx context.Context, to, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[to] = code
	return nil
}

type gatewayFixture struct {
	gw       *Gateway
	accounts *store.AccountStore
	mailer   *fakeMailer
	now      time.Time
}

func setupGateway(t *testing.T) *gatewayFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &gatewayFixture{
		accounts: store.NewAccountStore(db),
		mailer:   &fakeMailer{},
		now:      time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC),
	}
	f.gw = NewGateway(f.accounts, store.NewPasswordResetStore(db), f.mailer, GatewayConfig{
		Secret:     "test-secret",
		BcryptCost: bcrypt.MinCost,
		Now:        func() time.Time { return f.now },
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func TestRegisterNormalizesTenant(t *testing.T) {
	f := setupGateway(t)

	p, err := f.gw.Register(context.Background(), " Ana@Example.com ", "secret1", "  casa1 ")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if p.TenantID != "CASA1" {
		t.Errorf("tenant = %q, want CASA1", p.TenantID)
	}
	if p.Email != "ana@example.com" {
		t.Errorf("email = %q, want ana@example.com", p.Email)
	}
	if p.Token == "" || p.TokenID == "" {
		t.Error("expected a session token")
	}
}

func TestRegisterValidation(t *testing.T) {
	f := setupGateway(t)
	ctx := context.Background()

	tests := []struct {
		name, email, password, tenant string
	}{
		{"missing tenant", "ana@example.com", "secret1", "   "},
		{"short password", "ana@example.com", "12345", "CASA1"},
		{"bad email", "not-an-email", "secret1", "CASA1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.gw.Register(ctx, tt.email, tt.password, tt.tenant)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("err = %v, want validation", err)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := setupGateway(t)
	ctx := context.Background()

	if _, err := f.gw.Register(ctx, "ana@example.com", "secret1", "CASA1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := f.gw.Register(ctx, "ANA@example.com", "secret2", "CASA2")
	if !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("err = %v, want conflict", err)
	}
}

func TestLogin(t *testing.T) {
	f := setupGateway(t)
	ctx := context.Background()

	if _, err := f.gw.Register(ctx, "ana@example.com", "secret1", "casa1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	p, err := f.gw.Login(ctx, "ana@example.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if p.TenantID != "CASA1" {
		t.Errorf("tenant = %q, want CASA1", p.TenantID)
	}

	ac, err := f.gw.Authenticate(p.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if ac.TenantID != "CASA1" || ac.AccountID != p.AccountID || ac.TokenID != p.TokenID {
		t.Errorf("auth context = %+v", ac)
	}
}

func TestLoginFailuresShareMessage(t *testing.T) {
	f := setupGateway(t)
	ctx := context.Background()

	if _, err := f.gw.Register(ctx, "ana@example.com", "secret1", "CASA1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, wrongPassword := f.gw.Login(ctx, "ana@example.com", "nope!!")
	_, unknownEmail := f.gw.Login(ctx, "bia@example.com", "secret1")

	for _, err := range []error{wrongPassword, unknownEmail} {
		if !apperr.Is(err, apperr.KindAuth) {
			t.Fatalf("err = %v, want auth", err)
		}
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("err = %v, want ErrInvalidCredentials", err)
		}
	}
	if apperr.Message(wrongPassword, "") != apperr.Message(unknownEmail, "") {
		t.Error("messages differ between wrong password and unknown email")
	}
}

func TestLoginWithoutTenantMapping(t *testing.T) {
	f := setupGateway(t)
	ctx := context.Background()

	p, err := f.gw.Register(ctx, "ana@example.com", "secret1", "CASA1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.accounts.UnmapTenant(ctx, p.AccountID); err != nil {
		t.Fatalf("unmap: %v", err)
	}

	_, err = f.gw.Login(ctx, "ana@example.com", "secret1")
	if !errors.Is(err, ErrNoTenant) {
		t.Errorf("err = %v, want ErrNoTenant", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Error("missing tenant must be distinct from bad credentials")
	}
}

func TestLoginEmptyFields(t *testing.T) {
	f := setupGateway(t)
	_, err := f.gw.Login(context.Background(), "", "")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestResetPasswordFlow(t *testing.T) {
	f := setupGateway(t)
	ctx := context.Background()

	if _, err := f.gw.Register(ctx, "ana@example.com", "secret1", "CASA1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.gw.ResetPassword(ctx, "ana@example.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	code := f.mailer.codes["ana@example.com"]
	if len(code) != 6 {
		t.Fatalf("code = %q, want 6 digits", code)
	}

	if err := f.gw.ConfirmReset(ctx, "ana@example.com", code, "newsecret"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := f.gw.Login(ctx, "ana@example.com", "newsecret"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
	if _, err := f.gw.Login(ctx, "ana@example.com", "secret1"); err == nil {
		t.Error("old password still works")
	}

	// A code works once.
	if err := f.gw.ConfirmReset(ctx, "ana@example.com", code, "another1"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("reuse err = %v, want validation", err)
	}
}

func TestResetPasswordUnknownEmail(t *testing.T) {
	f := setupGateway(t)

	if err := f.gw.ResetPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
	if len(f.mailer.codes) != 0 {
		t.Error("expected no email for unknown address")
	}
}

func TestResetPasswordMailFailure(t *testing.T) {
	f := setupGateway(t)
	ctx := context.Background()

	if _, err := f.gw.Register(ctx, "ana@example.com", "secret1", "CASA1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	f.mailer.err = errors.New("postmark down")
	if err := f.gw.ResetPassword(ctx, "ana@example.com"); err == nil {
		t.Error("expected error when the email cannot be sent")
	}
}

func TestConfirmResetAttemptLimit(t *testing.T) {
	f := setupGateway(t)
	ctx := context.Background()

	if _, err := f.gw.Register(ctx, "ana@example.com", "secret1", "CASA1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.gw.ResetPassword(ctx, "ana@example.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	code := f.mailer.codes["ana@example.com"]
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < MaxResetAttempts; i++ {
		if err := f.gw.ConfirmReset(ctx, "ana@example.com", wrong, "newsecret"); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("attempt %d err = %v, want validation", i+1, err)
		}
	}

	// The right code no longer helps after the limit.
	if err := f.gw.ConfirmReset(ctx, "ana@example.com", code, "newsecret"); err == nil {
		t.Error("expected code to be burned after too many attempts")
	}
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	f := setupGateway(t)
	if _, err := f.gw.Authenticate("garbage"); !apperr.Is(err, apperr.KindAuth) {
		t.Errorf("err = %v, want auth", err)
	}
}
