package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/dukerupert/pantry/internal/apperr"
	"github.com/dukerupert/pantry/internal/model"
	"github.com/dukerupert/pantry/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 6
	MaxResetAttempts  = 5
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoTenant           = errors.New("account has no tenant mapping")
)

const (
	msgInvalidCredentials = "invalid email or password"
	msgNoTenant           = "account has no household"
)

type Accounts interface {
	Register(ctx context.Context, email, passwordHash, tenantID string, at time.Time) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string, at time.Time) error
	TenantFor(ctx context.Context, accountID int64) (string, error)
}

type Resets interface {
	Create(ctx context.Context, email string, now time.Time) (*model.PasswordReset, error)
	GetLatestByEmail(ctx context.Context, email string, now time.Time) (*model.PasswordReset, error)
	IncrementAttempts(ctx context.Context, id int64) (int, error)
	MarkUsed(ctx context.Context, id int64, at time.Time) error
}

// Mailer delivers password reset codes.
type Mailer interface {
	SendResetCode(ctx context.Context, toEmail, code string, ttl time.Duration) error
}

// Principal is the result of a successful sign-in.
type Principal struct {
	AccountID int64     `json:"account_id"`
	Email     string    `json:"email"`
	TenantID  string    `json:"tenant"`
	Token     string    `json:"token"`
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

type GatewayConfig struct {
	Secret     string
	BcryptCost int
	Now        func() time.Time
}

// Gateway implements email/password sign-in, sign-up and password reset.
type Gateway struct {
	accounts Accounts
	resets   Resets
	mailer   Mailer
	secret   string
	cost     int
	now      func() time.Time
	logger   *slog.Logger
}

func NewGateway(accounts Accounts, resets Resets, mailer Mailer, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Gateway{
		accounts: accounts,
		resets:   resets,
		mailer:   mailer,
		secret:   cfg.Secret,
		cost:     cfg.BcryptCost,
		now:      cfg.Now,
		logger:   logger,
	}
}

// NormalizeTenant returns the canonical form of a tenant identifier.
func NormalizeTenant(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Login checks credentials and resolves the account's tenant. Unknown email
// and wrong password produce the same error.
func (g *Gateway) Login(ctx context.Context, email, password string) (*Principal, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	acct, err := g.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Storage("login", err)
	}
	if acct == nil {
		return nil, apperr.Auth(ErrInvalidCredentials, msgInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Auth(ErrInvalidCredentials, msgInvalidCredentials)
	}

	tenantID, err := g.accounts.TenantFor(ctx, acct.ID)
	if err != nil {
		return nil, apperr.Storage("login", err)
	}
	if tenantID == "" {
		return nil, apperr.Auth(ErrNoTenant, msgNoTenant)
	}

	return g.issue(acct, tenantID)
}

// Register creates an account mapped to tenantID, creating the tenant when it
// does not exist yet, and signs the new account in.
func (g *Gateway) Register(ctx context.Context, email, password, tenantID string) (*Principal, error) {
	email = normalizeEmail(email)
	tenantID = NormalizeTenant(tenantID)

	if email == "" || password == "" || tenantID == "" {
		return nil, apperr.Validation("email, password and household are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("email address is not valid")
	}
	if len(password) < MinPasswordLength {
		return nil, apperr.Validation("password must have at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), g.cost)
	if err != nil {
		return nil, apperr.Storage("hash password", err)
	}

	acct, err := g.accounts.Register(ctx, email, string(hash), tenantID, g.now())
	if errors.Is(err, store.ErrEmailTaken) {
		return nil, apperr.Conflict("email already registered")
	}
	if err != nil {
		return nil, apperr.Storage("register", err)
	}

	g.logger.Info("account registered", "account", acct.ID, "tenant", tenantID)
	return g.issue(acct, tenantID)
}

// ResetPassword emails a reset code. Unknown addresses succeed silently.
func (g *Gateway) ResetPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperr.Validation("email is required")
	}

	acct, err := g.accounts.GetByEmail(ctx, email)
	if err != nil {
		return apperr.Storage("reset password", err)
	}
	if acct == nil {
		return nil
	}

	pr, err := g.resets.Create(ctx, email, g.now())
	if err != nil {
		return apperr.Storage("reset password", err)
	}

	if err := g.mailer.SendResetCode(ctx, email, pr.Code, pr.ExpiresAt.Sub(pr.CreatedAt)); err != nil {
		g.logger.Error("send reset code", "account", acct.ID, "error", err)
		return &apperr.Error{Kind: apperr.KindUnknown, Op: "send reset code", Msg: "could not send reset email, please try again", Err: err}
	}
	return nil
}

// ConfirmReset sets a new password when code matches the latest pending code
// for email. Each wrong guess counts towards MaxResetAttempts.
func (g *Gateway) ConfirmReset(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return apperr.Validation("email and code are required")
	}
	if len(newPassword) < MinPasswordLength {
		return apperr.Validation("password must have at least 6 characters")
	}

	now := g.now()
	pr, err := g.resets.GetLatestByEmail(ctx, email, now)
	if err != nil {
		return apperr.Storage("confirm reset", err)
	}
	if pr == nil {
		return apperr.Validation("code has expired or already been used, request a new one")
	}
	if pr.Attempts >= MaxResetAttempts {
		if err := g.resets.MarkUsed(ctx, pr.ID, now); err != nil {
			return apperr.Storage("confirm reset", err)
		}
		return apperr.Validation("too many incorrect attempts, request a new code")
	}

	if subtle.ConstantTimeCompare([]byte(pr.Code), []byte(code)) != 1 {
		attempts, err := g.resets.IncrementAttempts(ctx, pr.ID)
		if err != nil {
			return apperr.Storage("confirm reset", err)
		}
		if attempts >= MaxResetAttempts {
			if err := g.resets.MarkUsed(ctx, pr.ID, now); err != nil {
				return apperr.Storage("confirm reset", err)
			}
			return apperr.Validation("too many incorrect attempts, request a new code")
		}
		return apperr.Validation("incorrect code")
	}

	acct, err := g.accounts.GetByEmail(ctx, email)
	if err != nil {
		return apperr.Storage("confirm reset", err)
	}
	if acct == nil {
		return apperr.Validation("code has expired or already been used, request a new one")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), g.cost)
	if err != nil {
		return apperr.Storage("hash password", err)
	}
	if err := g.accounts.UpdatePassword(ctx, acct.ID, string(hash), now); err != nil {
		return apperr.Storage("confirm reset", err)
	}
	if err := g.resets.MarkUsed(ctx, pr.ID, now); err != nil {
		return apperr.Storage("confirm reset", err)
	}

	g.logger.Info("password reset", "account", acct.ID)
	return nil
}

func (g *Gateway) issue(acct *model.Account, tenantID string) (*Principal, error) {
	token, claims, err := GenerateToken(g.secret, acct.ID, tenantID, g.now())
	if err != nil {
		return nil, apperr.Storage("issue session", err)
	}
	return &Principal{
		AccountID: acct.ID,
		Email:     acct.Email,
		TenantID:  tenantID,
		Token:     token,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Authenticate validates a session token and returns the caller's context.
func (g *Gateway) Authenticate(token string) (AuthContext, error) {
	claims, err := ValidateToken(g.secret, token, jwt.WithTimeFunc(g.now))
	if err != nil {
		return AuthContext{}, apperr.Auth(err, "session expired, please sign in again")
	}
	return AuthContext{AccountID: claims.AccountID, TenantID: claims.TenantID, TokenID: claims.ID}, nil
}
