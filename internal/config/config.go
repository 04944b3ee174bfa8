package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Lookup providers.
const (
	ProviderBrasilAPI     = "brasilapi"
	ProviderOpenFoodFacts = "openfoodfacts"
)

// Config holds everything resolved at startup. It is passed down explicitly;
// nothing reads the environment after Load returns.
type Config struct {
	Port     string
	DBPath   string
	LogLevel  string
	LogFormat string
	BaseURL   string

	JWTSecret    string
	JWTGenerated bool

	Location *time.Location

	LookupProvider string
	LookupURL      string

	NotifyDedupe     bool
	DispatchInterval time.Duration

	PostmarkToken string
	FromEmail     string

	VAPIDPublicKey  string
	VAPIDPrivateKey string

	Backup BackupConfig
}

// BackupConfig configures encrypted snapshots to S3-compatible storage.
type BackupConfig struct {
	Endpoint      string
	Bucket        string
	Region        string
	AccessKey     string
	SecretKey     string
	Passphrase    string
	Hour          int
	RetentionDays int
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Port:            get("PANTRY_PORT", "8080"),
		DBPath:          get("PANTRY_DB_PATH", "pantry.db"),
		LogLevel:        get("PANTRY_LOG_LEVEL", "info"),
		LogFormat:       strings.ToLower(get("PANTRY_LOG_FORMAT", "text")),
		JWTSecret:       get("PANTRY_JWT_SECRET", ""),
		LookupProvider:  strings.ToLower(get("PANTRY_LOOKUP_PROVIDER", ProviderBrasilAPI)),
		LookupURL:       get("PANTRY_LOOKUP_URL", ""),
		PostmarkToken:   get("PANTRY_POSTMARK_TOKEN", ""),
		FromEmail:       get("PANTRY_FROM_EMAIL", ""),
		VAPIDPublicKey:  get("PANTRY_VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: get("PANTRY_VAPID_PRIVATE_KEY", ""),
	}
	cfg.BaseURL = get("PANTRY_BASE_URL", "http://localhost:"+cfg.Port)
	cfg.Backup = BackupConfig{
		Endpoint:   get("PANTRY_BACKUP_S3_ENDPOINT", ""),
		Bucket:     get("PANTRY_BACKUP_S3_BUCKET", ""),
		Region:     get("PANTRY_BACKUP_S3_REGION", "us-east-1"),
		AccessKey:  get("PANTRY_BACKUP_S3_ACCESS_KEY", ""),
		SecretKey:  get("PANTRY_BACKUP_S3_SECRET_KEY", ""),
		Passphrase: get("PANTRY_BACKUP_PASSPHRASE", ""),
	}

	switch cfg.LookupProvider {
	case ProviderBrasilAPI, ProviderOpenFoodFacts:
	default:
		return nil, fmt.Errorf("PANTRY_LOOKUP_PROVIDER must be %q or %q, got %q", ProviderBrasilAPI, ProviderOpenFoodFacts, cfg.LookupProvider)
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("PANTRY_LOG_FORMAT must be \"text\" or \"json\", got %q", cfg.LogFormat)
	}

	tz := get("PANTRY_TZ", "Local")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("PANTRY_TZ: %w", err)
	}
	cfg.Location = loc

	dedupe, err := strconv.ParseBool(get("PANTRY_NOTIFY_DEDUPE", "false"))
	if err != nil {
		return nil, fmt.Errorf("PANTRY_NOTIFY_DEDUPE: %w", err)
	}
	cfg.NotifyDedupe = dedupe

	interval, err := time.ParseDuration(get("PANTRY_DISPATCH_INTERVAL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("PANTRY_DISPATCH_INTERVAL: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("PANTRY_DISPATCH_INTERVAL must be positive")
	}
	cfg.DispatchInterval = interval

	hour, err := strconv.Atoi(get("PANTRY_BACKUP_HOUR", "3"))
	if err != nil || hour < 0 || hour > 23 {
		return nil, fmt.Errorf("PANTRY_BACKUP_HOUR must be an hour between 0 and 23")
	}
	cfg.Backup.Hour = hour

	retention, err := strconv.Atoi(get("PANTRY_BACKUP_RETENTION_DAYS", "30"))
	if err != nil || retention < 1 {
		return nil, fmt.Errorf("PANTRY_BACKUP_RETENTION_DAYS must be a positive number of days")
	}
	cfg.Backup.RetentionDays = retention

	if cfg.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.JWTSecret = secret
		cfg.JWTGenerated = true
	}

	return cfg, nil
}

// PushEnabled reports whether both VAPID keys are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
