package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dukerupert/pantry/internal/auth"
	"github.com/dukerupert/pantry/internal/backup"
	"github.com/dukerupert/pantry/internal/config"
	"github.com/dukerupert/pantry/internal/database"
	"github.com/dukerupert/pantry/internal/handler"
	"github.com/dukerupert/pantry/internal/inventory"
	"github.com/dukerupert/pantry/internal/lookup"
	"github.com/dukerupert/pantry/internal/metrics"
	"github.com/dukerupert/pantry/internal/middleware"
	"github.com/dukerupert/pantry/internal/notify"
	"github.com/dukerupert/pantry/internal/store"
	ws "github.com/dukerupert/pantry/internal/websocket"
)

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	metrics     *metrics.Metrics
	gateway     *auth.Gateway
	inventory   *inventory.Service
	lookup      *lookup.Service
	authH       *handler.AuthHandler
	productH    *handler.ProductHandler
	itemH       *handler.ItemHandler
	pushH       *handler.PushHandler
	resetStore  *store.PasswordResetStore
	alertStore  *store.AlertStore
	rateLimiter *middleware.RateLimiter
	dispatcher  *notify.Dispatcher
	backups     *backup.Manager
	origins     []string
	logger      *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, mailer auth.Mailer, source lookup.Source, logger *slog.Logger) *Server {
	m := metrics.New()
	hub := ws.NewHub(logger.With("component", "websocket"))

	accountStore := store.NewAccountStore(db)
	resetStore := store.NewPasswordResetStore(db)
	itemStore := store.NewItemStore(db)
	catalogStore := store.NewCatalogStore(db)
	alertStore := store.NewAlertStore(db)
	pushStore := store.NewPushStore(db)

	gateway := auth.NewGateway(accountStore, resetStore, mailer, auth.GatewayConfig{
		Secret: cfg.JWTSecret,
	}, logger.With("component", "auth"))

	lookupSvc := lookup.NewService(catalogStore, source, m, logger.With("component", "lookup"))

	scheduler := notify.NewScheduler(notify.NewQueueFacility(alertStore), notify.Config{
		Location: cfg.Location,
		Dedupe:   cfg.NotifyDedupe,
	}, m, logger.With("component", "notify"))

	inv := inventory.NewService(itemStore, lookupSvc, scheduler, hub, m, inventory.Config{
		Location: cfg.Location,
	}, logger.With("component", "inventory"))

	// Alerts are queued regardless; they are only delivered when VAPID keys
	// are configured.
	var pushH *handler.PushHandler
	var dispatcher *notify.Dispatcher
	if cfg.PushEnabled() {
		subscriber := ""
		if cfg.FromEmail != "" {
			subscriber = "mailto:" + cfg.FromEmail
		}
		pushSvc := notify.NewPushService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, subscriber)
		dispatcher = notify.NewDispatcher(pushSvc, alertStore, pushStore, cfg.DispatchInterval, m, logger.With("component", "dispatcher"))
		pushH = handler.NewPushHandler(pushStore, pushSvc, nil, logger.With("component", "push_handler"))
	}

	backups := backup.NewManager(BackupConfig(cfg), db, store.NewBackupStore(db), m, logger.With("component", "backup"))

	return &Server{
		db:          db,
		hub:         hub,
		metrics:     m,
		gateway:     gateway,
		inventory:   inv,
		lookup:      lookupSvc,
		authH:       handler.NewAuthHandler(gateway, logger.With("component", "auth_handler")),
		productH:    handler.NewProductHandler(lookupSvc, logger.With("component", "product")),
		itemH:       handler.NewItemHandler(inv, inventory.NewScanGuard(), m, logger.With("component", "item")),
		pushH:       pushH,
		resetStore:  resetStore,
		alertStore:  alertStore,
		rateLimiter: middleware.NewRateLimiter(),
		dispatcher:  dispatcher,
		backups:     backups,
		origins:     originPatterns(cfg.BaseURL),
		logger:      logger,
	}
}

// BackupConfig maps the environment settings onto the backup manager.
func BackupConfig(cfg *config.Config) backup.Config {
	b := cfg.Backup
	return backup.Config{
		S3: backup.S3Config{
			Endpoint:  b.Endpoint,
			Bucket:    b.Bucket,
			Region:    b.Region,
			AccessKey: b.AccessKey,
			SecretKey: b.SecretKey,
		},
		Passphrase: b.Passphrase,
		Hour:       b.Hour,
		Retention:  time.Duration(b.RetentionDays) * 24 * time.Hour,
		Location:   cfg.Location,
	}
}

// originPatterns allows websocket upgrades from the configured public host
// in addition to same-origin requests.
func originPatterns(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

// ResetStore returns the password reset store for cleanup tasks.
func (s *Server) ResetStore() *store.PasswordResetStore {
	return s.resetStore
}

// AlertStore returns the alert queue for cleanup tasks.
func (s *Server) AlertStore() *store.AlertStore {
	return s.alertStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Dispatcher returns the alert dispatcher, or nil when push is disabled.
func (s *Server) Dispatcher() *notify.Dispatcher {
	return s.dispatcher
}

// Backups returns the backup manager.
func (s *Server) Backups() *backup.Manager {
	return s.backups
}

// Lookup returns the product lookup service so shutdown can wait for
// pending catalog writes.
func (s *Server) Lookup() *lookup.Service {
	return s.lookup
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register, 10))
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login, 10))
	outerMux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	outerMux.HandleFunc("POST /api/auth/reset", s.rateLimitedHandler(s.authH.ResetPassword, 5))
	outerMux.HandleFunc("POST /api/auth/reset/confirm", s.rateLimitedHandler(s.authH.ConfirmReset, 10))
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", s.metrics.Handler())

	// Protected routes, wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.gateway)
	outerMux.Handle("/", authMiddleware(protectedMux))

	// Apply request logging middleware
	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	schema, err := database.SchemaVersion(ctx, s.db)
	if err != nil {
		s.logger.Warn("health check", "error", err)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"schema":  schema,
		"clients": s.hub.ClientCount(),
		"backup":  s.backups.Status(),
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc, perMinute int) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.ByIP, perMinute, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products/{code}", s.productH.Get)

	mux.HandleFunc("GET /api/items", s.itemH.List)
	mux.HandleFunc("POST /api/items/scan", s.itemH.Scan)
	mux.HandleFunc("POST /api/items/{id}/adjust", s.itemH.Adjust)
	mux.HandleFunc("DELETE /api/items/{id}", s.itemH.Delete)

	// Push notification API routes
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
		mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)
	}

	snapshot := func(ctx context.Context, tenantID string) (any, error) {
		return s.inventory.View(ctx, tenantID)
	}
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, snapshot, s.origins, s.logger.With("component", "websocket")))
}
