package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukerupert/pantry/internal/backup"
	"github.com/dukerupert/pantry/internal/config"
	"github.com/dukerupert/pantry/internal/database"
	"github.com/dukerupert/pantry/internal/email"
	"github.com/dukerupert/pantry/internal/logging"
	"github.com/dukerupert/pantry/internal/lookup"
	"github.com/dukerupert/pantry/internal/notify"
	"github.com/dukerupert/pantry/internal/server"
	"github.com/dukerupert/pantry/internal/store"
)

// alertRetention is how long delivered alerts stay in the queue.
const alertRetention = 7 * 24 * time.Hour

func main() {
	if len(os.Args) > 1 {
		var err error
		switch os.Args[1] {
		case "vapid-keys":
			err = printVAPIDKeys()
		case "backup", "backups", "restore":
			err = runBackupCommand(os.Args[1], os.Args[2:])
		default:
			err = fmt.Errorf("unknown command %q (want vapid-keys, backup, backups or restore)", os.Args[1])
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.JWTGenerated {
		slog.Warn("PANTRY_JWT_SECRET not set; using a random secret, sessions will not survive a restart")
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	emailClient := email.NewClient(cfg.PostmarkToken, cfg.FromEmail)
	if !emailClient.Configured() {
		slog.Warn("PANTRY_POSTMARK_TOKEN not set; password reset emails are disabled")
	}

	source, err := lookup.NewSource(cfg.LookupProvider, cfg.LookupURL)
	if err != nil {
		slog.Error("failed to configure product lookup", "error", err)
		os.Exit(1)
	}

	srv := server.New(db, cfg, emailClient, source, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// No WriteTimeout: it would also cut off live feed connections.
		IdleTimeout: 120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if srv.Backups().Status().State == backup.StateDisabled {
		slog.Info("backups disabled; set PANTRY_BACKUP_S3_BUCKET, the S3 keys and PANTRY_BACKUP_PASSPHRASE to enable")
	} else {
		srv.Backups().Start(ctx)
		slog.Info("backups enabled", "bucket", cfg.Backup.Bucket, "hour", cfg.Backup.Hour)
	}

	if d := srv.Dispatcher(); d != nil {
		d.Start(ctx)
		slog.Info("push notifications enabled", "interval", cfg.DispatchInterval)
	} else {
		slog.Info("push notifications disabled; set PANTRY_VAPID_PUBLIC_KEY and PANTRY_VAPID_PRIVATE_KEY to enable")
	}

	// Background cleanup goroutine
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				now := time.Now()
				if n, err := srv.ResetStore().DeleteExpired(ctx, now); err != nil {
					slog.Error("cleanup expired reset codes", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired reset codes", "count", n)
				}
				if n, err := srv.AlertStore().CleanupSent(ctx, now.Add(-alertRetention)); err != nil {
					slog.Error("cleanup sent alerts", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up sent alerts", "count", n)
				}
				srv.RateLimiter().Cleanup()
				slog.Debug("rate limiter swept", "tracked", srv.RateLimiter().Len())
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("pantry starting", "addr", ":"+cfg.Port, "lookup", source.Name(), "tz", cfg.Location.String())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	if d := srv.Dispatcher(); d != nil {
		d.Stop()
	}
	srv.Backups().Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	srv.Lookup().Wait()
}

func printVAPIDKeys() error {
	pub, priv, err := notify.GenerateVAPIDKeys()
	if err != nil {
		return fmt.Errorf("generate vapid keys: %w", err)
	}
	fmt.Printf("PANTRY_VAPID_PUBLIC_KEY=%s\nPANTRY_VAPID_PRIVATE_KEY=%s\n", pub, priv)
	return nil
}

// runBackupCommand handles the offline backup subcommands. restore must be
// run while the server is stopped.
func runBackupCommand(name string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	m := backup.NewManager(server.BackupConfig(cfg), db, store.NewBackupStore(db), nil, logger.With("component", "backup"))
	ctx := context.Background()

	switch name {
	case "backup":
		b, err := m.RunNow(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("backup %d uploaded to %s (%d bytes)\n", b.ID, b.ObjectKey, b.SizeBytes)
		return nil

	case "backups":
		list, err := m.List(ctx, 50)
		if err != nil {
			return err
		}
		for _, b := range list {
			fmt.Printf("%d\t%s\t%s\t%d\t%s\n", b.ID, b.StartedAt.Format(time.RFC3339), b.Status, b.SizeBytes, b.ObjectKey)
		}
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("usage: pantry restore <backup-id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid backup id %q", args[0])
	}

	// Restore beside the live file, then swap once our handle is closed so
	// a WAL checkpoint cannot write into the restored database.
	staged := cfg.DBPath + ".restore"
	if err := m.Restore(ctx, id, staged); err != nil {
		os.Remove(staged)
		return err
	}
	db.Close()
	if err := os.Rename(staged, cfg.DBPath); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	os.Remove(cfg.DBPath + "-wal")
	os.Remove(cfg.DBPath + "-shm")
	fmt.Printf("restored backup %d to %s\n", id, cfg.DBPath)
	return nil
}
