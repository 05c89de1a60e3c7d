package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/joho/godotenv"
	"veo3.app/license/handlers"
	"veo3.app/license/internal/config"
	"veo3.app/license/internal/email"
	"veo3.app/license/internal/logger"
	"veo3.app/license/internal/version"
	"veo3.app/license/license"
	"veo3.app/license/storage"
)

func main() {
	if err := run(); err != nil {
		logger.Error("License API stopped", map[string]interface{}{
			"error": err.Error(),
		})
		_ = logger.Default().Sync()
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to load .env file", map[string]interface{}{
			"error": err.Error(),
		})
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	defer logger.Default().Sync()

	v := version.Resolve("VERSION")
	if err := initSentry(cfg, v); err != nil {
		return err
	}
	defer sentry.Flush(2 * time.Second)

	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close storage", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	if cfg.SeedFile != "" {
		n, err := storage.LoadSeed(ctx, store, cfg.SeedFile)
		if err != nil {
			return err
		}
		logger.Info("Seed licenses loaded", map[string]interface{}{
			"count": n,
			"path":  cfg.SeedFile,
		})
	}

	registry := license.NewRegistry(store, license.NewSecretAuthorizer(cfg.AdminKey),
		license.WithServiceName(cfg.ServiceName))

	opts := handlers.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		PanicReporter:  sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle,
	}
	if cfg.StripeEnabled() {
		opts.StripeWebhookSecret = cfg.StripeWebhookSecret
	}
	if cfg.EmailEnabled() {
		mailer, err := email.NewSMTPMailer(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
		})
		if err != nil {
			return err
		}
		opts.Mailer = mailer
	}

	server := handlers.NewHttpServer(registry, opts)
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("License API starting", map[string]interface{}{
			"version":      v,
			"port":         cfg.Port,
			"store_driver": cfg.StoreDriver,
			"stripe":       cfg.StripeEnabled(),
			"mailer":       cfg.EmailEnabled(),
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-stop:
		logger.Info("Shutting down", map[string]interface{}{
			"signal": sig.String(),
		})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("License API stopped cleanly")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.StoreDriver {
	case config.DriverFile:
		return storage.NewFileStorage(cfg.DatabasePath)
	case config.DriverSQLite:
		return storage.NewSQLiteStorage(cfg.DatabasePath)
	case config.DriverRedis:
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return storage.ConnectRedis(connectCtx, cfg.RedisURL)
	default:
		logger.Warn("Using in-memory storage; licenses are lost on restart")
		return storage.NewMemoryStorage(), nil
	}
}

// initSentry reports panics only. Request data, user data and breadcrumbs
// never leave the process.
func initSentry(cfg *config.Config, release string) error {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:            cfg.SentryDSN,
		Release:        version.Release(release),
		SendDefaultPII: false,
		MaxBreadcrumbs: -1,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			event.Request = nil
			event.User = sentry.User{}
			event.Breadcrumbs = nil
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("sentry.Init: %w", err)
	}
	return nil
}
