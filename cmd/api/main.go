// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Yomira identity server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire domain services and HTTP handlers.
//  7. Start the email dispatcher loop.
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/yomira-id/internal/api"
	"github.com/taibuivan/yomira-id/internal/audit"
	"github.com/taibuivan/yomira-id/internal/mail"
	"github.com/taibuivan/yomira-id/internal/platform/config"
	"github.com/taibuivan/yomira-id/internal/platform/constants"
	"github.com/taibuivan/yomira-id/internal/platform/migration"
	pgstore "github.com/taibuivan/yomira-id/internal/platform/postgres"
	redisstore "github.com/taibuivan/yomira-id/internal/platform/redis"
	"github.com/taibuivan/yomira-id/internal/platform/sec"
	"github.com/taibuivan/yomira-id/internal/privacy"
	"github.com/taibuivan/yomira-id/internal/session"
	"github.com/taibuivan/yomira-id/internal/token"
	"github.com/taibuivan/yomira-id/internal/users/admin"
	"github.com/taibuivan/yomira-id/internal/users/auth"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "yomira-id"))
	slog.SetDefault(log)

	log.Info("[Yomira ID] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "yomira-id"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 7. Privacy & Audit ────────────────────────────────────────────────
	privacyService := privacy.NewService(cfg.PseudonymSecret, cfg.EncryptionSecret)
	auditService := audit.NewService(audit.NewPostgresStore(pool), privacyService)

	// ── 8. Mail Outbox ────────────────────────────────────────────────────
	mailStore := mail.NewPostgresStore(pool)
	mailQueue := mail.NewQueue(mailStore)
	mailTemplates, err := mail.NewTemplateRegistry()
	must(log, err, "parse email templates")
	mailSender := mail.NewSMTPSender(mail.SMTPSettings{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		TLSMode:  cfg.SMTPTLSMode,
	})
	dispatcher := mail.NewDispatcher(mailStore, mailSender, mailTemplates, auditService, log,
		cfg.MailFromName, cfg.MailFromEmail)

	// ── 9. Identity Domain ────────────────────────────────────────────────
	userRepository := auth.NewPostgresUserRepository(pool)
	recoveryRepository := auth.NewPostgresRecoveryCodeRepository(pool)
	verifyTokenRepository := auth.NewVerificationTokenRepository(rdb)
	resetTokenRepository := auth.NewResetTokenRepository(rdb)

	csrfService := sec.NewCSRFService(cfg.SessionSecret, constants.AuthIssuer, session.TransientTTL)
	sessionService := session.NewService(session.NewPostgresStore(pool), userRepository, auditService, csrfService)
	tokenService := token.NewService(token.NewPostgresStore(pool), auditService)

	authService := auth.NewService(
		userRepository,
		recoveryRepository,
		verifyTokenRepository,
		resetTokenRepository,
		tokenService,
		sessionService,
		mailQueue,
		auditService,
		auth.NewStandardTOTP(),
		cfg.AppBaseURL,
		cfg.SendWelcomeEmail,
	)
	authHandler := auth.NewHandler(authService)
	adminHandler := admin.NewHandler(auditService, authService, userRepository)

	// ── 10. Background Dispatcher ─────────────────────────────────────────
	dispatcherCtx, dispatcherCancel := context.WithCancel(context.Background())
	defer dispatcherCancel()
	go dispatcher.Run(dispatcherCtx)

	// ── 11. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      authHandler,
		Admin:     adminHandler,
	}

	server := api.NewServer(context.Background(), cfg, log, sessionService, csrfService, handlers)

	// ── 12. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Stop claiming new email batches; in-flight jobs finish or are reclaimed
	// at next start.
	dispatcherCancel()

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
