package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dsa-dev/backoffice/internal/accounts"
	"github.com/dsa-dev/backoffice/internal/app"
	"github.com/dsa-dev/backoffice/internal/audit"
	audithttp "github.com/dsa-dev/backoffice/internal/audit/http"
	"github.com/dsa-dev/backoffice/internal/auth"
	"github.com/dsa-dev/backoffice/internal/customers"
	"github.com/dsa-dev/backoffice/internal/observability"
	"github.com/dsa-dev/backoffice/internal/platform/cache"
	"github.com/dsa-dev/backoffice/internal/platform/db"
	"github.com/dsa-dev/backoffice/internal/rbac"
	"github.com/dsa-dev/backoffice/internal/shared"
	"github.com/dsa-dev/backoffice/internal/users"
	"github.com/dsa-dev/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "backoffice_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	auditRecorder := audit.NewLogger(dbpool)
	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audithttp.NewHandler(logger, auditService)

	rbacRepo := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacRepo, auditRecorder, logger)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}
	rbacHandler := rbac.NewHandler(logger, rbacService, rbacMiddleware)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, rbacService, auditRecorder, logger)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, auditRecorder, logger)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	customersRepo := customers.NewRepository(dbpool)
	customersService := customers.NewService(customersRepo, auditRecorder, logger)
	customersHandler := customers.NewHandler(logger, customersService, rbacMiddleware)

	accountsRepo := accounts.NewRepository(dbpool)
	accountsService := accounts.NewService(accountsRepo, auditRecorder, logger)
	accountsHandler := accounts.NewHandler(logger, accountsService, rbacMiddleware)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		RBACHandler:      rbacHandler,
		UsersHandler:     usersHandler,
		AccountsHandler:  accountsHandler,
		CustomersHandler: customersHandler,
		AuditHandler:     auditHandler,
		JobHandler:       jobHandler,
		RBACMiddleware:   rbacMiddleware,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
