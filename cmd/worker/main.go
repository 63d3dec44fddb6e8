package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dsa-dev/backoffice/internal/app"
	"github.com/dsa-dev/backoffice/internal/audit"
	"github.com/dsa-dev/backoffice/internal/auth"
	"github.com/dsa-dev/backoffice/internal/platform/db"
	"github.com/dsa-dev/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditRepo := audit.NewRepository(pool)
	auditPurge := jobs.NewAuditPurgeJob(auditRepo, logger, nil)

	authRepo := auth.NewRepository(pool)
	sessionPurge := jobs.NewSessionPurgeJob(authRepo, logger, nil)

	auditTask, err := jobs.NewAuditPurgeTask(cfg.AuditRetentionDays)
	if err != nil {
		logger.Error("build audit purge task", slog.Any("error", err))
		os.Exit(1)
	}
	sessionTask, err := jobs.NewSessionPurgeTask(cfg.SessionGraceHours)
	if err != nil {
		logger.Error("build session purge task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditPurge, Handler: auditPurge.Handle},
			{Type: jobs.TaskSessionPurge, Handler: sessionPurge.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 2 * * *", Task: auditTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: sessionTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
