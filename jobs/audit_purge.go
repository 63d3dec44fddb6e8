package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/dsa-dev/backoffice/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AuditPurger removes audit rows older than the cutoff.
type AuditPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditPurgeJob enforces the audit log retention window.
type AuditPurgeJob struct {
	Repo    AuditPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAuditPurgeJob wires dependencies for the audit retention handler.
func NewAuditPurgeJob(repo AuditPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditPurgeJob {
	return &AuditPurgeJob{
		Repo:    repo,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes audit purge tasks.
func (j *AuditPurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Repo == nil {
		return errors.New("audit purge: handler not configured")
	}
	var payload AuditPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = 365
	}

	tracker := j.metrics().Track("audit_purge")
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.now().AddDate(0, 0, -payload.RetentionDays)
	purged, err := j.Repo.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		resultErr = err
		j.logger().Error("purge audit logs", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddPurged("audit_purge", purged)
	j.logger().Info("purged audit logs",
		slog.Int64("rows", purged),
		slog.Int("retention_days", payload.RetentionDays),
		slog.Time("cutoff", cutoff))
	return resultErr
}

func (j *AuditPurgeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AuditPurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *AuditPurgeJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
