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

// SessionPurger removes session rows that expired before the cutoff.
type SessionPurger interface {
	DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionPurgeJob cleans up the session registry.
type SessionPurgeJob struct {
	Repo    SessionPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSessionPurgeJob wires dependencies for the session cleanup handler.
func NewSessionPurgeJob(repo SessionPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionPurgeJob {
	return &SessionPurgeJob{
		Repo:    repo,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes session purge tasks. A grace period keeps freshly
// expired rows around so an active logout can still find its record.
func (j *SessionPurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Repo == nil {
		return errors.New("session purge: handler not configured")
	}
	var payload SessionPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.GraceHours < 0 {
		payload.GraceHours = 0
	}

	tracker := j.metrics().Track("session_purge")
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.now().Add(-time.Duration(payload.GraceHours) * time.Hour)
	purged, err := j.Repo.DeleteExpiredSessions(ctx, cutoff)
	if err != nil {
		resultErr = err
		j.logger().Error("purge sessions", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddPurged("session_purge", purged)
	j.logger().Info("purged sessions", slog.Int64("rows", purged), slog.Time("cutoff", cutoff))
	return resultErr
}

func (j *SessionPurgeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SessionPurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *SessionPurgeJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
