package jobs

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

type stubAuditPurger struct {
	cutoff time.Time
	purged int64
	err    error
}

func (s *stubAuditPurger) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.purged, s.err
}

type stubSessionPurger struct {
	cutoff time.Time
	purged int64
}

func (s *stubSessionPurger) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.purged, nil
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)
}

func TestAuditPurgeUsesRetentionWindow(t *testing.T) {
	repo := &stubAuditPurger{purged: 42}
	job := NewAuditPurgeJob(repo, slog.Default(), nil)
	job.clock = fixedClock

	task, err := NewAuditPurgeTask(30)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	want := fixedClock().AddDate(0, 0, -30)
	if !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, repo.cutoff)
	}
}

func TestAuditPurgeDefaultsRetention(t *testing.T) {
	repo := &stubAuditPurger{}
	job := NewAuditPurgeJob(repo, slog.Default(), nil)
	job.clock = fixedClock

	task, err := NewAuditPurgeTask(0)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	want := fixedClock().AddDate(0, 0, -365)
	if !repo.cutoff.Equal(want) {
		t.Fatalf("expected one-year default cutoff %v, got %v", want, repo.cutoff)
	}
}

func TestAuditPurgeSkipsRetryOnBadPayload(t *testing.T) {
	job := NewAuditPurgeJob(&stubAuditPurger{}, slog.Default(), nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskAuditPurge, []byte("{broken")))
	if err != asynq.SkipRetry {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestSessionPurgeAppliesGrace(t *testing.T) {
	repo := &stubSessionPurger{purged: 7}
	job := NewSessionPurgeJob(repo, slog.Default(), nil)
	job.clock = fixedClock

	task, err := NewSessionPurgeTask(24)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	want := fixedClock().Add(-24 * time.Hour)
	if !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, repo.cutoff)
	}
}
