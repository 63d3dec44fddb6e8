package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditPurge removes audit records past their retention window.
	TaskAuditPurge = "audit:purge"
	// TaskSessionPurge removes expired session records.
	TaskSessionPurge = "sessions:purge"
)

// AuditPurgePayload configures one audit retention run.
type AuditPurgePayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewAuditPurgeTask constructs an audit purge task.
func NewAuditPurgeTask(retentionDays int) (*asynq.Task, error) {
	data, err := json.Marshal(AuditPurgePayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPurge, data), nil
}

// SessionPurgePayload configures one session cleanup run.
type SessionPurgePayload struct {
	GraceHours int `json:"grace_hours"`
}

// NewSessionPurgeTask constructs a session purge task.
func NewSessionPurgeTask(graceHours int) (*asynq.Task, error) {
	data, err := json.Marshal(SessionPurgePayload{GraceHours: graceHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPurge, data), nil
}
