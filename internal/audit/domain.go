package audit

import (
	"context"
	"time"
)

// Entry describes one administrative action to be recorded. Old and new
// value representations are free-form strings supplied by the mutating
// service.
type Entry struct {
	Username   string
	Action     string
	EntityType string
	EntityID   int64
	Details    string
	OldValue   string
	NewValue   string
	IPAddress  string
	At         time.Time
}

// Log is a persisted audit record.
type Log struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   int64     `json:"entity_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	OldValue   string    `json:"old_value,omitempty"`
	NewValue   string    `json:"new_value,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	At         time.Time `json:"at"`
}

// Recorder is the audit sink consumed by mutating services. Failures are
// reported to the caller, which logs and swallows them: an audit problem
// must never roll back the mutation it describes.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}
