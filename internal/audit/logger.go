package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsa-dev/backoffice/internal/shared"
)

// Logger writes records into audit_logs.
type Logger struct {
	pool *pgxpool.Pool
}

// NewLogger returns a new Logger.
func NewLogger(pool *pgxpool.Pool) *Logger {
	return &Logger{pool: pool}
}

var _ Recorder = (*Logger)(nil)

// Record persists the entry. Entries without an action or entity type are
// rejected; an empty entity id is allowed for events that are not tied to
// one record, such as login failures.
func (l *Logger) Record(ctx context.Context, entry Entry) error {
	if l == nil {
		return errors.New("audit: logger not initialised")
	}
	if entry.Action == "" {
		return errors.New("audit: entry requires action")
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if entry.Username == "" {
		entry.Username = shared.ActorFromContext(ctx)
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO audit_logs (username, action, entity_type, entity_id, details, old_value, new_value, ip_address, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.Username, entry.Action, optionalText(entry.EntityType), optionalInt(entry.EntityID),
		optionalText(entry.Details), optionalText(entry.OldValue), optionalText(entry.NewValue),
		optionalText(entry.IPAddress), at)
	return err
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func optionalInt(value int64) pgtype.Int8 {
	if value == 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: value, Valid: true}
}
