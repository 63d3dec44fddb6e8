package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Filters narrows the recent-log listing.
type Filters struct {
	Username   string
	EntityType string
	Action     string
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}

// PagingInfo carries next/previous page hints.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result wraps a page of audit rows with paging information.
type Result struct {
	Rows   []Log
	Paging PagingInfo
}

// Repository provides read and retention access to audit_logs.
type Repository interface {
	Window(ctx context.Context, f Filters, offset, limit int) ([]Log, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service coordinates audit timeline reads.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Recent returns one page of audit records, newest first. It fetches one
// extra row to compute HasNext without a count query.
func (s *Service) Recent(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.Window(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every record matching the filters, capped so a runaway
// range cannot pull the whole table into memory.
func (s *Service) Export(ctx context.Context, filters Filters) ([]Log, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	const exportCap = 10000
	return s.repo.Window(ctx, filters, 0, exportCap)
}

// PGRepository implements Repository against PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// Window returns a slice of the audit timeline matching the filters.
func (r *PGRepository) Window(ctx context.Context, f Filters, offset, limit int) ([]Log, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, username, action, COALESCE(entity_type, ''), COALESCE(entity_id, 0),
		        COALESCE(details, ''), COALESCE(old_value, ''), COALESCE(new_value, ''),
		        COALESCE(ip_address, ''), occurred_at
		 FROM audit_logs
		 WHERE ($1::text IS NULL OR username = $1)
		   AND ($2::text IS NULL OR entity_type = $2)
		   AND ($3::text IS NULL OR action = $3)
		   AND ($4::timestamptz IS NULL OR occurred_at >= $4)
		   AND ($5::timestamptz IS NULL OR occurred_at <= $5)
		 ORDER BY occurred_at DESC, id DESC
		 OFFSET $6 LIMIT $7`,
		nullableText(f.Username), nullableText(f.EntityType), nullableText(f.Action),
		nullableTime(f.From), nullableTime(f.To), offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []Log
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.Username, &l.Action, &l.EntityType, &l.EntityID,
			&l.Details, &l.OldValue, &l.NewValue, &l.IPAddress, &l.At); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// PurgeOlderThan deletes audit rows older than the cutoff and reports how
// many were removed. Used by the retention job.
func (r *PGRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullableText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func nullableTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
