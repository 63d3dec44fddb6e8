package audit

import (
	"context"
	"testing"
	"time"
)

type stubTimelineRepo struct {
	rows       []Log
	lastOffset int
	lastLimit  int
	lastFilter Filters
}

func (s *stubTimelineRepo) Window(ctx context.Context, f Filters, offset, limit int) ([]Log, error) {
	s.lastFilter = f
	s.lastOffset = offset
	s.lastLimit = limit
	if offset >= len(s.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

func (s *stubTimelineRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	kept := s.rows[:0]
	var purged int64
	for _, row := range s.rows {
		if row.At.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept
	return purged, nil
}

func timelineRows(n int) []Log {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := make([]Log, n)
	for i := range rows {
		rows[i] = Log{
			ID:       int64(n - i),
			Username: "admin",
			Action:   "UPDATE",
			At:       base.Add(-time.Duration(i) * time.Hour),
		}
	}
	return rows
}

func TestRecentPaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: timelineRows(5)}
	svc := NewService(repo)

	result, err := svc.Recent(context.Background(), Filters{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext {
		t.Fatalf("expected hasNext true")
	}
	if result.Paging.NextPage != 2 || result.Paging.PrevPage != 0 {
		t.Fatalf("unexpected paging %+v", result.Paging)
	}
	if repo.lastLimit != 3 {
		t.Fatalf("expected limit pageSize+1, got %d", repo.lastLimit)
	}
	if repo.lastOffset != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastOffset)
	}
}

func TestRecentLastPage(t *testing.T) {
	repo := &stubTimelineRepo{rows: timelineRows(5)}
	svc := NewService(repo)

	result, err := svc.Recent(context.Background(), Filters{Page: 3, PageSize: 2})
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(result.Rows))
	}
	if result.Paging.HasNext {
		t.Fatalf("expected hasNext false on last page")
	}
	if result.Paging.PrevPage != 2 {
		t.Fatalf("expected prevPage 2, got %d", result.Paging.PrevPage)
	}
}

func TestRecentDefaultsAndCap(t *testing.T) {
	repo := &stubTimelineRepo{rows: timelineRows(1)}
	svc := NewService(repo)

	if _, err := svc.Recent(context.Background(), Filters{}); err != nil {
		t.Fatalf("recent: %v", err)
	}
	if repo.lastLimit != 21 {
		t.Fatalf("expected default page size 20, got limit %d", repo.lastLimit)
	}

	if _, err := svc.Recent(context.Background(), Filters{PageSize: 500}); err != nil {
		t.Fatalf("recent: %v", err)
	}
	if repo.lastLimit != 101 {
		t.Fatalf("expected page size capped at 100, got limit %d", repo.lastLimit)
	}
}

func TestExportReturnsAllRows(t *testing.T) {
	repo := &stubTimelineRepo{rows: timelineRows(3)}
	svc := NewService(repo)

	rows, err := svc.Export(context.Background(), Filters{Username: "admin"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if repo.lastFilter.Username != "admin" {
		t.Fatalf("filters must pass through, got %+v", repo.lastFilter)
	}
}
