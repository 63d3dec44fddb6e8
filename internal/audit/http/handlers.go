package audithttp

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dsa-dev/backoffice/internal/audit"
	"github.com/dsa-dev/backoffice/internal/platform/httpx"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRangeDays = 90
)

// TimelineService defines the business contract for audit reads.
type TimelineService interface {
	Recent(ctx context.Context, filters audit.Filters) (audit.Result, error)
	Export(ctx context.Context, filters audit.Filters) ([]audit.Log, error)
}

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler builds an audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Recent(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"logs":   result.Rows,
		"paging": pagingPayload(result.Paging),
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-logs.csv"`)
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"at", "username", "action", "entity_type", "entity_id", "details", "ip_address"}); err != nil {
		h.logger.Warn("write csv header", slog.Any("error", err))
		return
	}
	for _, row := range rows {
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			row.Username,
			row.Action,
			row.EntityType,
			strconv.FormatInt(row.EntityID, 10),
			row.Details,
			row.IPAddress,
		}
		if err := writer.Write(record); err != nil {
			h.logger.Warn("write csv row", slog.Any("error", err))
			return
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		h.logger.Warn("flush csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (audit.Filters, error) {
	query := r.URL.Query()
	now := h.now().UTC()

	toStr := strings.TrimSpace(query.Get("to"))
	if toStr == "" {
		toStr = now.Format("2006-01-02")
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return audit.Filters{}, fmt.Errorf("%w: invalid to date", httpx.ErrValidation)
	}
	fromStr := strings.TrimSpace(query.Get("from"))
	if fromStr == "" {
		fromStr = to.Add(-defaultDateRange).Format("2006-01-02")
	}
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return audit.Filters{}, fmt.Errorf("%w: invalid from date", httpx.ErrValidation)
	}
	if from.After(to) {
		return audit.Filters{}, fmt.Errorf("%w: from is after to", httpx.ErrValidation)
	}
	if to.Sub(from) > maxDateRangeDays*24*time.Hour {
		return audit.Filters{}, fmt.Errorf("%w: range exceeds %d days", httpx.ErrValidation, maxDateRangeDays)
	}

	page := 0
	if v := strings.TrimSpace(query.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, fmt.Errorf("%w: invalid page", httpx.ErrValidation)
		}
		page = parsed
	}
	pageSize := 0
	if v := strings.TrimSpace(query.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, fmt.Errorf("%w: invalid page_size", httpx.ErrValidation)
		}
		pageSize = parsed
	}

	// The to bound is a date; stretch it to the end of that day.
	return audit.Filters{
		Username:   strings.TrimSpace(query.Get("username")),
		EntityType: strings.TrimSpace(query.Get("entity_type")),
		Action:     strings.TrimSpace(query.Get("action")),
		From:       from,
		To:         to.Add(24*time.Hour - time.Nanosecond),
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

func pagingPayload(p audit.PagingInfo) map[string]any {
	payload := map[string]any{
		"page":      p.Page,
		"page_size": p.PageSize,
		"has_next":  p.HasNext,
	}
	if p.PrevPage > 0 {
		payload["prev_page"] = p.PrevPage
	}
	if p.NextPage > 0 {
		payload["next_page"] = p.NextPage
	}
	return payload
}
