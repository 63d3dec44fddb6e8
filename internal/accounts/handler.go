package accounts

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dsa-dev/backoffice/internal/platform/httpx"
	"github.com/dsa-dev/backoffice/internal/rbac"
	"github.com/dsa-dev/backoffice/internal/shared"
)

// Handler manages account endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermAccountsView, shared.PermAccountsEdit))
		r.Get("/", h.search)
		r.Post("/search", h.searchJSON)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermAccountsEdit))
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

type searchRequest struct {
	AccountRef   string `json:"account_ref"`
	AccountName  string `json:"account_name"`
	Currency     string `json:"currency"`
	CustomerName string `json:"customer_name"`
	CreatedBy    string `json:"created_by"`
	UpdatedBy    string `json:"updated_by"`

	Status *string `json:"status"`

	AccountIDFrom  *int64 `json:"account_id_from"`
	AccountIDTo    *int64 `json:"account_id_to"`
	CustomerIDFrom *int64 `json:"customer_id_from"`
	CustomerIDTo   *int64 `json:"customer_id_to"`

	CreatedAtFrom *time.Time `json:"created_at_from"`
	CreatedAtTo   *time.Time `json:"created_at_to"`
	UpdatedAtFrom *time.Time `json:"updated_at_from"`
	UpdatedAtTo   *time.Time `json:"updated_at_to"`
}

func (req searchRequest) criteria() (SearchCriteria, error) {
	c := SearchCriteria{
		AccountRef:     req.AccountRef,
		AccountName:    req.AccountName,
		Currency:       req.Currency,
		CustomerName:   req.CustomerName,
		CreatedBy:      req.CreatedBy,
		UpdatedBy:      req.UpdatedBy,
		AccountIDFrom:  req.AccountIDFrom,
		AccountIDTo:    req.AccountIDTo,
		CustomerIDFrom: req.CustomerIDFrom,
		CustomerIDTo:   req.CustomerIDTo,
		CreatedAtFrom:  req.CreatedAtFrom,
		CreatedAtTo:    req.CreatedAtTo,
		UpdatedAtFrom:  req.UpdatedAtFrom,
		UpdatedAtTo:    req.UpdatedAtTo,
	}
	if req.Status != nil && *req.Status != "" {
		status := AccountStatus(*req.Status)
		if !ValidStatus(status) {
			return SearchCriteria{}, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, *req.Status)
		}
		c.Status = &status
	}
	return c, nil
}

type createRequest struct {
	AccountRef  string `json:"account_ref" validate:"required,max=50"`
	AccountName string `json:"account_name" validate:"required,max=100"`
	Currency    string `json:"currency" validate:"required,len=3"`
	Status      string `json:"status"`
	CustomerID  int64  `json:"customer_id" validate:"required,min=1"`
}

type updateRequest struct {
	AccountName *string `json:"account_name" validate:"omitempty,max=100"`
	Currency    *string `json:"currency" validate:"omitempty,len=3"`
	Status      *string `json:"status"`
}

// search supports quick lookups via query parameters; the JSON body
// variant carries the full criteria set.
func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := searchRequest{
		AccountRef:   q.Get("account_ref"),
		AccountName:  q.Get("account_name"),
		Currency:     q.Get("currency"),
		CustomerName: q.Get("customer_name"),
	}
	if raw := q.Get("status"); raw != "" {
		req.Status = &raw
	}
	h.runSearch(w, r, req)
}

func (h *Handler) searchJSON(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	h.runSearch(w, r, req)
}

func (h *Handler) runSearch(w http.ResponseWriter, r *http.Request, req searchRequest) {
	criteria, err := req.criteria()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	results, err := h.service.Search(r.Context(), criteria)
	if err != nil {
		h.logger.Error("account search failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": results})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Create(r.Context(), CreateInput{
		AccountRef:  req.AccountRef,
		AccountName: req.AccountName,
		Currency:    req.Currency,
		Status:      AccountStatus(req.Status),
		CustomerID:  req.CustomerID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := UpdateInput{AccountName: req.AccountName, Currency: req.Currency}
	if req.Status != nil {
		status := AccountStatus(*req.Status)
		in.Status = &status
	}
	account, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if err := h.validator.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func (h *Handler) pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", httpx.ErrValidation)
	}
	return id, nil
}
