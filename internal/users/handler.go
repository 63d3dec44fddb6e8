package users

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dsa-dev/backoffice/internal/platform/httpx"
	"github.com/dsa-dev/backoffice/internal/rbac"
	"github.com/dsa-dev/backoffice/internal/shared"
)

// Handler manages user management endpoints.
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

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView, shared.PermUsersEdit))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersEdit))
		r.Post("/", h.createUser)
		r.Patch("/{id}", h.updateUser)
		r.Put("/{id}/password", h.changePassword)
		r.Put("/{id}/page-size", h.setPageSize)
		r.Put("/{id}/roles/{roleID}", h.assignRole)
		r.Delete("/{id}/roles/{roleID}", h.unassignRole)
		r.Put("/{id}/profiles/{profileID}", h.assignProfile)
		r.Delete("/{id}/profiles/{profileID}", h.unassignProfile)
	})
}

type createUserRequest struct {
	Username   string  `json:"username" validate:"required,max=60"`
	Email      string  `json:"email" validate:"required,email"`
	FullName   string  `json:"full_name" validate:"max=120"`
	Password   string  `json:"password" validate:"required,min=8"`
	RoleIDs    []int64 `json:"role_ids"`
	ProfileIDs []int64 `json:"profile_ids"`
}

type updateUserRequest struct {
	Username *string `json:"username" validate:"omitempty,max=60"`
	Email    *string `json:"email" validate:"omitempty,email"`
	FullName *string `json:"full_name" validate:"omitempty,max=120"`
	Active   *bool   `json:"active"`
}

type changePasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

type pageSizeRequest struct {
	PageSize int `json:"page_size" validate:"required,min=1"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	users, err := h.service.ListUsers(r.Context(), shared.NewPagination(page, perPage, 0))
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), CreateUserInput{
		Username:   req.Username,
		Email:      req.Email,
		FullName:   req.FullName,
		Password:   req.Password,
		RoleIDs:    req.RoleIDs,
		ProfileIDs: req.ProfileIDs,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateUserRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.UpdateUser(r.Context(), id, UpdateUserInput{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Active:   req.Active,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req changePasswordRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ChangePassword(r.Context(), id, req.Password); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setPageSize(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req pageSizeRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.SetPageSize(r.Context(), id, req.PageSize); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	h.linkOp(w, r, "roleID", h.service.AssignRole)
}

func (h *Handler) unassignRole(w http.ResponseWriter, r *http.Request) {
	h.linkOp(w, r, "roleID", h.service.UnassignRole)
}

func (h *Handler) assignProfile(w http.ResponseWriter, r *http.Request) {
	h.linkOp(w, r, "profileID", h.service.AssignProfile)
}

func (h *Handler) unassignProfile(w http.ResponseWriter, r *http.Request) {
	h.linkOp(w, r, "profileID", h.service.UnassignProfile)
}

func (h *Handler) linkOp(w http.ResponseWriter, r *http.Request, param string, op func(ctx context.Context, userID, linkID int64) error) {
	userID, err := h.pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	linkID, err := h.pathID(r, param)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := op(r.Context(), userID, linkID); err != nil {
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

func (h *Handler) pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", httpx.ErrValidation, name)
	}
	return id, nil
}
