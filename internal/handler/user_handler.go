package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/TsutomuTakai/pp-case-api/internal/cache"
	"github.com/TsutomuTakai/pp-case-api/internal/database/models"
	"github.com/TsutomuTakai/pp-case-api/internal/database/repository"
	"github.com/TsutomuTakai/pp-case-api/internal/database/service"
	"github.com/TsutomuTakai/pp-case-api/internal/middleware"
)

// UserHandler handles HTTP requests for the user collection
type UserHandler struct {
	userService service.UserService
	cacheStore  cache.Store
	logger      *slog.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService service.UserService, cacheStore cache.Store, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		cacheStore:  cacheStore,
		logger:      logger,
	}
}

type CreateUserRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=80"`
	Email    string `json:"email" binding:"required,email,max=120"`
	Password string `json:"password" binding:"required,min=6"`
}

type UpdateUserRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=1,max=80"`
	Email    *string `json:"email" binding:"omitempty,email,max=120"`
	Password *string `json:"password" binding:"omitempty,min=6"`
}

type ListUsersQuery struct {
	Page    int    `form:"page,default=1" binding:"omitempty,min=1"`
	PerPage int    `form:"per_page" binding:"omitempty,min=1"`
	Name    string `form:"name"`
	Email   string `form:"email"`
	SortBy  string `form:"sort_by" binding:"omitempty,oneof=name email"`
	Order   string `form:"order,default=asc" binding:"omitempty,oneof=asc desc"`
}

type UserPageResponse struct {
	Items      []models.User `json:"items"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	TotalItems int64         `json:"total_items"`
	TotalPages int           `json:"total_pages"`
	HasNext    bool          `json:"has_next"`
	HasPrev    bool          `json:"has_prev"`
	NextPage   *int          `json:"next_page"`
	PrevPage   *int          `json:"prev_page"`
}

// List handles GET /v1/users with pagination, filtering and sorting
func (h *UserHandler) List(c *gin.Context) {
	var query ListUsersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.logger.Warn("⚠️ [UserHandler] Invalid listing query", "error", err)
		status, resp := bindingErrors(err)
		c.JSON(status, resp)
		return
	}

	page, err := h.userService.ListUsers(service.ListQuery{
		Page:    query.Page,
		PerPage: query.PerPage,
		Name:    query.Name,
		Email:   query.Email,
		SortBy:  query.SortBy,
		Order:   query.Order,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, UserPageResponse{
		Items:      page.Items,
		Page:       page.Page,
		PerPage:    page.PerPage,
		TotalItems: page.TotalItems,
		TotalPages: page.TotalPages,
		HasNext:    page.HasNext,
		HasPrev:    page.HasPrev,
		NextPage:   page.NextPage,
		PrevPage:   page.PrevPage,
	})
}

// Get handles GET /v1/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := h.userIDParam(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUser(id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// Create handles POST /v1/users
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("⚠️ [UserHandler] Invalid create request", "error", err)
		status, resp := bindingErrors(err)
		c.JSON(status, resp)
		return
	}

	h.logger.Info("📝 [UserHandler] Create requested", "by_user_id", c.GetUint(middleware.ContextUserID))

	user, err := h.userService.CreateUser(req.Name, req.Email, req.Password)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.invalidateListings(c)
	c.JSON(http.StatusCreated, user)
}

// Update handles PUT /v1/users/:id with partial semantics
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := h.userIDParam(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("⚠️ [UserHandler] Invalid update request", "error", err)
		status, resp := bindingErrors(err)
		c.JSON(status, resp)
		return
	}

	h.logger.Info("✏️ [UserHandler] Update requested", "user_id", id, "by_user_id", c.GetUint(middleware.ContextUserID))

	user, err := h.userService.UpdateUser(id, service.UserUpdate{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.invalidateListings(c)
	c.JSON(http.StatusOK, user)
}

// Delete handles DELETE /v1/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := h.userIDParam(c)
	if !ok {
		return
	}

	h.logger.Info("🗑️ [UserHandler] Delete requested", "user_id", id, "by_user_id", c.GetUint(middleware.ContextUserID))

	if err := h.userService.DeleteUser(id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.invalidateListings(c)
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) userIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid user id")
		return 0, false
	}
	return uint(id), true
}

// invalidateListings drops cached listing pages after a mutation.
// A failed invalidation is logged but does not fail the mutation.
func (h *UserHandler) invalidateListings(c *gin.Context) {
	if err := h.cacheStore.InvalidateListings(c.Request.Context()); err != nil {
		h.logger.Warn("⚠️ [UserHandler] Failed to invalidate listing cache", "error", err)
	}
}

// handleServiceError maps service errors to HTTP responses
func (h *UserHandler) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmailAlreadyExists):
		respondError(c, http.StatusConflict, "A user with this email already exists")
	case errors.Is(err, repository.ErrUserNotFound):
		respondError(c, http.StatusNotFound, "User not found")
	case errors.Is(err, service.ErrInvalidSortField), errors.Is(err, service.ErrInvalidSortOrder):
		respondError(c, 422, "Invalid sort parameters")
	default:
		h.logger.Error("❌ [UserHandler] Internal server error", "error", err)
		respondError(c, http.StatusInternalServerError, "An unexpected internal error occurred")
	}
}
