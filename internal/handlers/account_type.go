package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/repositories"
)

// AccountTypeHandler handles account type HTTP requests
type AccountTypeHandler struct {
	repo   repositories.AccountTypeRepo
	logger ectologger.Logger
}

// NewAccountTypeHandler creates a new account type handler
func NewAccountTypeHandler(repo repositories.AccountTypeRepo, logger ectologger.Logger) *AccountTypeHandler {
	return &AccountTypeHandler{
		repo:   repo,
		logger: logger,
	}
}

// RegisterRoutes registers the account type routes
func (h *AccountTypeHandler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

// CreateAccountTypeRequest is the request body for creating an account type
type CreateAccountTypeRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// Create creates a new account type
func (h *AccountTypeHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req CreateAccountTypeRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if req.Name == "" {
		return BadRequest("name is required")
	}

	accountType := &models.AccountType{
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
	}

	if err := h.repo.Create(ctx, accountType); err != nil {
		return err
	}

	return CreatedResponse(c, accountType)
}

// List returns all account types for the tenant
func (h *AccountTypeHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := GetTenantID(c); err != nil {
		return err
	}

	accountTypes, err := h.repo.List(ctx)
	if err != nil {
		return err
	}

	return SuccessResponse(c, accountTypes)
}

// Get returns a single account type
func (h *AccountTypeHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	accountType, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, accountType)
}

// UpdateAccountTypeRequest is the request body for updating an account type
type UpdateAccountTypeRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// Update updates an account type
func (h *AccountTypeHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req UpdateAccountTypeRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if req.Name == "" {
		return BadRequest("name is required")
	}

	accountType, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	accountType.Name = req.Name
	accountType.Description = req.Description

	if err := h.repo.Update(ctx, accountType); err != nil {
		return err
	}

	return SuccessResponse(c, accountType)
}

// Delete removes an account type
func (h *AccountTypeHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		return err
	}

	return NoContentResponse(c)
}
