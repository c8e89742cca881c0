package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/repositories"
)

// SettingsHandler handles tenant settings HTTP requests
type SettingsHandler struct {
	settings repositories.SettingsRepo
	logger   ectologger.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settings repositories.SettingsRepo, logger ectologger.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		logger:   logger,
	}
}

// RegisterRoutes registers the settings routes
func (h *SettingsHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.Get)
	g.PUT("", h.Upsert)
}

// Get returns the tenant's settings, falling back to defaults when no row
// has been saved yet
func (h *SettingsHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := GetTenantID(c); err != nil {
		return err
	}

	settings, err := h.settings.GetOrDefault(ctx)
	if err != nil {
		return err
	}

	return SuccessResponse(c, settings)
}

// UpsertSettingsRequest is the request body for updating tenant settings
type UpsertSettingsRequest struct {
	DueSoonDays   *int  `json:"due_soon_days"`
	SyncEnabled   *bool `json:"sync_enabled"`
	AlertsEnabled *bool `json:"alerts_enabled"`
}

// Upsert saves the tenant's settings. Omitted fields keep their current value.
func (h *SettingsHandler) Upsert(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req UpsertSettingsRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	settings, err := h.settings.GetOrDefault(ctx)
	if err != nil {
		return err
	}
	settings.TenantID = tenantID

	if req.DueSoonDays != nil {
		if *req.DueSoonDays < 1 || *req.DueSoonDays > 90 {
			return BadRequest("due_soon_days must be between 1 and 90")
		}
		settings.DueSoonDays = *req.DueSoonDays
	}
	if req.SyncEnabled != nil {
		settings.SyncEnabled = *req.SyncEnabled
	}
	if req.AlertsEnabled != nil {
		settings.AlertsEnabled = *req.AlertsEnabled
	}

	if err := h.settings.Upsert(ctx, settings); err != nil {
		return err
	}

	return SuccessResponse(c, settings)
}
