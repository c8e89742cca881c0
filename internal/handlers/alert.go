package handlers

import (
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/repositories"
)

const defaultAlertListLimit = 100

// AlertHandler handles alert HTTP requests
type AlertHandler struct {
	alerts repositories.AlertRepo
	logger ectologger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alerts repositories.AlertRepo, logger ectologger.Logger) *AlertHandler {
	return &AlertHandler{
		alerts: alerts,
		logger: logger,
	}
}

// RegisterRoutes registers the alert routes
func (h *AlertHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/ack", h.Acknowledge)
}

// List returns alerts matching the query filters
func (h *AlertHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := GetTenantID(c); err != nil {
		return err
	}

	filter := repositories.AlertFilter{Limit: defaultAlertListLimit}

	if raw := c.QueryParam("executive_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return BadRequest("invalid executive_id")
		}
		filter.ExecutiveID = &id
	}
	if raw := c.QueryParam("type"); raw != "" {
		alertType := models.AlertType(raw)
		switch alertType {
		case models.AlertTypeNewBill, models.AlertTypeDueSoon, models.AlertTypeOverdue:
		default:
			return BadRequest("invalid type")
		}
		filter.Type = &alertType
	}
	if raw := c.QueryParam("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			return BadRequest("unread must be a boolean")
		}
		filter.OnlyUnread = unread
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return BadRequest("limit must be a positive integer")
		}
		filter.Limit = limit
	}

	alerts, err := h.alerts.List(ctx, filter)
	if err != nil {
		return err
	}

	return SuccessResponse(c, alerts)
}

// Get returns a single alert
func (h *AlertHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	alert, err := h.alerts.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, alert)
}

// Acknowledge marks an alert as read. Acknowledging twice keeps the original
// timestamp.
func (h *AlertHandler) Acknowledge(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.alerts.Acknowledge(ctx, id); err != nil {
		return err
	}

	alert, err := h.alerts.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, alert)
}
