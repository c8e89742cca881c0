package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/blob"
	"github.com/Ramsey-B/aster/pkg/connector"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/repositories"
)

const (
	defaultBillListLimit = 100

	// MaxAttachmentSize bounds manual attachment uploads
	MaxAttachmentSize = 25 << 20
)

// BillNotifier creates alerts for bills entered outside a sync run
type BillNotifier interface {
	NotifyBillRegistered(ctx context.Context, bill *models.Bill) error
	RefreshForExecutive(ctx context.Context, executiveID uuid.UUID) (int, error)
}

// BillHandler handles bill HTTP requests
type BillHandler struct {
	bills    repositories.BillRepo
	alerts   repositories.AlertRepo
	settings repositories.SettingsRepo
	blobs    blob.Store
	notifier BillNotifier
	logger   ectologger.Logger
}

// NewBillHandler creates a new bill handler
func NewBillHandler(
	bills repositories.BillRepo,
	alerts repositories.AlertRepo,
	settings repositories.SettingsRepo,
	blobs blob.Store,
	notifier BillNotifier,
	logger ectologger.Logger,
) *BillHandler {
	return &BillHandler{
		bills:    bills,
		alerts:   alerts,
		settings: settings,
		blobs:    blobs,
		notifier: notifier,
		logger:   logger,
	}
}

// RegisterRoutes registers the bill routes
func (h *BillHandler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/summary", h.Summary)
	g.POST("/seen", h.MarkSeen)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)

	g.POST("/:id/attachment", h.UploadAttachment)
	g.GET("/:id/attachment", h.DownloadAttachment)
}

// CreateBillRequest is the request body for registering a bill manually
type CreateBillRequest struct {
	ConnectionID  uuid.UUID  `json:"connection_id"`
	ExecutiveID   uuid.UUID  `json:"executive_id"`
	AccountTypeID uuid.UUID  `json:"account_type_id"`
	Reference     *string    `json:"reference"`
	Amount        *float64   `json:"amount"`
	Currency      string     `json:"currency"`
	IssueDate     *time.Time `json:"issue_date"`
	DueDate       *time.Time `json:"due_date"`
}

// Create registers a bill entered by hand. Manual bills have no remote ID and
// raise a registration alert instead of a discovery alert.
func (h *BillHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req CreateBillRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if req.ConnectionID == uuid.Nil {
		return BadRequest("connection_id is required")
	}
	if req.ExecutiveID == uuid.Nil {
		return BadRequest("executive_id is required")
	}
	if req.AccountTypeID == uuid.Nil {
		return BadRequest("account_type_id is required")
	}
	if req.Amount != nil && *req.Amount < 0 {
		return BadRequest("amount must not be negative")
	}

	bill := &models.Bill{
		TenantID:      tenantID,
		ConnectionID:  req.ConnectionID,
		ExecutiveID:   req.ExecutiveID,
		AccountTypeID: req.AccountTypeID,
		Reference:     req.Reference,
		Amount:        req.Amount,
		Currency:      req.Currency,
		IssueDate:     req.IssueDate,
		DueDate:       req.DueDate,
		Status:        models.BillStatusNew,
	}

	if err := h.bills.Create(ctx, bill); err != nil {
		return err
	}

	if err := h.notifier.NotifyBillRegistered(ctx, bill); err != nil {
		h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"bill_id": bill.ID,
		}).Warn("Failed to create registration alert")
	}
	if bill.DueDate != nil {
		if _, err := h.notifier.RefreshForExecutive(ctx, bill.ExecutiveID); err != nil {
			h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"executive_id": bill.ExecutiveID,
			}).Warn("Failed to refresh due alerts")
		}
	}

	return CreatedResponse(c, bill)
}

// List returns bills matching the query filters
func (h *BillHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := GetTenantID(c); err != nil {
		return err
	}

	filter := repositories.BillFilter{Limit: defaultBillListLimit}

	if raw := c.QueryParam("connection_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return BadRequest("invalid connection_id")
		}
		filter.ConnectionID = &id
	}
	if raw := c.QueryParam("executive_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return BadRequest("invalid executive_id")
		}
		filter.ExecutiveID = &id
	}
	if raw := c.QueryParam("status"); raw != "" {
		status := models.BillStatus(raw)
		filter.Status = &status
	}
	if raw := c.QueryParam("due_from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return BadRequest("due_from must be YYYY-MM-DD")
		}
		filter.DueFrom = &t
	}
	if raw := c.QueryParam("due_to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return BadRequest("due_to must be YYYY-MM-DD")
		}
		filter.DueTo = &t
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return BadRequest("limit must be a positive integer")
		}
		filter.Limit = limit
	}

	bills, err := h.bills.List(ctx, filter)
	if err != nil {
		return err
	}

	return SuccessResponse(c, bills)
}

// Get returns a single bill
func (h *BillHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	bill, err := h.bills.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, bill)
}

// UpdateBillRequest is the request body for updating a bill
type UpdateBillRequest struct {
	Reference *string            `json:"reference"`
	Amount    *float64           `json:"amount"`
	IssueDate *time.Time         `json:"issue_date"`
	DueDate   *time.Time         `json:"due_date"`
	Status    *models.BillStatus `json:"status"`
	PaidAt    *time.Time         `json:"paid_at"`
}

// Update updates a bill's editable fields
func (h *BillHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req UpdateBillRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	bill, err := h.bills.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if req.Reference != nil {
		bill.Reference = req.Reference
	}
	if req.Amount != nil {
		if *req.Amount < 0 {
			return BadRequest("amount must not be negative")
		}
		bill.Amount = req.Amount
	}
	if req.IssueDate != nil {
		bill.IssueDate = req.IssueDate
	}
	if req.DueDate != nil {
		bill.DueDate = req.DueDate
	}
	if req.Status != nil {
		switch *req.Status {
		case models.BillStatusNew, models.BillStatusOpen, models.BillStatusPaid,
			models.BillStatusOverdue, models.BillStatusCanceled:
		default:
			return BadRequest("invalid status")
		}
		bill.Status = *req.Status
	}
	if req.PaidAt != nil {
		bill.PaidAt = req.PaidAt
		bill.Status = models.BillStatusPaid
	}

	if err := h.bills.Update(ctx, bill); err != nil {
		return err
	}

	return SuccessResponse(c, bill)
}

// MarkSeenRequest is the request body for marking bills as seen
type MarkSeenRequest struct {
	BillIDs []uuid.UUID `json:"bill_ids"`
}

// MarkSeenResponse reports how many bills were updated
type MarkSeenResponse struct {
	Updated int64 `json:"updated"`
}

// MarkSeen stamps the given bills as seen. Scoped by tenant, not by
// executive. Bills already seen keep their original timestamp.
func (h *BillHandler) MarkSeen(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := GetTenantID(c); err != nil {
		return err
	}

	var req MarkSeenRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if len(req.BillIDs) == 0 {
		return BadRequest("bill_ids is required")
	}

	updated, err := h.bills.MarkSeen(ctx, req.BillIDs)
	if err != nil {
		return err
	}

	return SuccessResponse(c, MarkSeenResponse{Updated: updated})
}

// SummaryResponse is the executive dashboard summary
type SummaryResponse struct {
	NewBills       int `json:"new_bills"`
	DueSoon        int `json:"due_soon"`
	Overdue        int `json:"overdue"`
	UnreadAlerts   int `json:"unread_alerts"`
	DueSoonDaysCfg int `json:"due_soon_days"`
}

// Summary returns the bill and alert counters for one executive
func (h *BillHandler) Summary(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := GetTenantID(c); err != nil {
		return err
	}

	raw := c.QueryParam("executive_id")
	if raw == "" {
		return BadRequest("executive_id is required")
	}
	executiveID, err := uuid.Parse(raw)
	if err != nil {
		return BadRequest("invalid executive_id")
	}

	settings, err := h.settings.GetOrDefault(ctx)
	if err != nil {
		return err
	}

	counts, err := h.bills.CountSummary(ctx, executiveID, settings.DueSoonDays, time.Now().UTC())
	if err != nil {
		return err
	}

	unread, err := h.alerts.CountUnacknowledged(ctx, executiveID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, SummaryResponse{
		NewBills:       counts.NewBills,
		DueSoon:        counts.DueSoon,
		Overdue:        counts.Overdue,
		UnreadAlerts:   unread,
		DueSoonDaysCfg: settings.DueSoonDays,
	})
}

// UploadAttachment attaches an uploaded file to a bill, replacing any
// previous attachment reference.
func (h *BillHandler) UploadAttachment(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	bill, err := h.bills.GetByID(ctx, id)
	if err != nil {
		return err
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return BadRequest("file is required")
	}
	if fileHeader.Size > MaxAttachmentSize {
		return httperror.NewHTTPError(http.StatusRequestEntityTooLarge, "attachment exceeds the size limit")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return BadRequest("failed to read uploaded file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxAttachmentSize+1))
	if err != nil {
		return BadRequest("failed to read uploaded file")
	}
	if int64(len(data)) > MaxAttachmentSize {
		return httperror.NewHTTPError(http.StatusRequestEntityTooLarge, "attachment exceeds the size limit")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = connector.GuessMimeType(fileHeader.Filename)
	}

	ref, err := h.blobs.Upload(ctx, fileHeader.Filename, contentType, data)
	if err != nil {
		return err
	}

	// Replacing an attachment orphans the old blob; reclaim it best effort
	if bill.HasAttachment() {
		if err := h.blobs.Delete(ctx, *bill.AttachmentRef); err != nil {
			h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"bill_id": bill.ID,
				"ref":     *bill.AttachmentRef,
			}).Warn("Failed to delete replaced attachment")
		}
	}

	bill.AttachmentRef = &ref
	bill.AttachmentFilename = &fileHeader.Filename
	bill.AttachmentMimeType = &contentType
	size := int64(len(data))
	bill.AttachmentSize = &size
	if bill.Status == models.BillStatusNew {
		bill.Status = models.BillStatusOpen
	}

	if err := h.bills.Update(ctx, bill); err != nil {
		return err
	}

	return SuccessResponse(c, bill)
}

// DownloadAttachment streams a bill's attachment. The bill lookup enforces
// tenant scoping before the blob store is touched.
func (h *BillHandler) DownloadAttachment(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	bill, err := h.bills.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !bill.HasAttachment() {
		return httperror.NewHTTPError(http.StatusNotFound, "bill has no attachment")
	}

	object, err := h.blobs.Download(ctx, *bill.AttachmentRef)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return httperror.NewHTTPError(http.StatusNotFound, "attachment not found")
		}
		return err
	}

	filename := object.Filename
	if bill.AttachmentFilename != nil {
		filename = *bill.AttachmentFilename
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)

	return c.Blob(http.StatusOK, object.ContentType, object.Data)
}
