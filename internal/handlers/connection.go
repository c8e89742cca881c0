package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/repositories"
	syncer "github.com/Ramsey-B/aster/pkg/sync"
)

const defaultRunHistoryLimit = 20

// CredentialVault stores encrypted credential payloads for connections
type CredentialVault interface {
	Upsert(ctx context.Context, connectionID uuid.UUID, payload models.CredentialPayload) (*models.Credential, error)
}

// ConnectionSyncer triggers a synchronization run for one connection
type ConnectionSyncer interface {
	SyncConnection(ctx context.Context, connectionID uuid.UUID) (*models.SyncRun, error)
}

// ConnectionHandler handles connection HTTP requests
type ConnectionHandler struct {
	connections repositories.ConnectionRepo
	credentials repositories.CredentialRepo
	runs        repositories.SyncRunRepo
	vault       CredentialVault
	syncer      ConnectionSyncer
	logger      ectologger.Logger
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(
	connections repositories.ConnectionRepo,
	credentials repositories.CredentialRepo,
	runs repositories.SyncRunRepo,
	vault CredentialVault,
	connSyncer ConnectionSyncer,
	logger ectologger.Logger,
) *ConnectionHandler {
	return &ConnectionHandler{
		connections: connections,
		credentials: credentials,
		runs:        runs,
		vault:       vault,
		syncer:      connSyncer,
		logger:      logger,
	}
}

// RegisterRoutes registers the connection routes
func (h *ConnectionHandler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)

	g.PUT("/:id/credentials", h.UpsertCredentials)
	g.DELETE("/:id/credentials", h.DeleteCredentials)

	g.POST("/:id/sync", h.SyncNow)
	g.GET("/:id/runs", h.ListRuns)
}

// CreateConnectionRequest is the request body for creating a connection
type CreateConnectionRequest struct {
	ExecutiveID   uuid.UUID                `json:"executive_id"`
	AccountTypeID uuid.UUID                `json:"account_type_id"`
	Name          string                   `json:"name"`
	PortalURL     *string                  `json:"portal_url"`
	LoginURL      *string                  `json:"login_url"`
	Mode          models.AutomationMode    `json:"mode"`
	Recipe        *models.ExtractionRecipe `json:"recipe"`
	IsActive      *bool                    `json:"is_active"`
}

// Create creates a new connection. Automated connections must carry a recipe
// that can produce at least one bill field.
func (h *ConnectionHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req CreateConnectionRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if req.Name == "" {
		return BadRequest("name is required")
	}
	if req.ExecutiveID == uuid.Nil {
		return BadRequest("executive_id is required")
	}
	if req.AccountTypeID == uuid.Nil {
		return BadRequest("account_type_id is required")
	}

	mode := req.Mode
	if mode == "" {
		mode = models.ModeManual
	}
	if mode != models.ModeManual && mode != models.ModeAutomated {
		return BadRequest("mode must be manual or automated")
	}

	recipe := models.ExtractionRecipe{}
	if req.Recipe != nil {
		recipe = *req.Recipe
	}
	if mode == models.ModeAutomated {
		if req.Recipe == nil {
			return BadRequest("automated connections require a recipe")
		}
		if err := recipe.Validate(mode); err != nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid recipe: %s", err.Error())
		}
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	connection := &models.Connection{
		TenantID:      tenantID,
		ExecutiveID:   req.ExecutiveID,
		AccountTypeID: req.AccountTypeID,
		Name:          req.Name,
		PortalURL:     req.PortalURL,
		LoginURL:      req.LoginURL,
		Mode:          mode,
		Recipe:        database.JSONB[models.ExtractionRecipe]{Data: recipe},
		IsActive:      isActive,
	}

	if err := h.connections.Create(ctx, connection); err != nil {
		return err
	}

	return CreatedResponse(c, connection)
}

// List returns all connections for the tenant
func (h *ConnectionHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := GetTenantID(c); err != nil {
		return err
	}

	connections, err := h.connections.List(ctx)
	if err != nil {
		return err
	}

	return SuccessResponse(c, connections)
}

// Get returns a single connection
func (h *ConnectionHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	connection, err := h.connections.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, connection)
}

// UpdateConnectionRequest is the request body for updating a connection
type UpdateConnectionRequest struct {
	Name      string                   `json:"name"`
	PortalURL *string                  `json:"portal_url"`
	LoginURL  *string                  `json:"login_url"`
	Mode      models.AutomationMode    `json:"mode"`
	Recipe    *models.ExtractionRecipe `json:"recipe"`
	IsActive  *bool                    `json:"is_active"`
}

// Update updates a connection
func (h *ConnectionHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req UpdateConnectionRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if req.Name == "" {
		return BadRequest("name is required")
	}

	connection, err := h.connections.GetByID(ctx, id)
	if err != nil {
		return err
	}

	connection.Name = req.Name
	connection.PortalURL = req.PortalURL
	connection.LoginURL = req.LoginURL
	if req.Mode != "" {
		if req.Mode != models.ModeManual && req.Mode != models.ModeAutomated {
			return BadRequest("mode must be manual or automated")
		}
		connection.Mode = req.Mode
	}
	if req.Recipe != nil {
		connection.Recipe = database.JSONB[models.ExtractionRecipe]{Data: *req.Recipe}
	}
	if req.IsActive != nil {
		connection.IsActive = *req.IsActive
	}

	if connection.Mode == models.ModeAutomated {
		recipe := connection.Recipe.GetValue()
		if err := recipe.Validate(connection.Mode); err != nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid recipe: %s", err.Error())
		}
	}

	if err := h.connections.Update(ctx, connection); err != nil {
		return err
	}

	return SuccessResponse(c, connection)
}

// Delete removes a connection
func (h *ConnectionHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.connections.Delete(ctx, id); err != nil {
		return err
	}

	return NoContentResponse(c)
}

// UpsertCredentialsRequest is the request body for storing connection credentials
type UpsertCredentialsRequest struct {
	Username string            `json:"username"`
	Password string            `json:"password"`
	Extras   map[string]string `json:"extras"`
}

// UpsertCredentialsResponse reports the stored credential without its payload
type UpsertCredentialsResponse struct {
	ConnectionID   uuid.UUID `json:"connection_id"`
	PayloadVersion int       `json:"payload_version"`
}

// UpsertCredentials encrypts and stores the login secrets for a connection.
// The payload is never returned.
func (h *ConnectionHandler) UpsertCredentials(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req UpsertCredentialsRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if req.Username == "" && req.Password == "" && len(req.Extras) == 0 {
		return BadRequest("credential payload is empty")
	}

	// The connection must exist and belong to the tenant
	if _, err := h.connections.GetByID(ctx, id); err != nil {
		return err
	}

	credential, err := h.vault.Upsert(ctx, id, models.CredentialPayload{
		Username: req.Username,
		Password: req.Password,
		Extras:   req.Extras,
	})
	if err != nil {
		return err
	}

	return SuccessResponse(c, UpsertCredentialsResponse{
		ConnectionID:   credential.ConnectionID,
		PayloadVersion: credential.PayloadVersion,
	})
}

// DeleteCredentials removes the stored credentials for a connection
func (h *ConnectionHandler) DeleteCredentials(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if _, err := h.connections.GetByID(ctx, id); err != nil {
		return err
	}

	if err := h.credentials.DeleteByConnectionID(ctx, id); err != nil {
		return err
	}

	return NoContentResponse(c)
}

// SyncNowResponse reports the outcome of an on-demand synchronization
type SyncNowResponse struct {
	SyncRunID     uuid.UUID         `json:"sync_run_id"`
	Status        models.SyncStatus `json:"status"`
	NewBillsCount int               `json:"new_bills_count"`
	ErrorMessage  *string           `json:"error_message,omitempty"`
}

// SyncNow synchronizes a connection immediately. A concurrent sync of the
// same connection yields 409 instead of a second run.
func (h *ConnectionHandler) SyncNow(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	run, runErr := h.syncer.SyncConnection(ctx, id)
	if runErr != nil {
		if errors.Is(runErr, syncer.ErrSyncInProgress) {
			return httperror.NewHTTPError(http.StatusConflict, runErr.Error())
		}
		if run == nil {
			return runErr
		}
		// The run failed against the portal but the attempt itself is recorded
	}

	return SuccessResponse(c, SyncNowResponse{
		SyncRunID:     run.ID,
		Status:        run.Status,
		NewBillsCount: run.Stats.GetValue().NewBillsCount,
		ErrorMessage:  run.ErrorMessage,
	})
}

// ListRuns returns the synchronization history for a connection
func (h *ConnectionHandler) ListRuns(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	limit := defaultRunHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return BadRequest("limit must be a positive integer")
		}
		limit = parsed
	}

	if _, err := h.connections.GetByID(ctx, id); err != nil {
		return err
	}

	runs, err := h.runs.ListByConnection(ctx, id, limit)
	if err != nil {
		return err
	}

	return SuccessResponse(c, runs)
}
