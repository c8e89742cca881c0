package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const connectionsTable = "payable_connections"

var connectionStruct = database.NewStruct(new(models.Connection))

// ConnectionRepository handles database operations for biller connections
type ConnectionRepository struct {
	*Repository
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db database.DB, logger ectologger.Logger) *ConnectionRepository {
	return &ConnectionRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new connection
func (r *ConnectionRepository) Create(ctx context.Context, connection *models.Connection) error {
	ctx, span := tracing.StartSpan(ctx, "ConnectionRepository.Create")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	connection.TenantID = tenantID

	if connection.ID == uuid.Nil {
		connection.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(connectionsTable).
		Cols("id", "tenant_id", "executive_id", "account_type_id", "name", "portal_url", "login_url",
			"mode", "recipe", "is_active", "created_at", "updated_at").
		Values(connection.ID, connection.TenantID, connection.ExecutiveID, connection.AccountTypeID,
			connection.Name, connection.PortalURL, connection.LoginURL, connection.Mode,
			connection.Recipe, connection.IsActive,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&connection.CreatedAt, &connection.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_name": connection.Name,
		}).Error("failed to create connection")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create connection")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"connection_id": connection.ID,
	}).Debugf("Created %s", connectionsTable)
	return nil
}

// GetByID retrieves a connection by ID (tenant-scoped)
func (r *ConnectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectionRepository.GetByID")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := connectionStruct.SelectFrom(connectionsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("id", id))

	query, args := sb.Build()
	var connection models.Connection
	err = r.DB().GetContext(ctx, &connection, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "connection %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": id,
		}).Error("failed to get connection by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get connection by ID")
	}

	return &connection, nil
}

// List retrieves all connections for the current tenant
func (r *ConnectionRepository) List(ctx context.Context) ([]models.Connection, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectionRepository.List")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := connectionStruct.SelectFrom(connectionsTable)
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("name")

	query, args := sb.Build()
	var connections []models.Connection
	err = r.DB().SelectContext(ctx, &connections, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list connections")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list connections")
	}

	return connections, nil
}

// Update updates an existing connection
func (r *ConnectionRepository) Update(ctx context.Context, connection *models.Connection) error {
	ctx, span := tracing.StartSpan(ctx, "ConnectionRepository.Update")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(connectionsTable).
		Set(
			ub.Assign("name", connection.Name),
			ub.Assign("executive_id", connection.ExecutiveID),
			ub.Assign("account_type_id", connection.AccountTypeID),
			ub.Assign("portal_url", connection.PortalURL),
			ub.Assign("login_url", connection.LoginURL),
			ub.Assign("mode", connection.Mode),
			ub.Assign("recipe", connection.Recipe),
			ub.Assign("is_active", connection.IsActive),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", connection.ID))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&connection.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "connection %s does not exist", connection.ID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": connection.ID,
		}).Error("failed to update connection")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update connection")
	}

	return nil
}

// SetLastSyncedAt stamps the connection after a successful synchronization
func (r *ConnectionRepository) SetLastSyncedAt(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "ConnectionRepository.SetLastSyncedAt")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(connectionsTable).
		Set(
			ub.Assign("last_synced_at", sqlbuilder.Raw("NOW()")),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", id))

	query, args := ub.Build()
	_, err = r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": id,
		}).Error("failed to stamp last synced at")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update connection")
	}

	return nil
}

// Delete deletes a connection by ID
func (r *ConnectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "ConnectionRepository.Delete")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(connectionsTable).
		Where(db.Equal("tenant_id", tenantID), db.Equal("id", id))

	query, args := db.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": id,
		}).Error("failed to delete connection")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete connection")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete connection")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "connection %s does not exist", id)
	}

	return nil
}

// ListActiveAutomated returns every active automated connection across all
// tenants. Used by the scheduler only; tenant scoping happens per connection
// when the sync runs.
func (r *ConnectionRepository) ListActiveAutomated(ctx context.Context) ([]models.Connection, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectionRepository.ListActiveAutomated")
	defer span.End()

	sb := connectionStruct.SelectFrom(connectionsTable)
	sb.Where(
		sb.Equal("is_active", true),
		sb.Equal("mode", models.ModeAutomated),
	)
	sb.OrderBy("tenant_id", "name")

	query, args := sb.Build()
	var connections []models.Connection
	err := r.DB().SelectContext(ctx, &connections, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list active automated connections")
		return nil, err
	}

	return connections, nil
}
