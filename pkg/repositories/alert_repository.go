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

const alertsTable = "payable_alerts"

var alertStruct = database.NewStruct(new(models.Alert))

// AlertFilter narrows List results. Zero values are ignored.
type AlertFilter struct {
	ExecutiveID *uuid.UUID
	Type        *models.AlertType
	OnlyUnread  bool
	Limit       int
}

// AlertRepository handles database operations for payable alerts
type AlertRepository struct {
	*Repository
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db database.DB, logger ectologger.Logger) *AlertRepository {
	return &AlertRepository{
		Repository: NewRepository(db, logger),
	}
}

// CreateIfMissing inserts an alert unless one already exists for the same
// (bill, type) pair. The unique index makes concurrent refreshes converge on
// a single row. Reports whether this call created the alert.
func (r *AlertRepository) CreateIfMissing(ctx context.Context, alert *models.Alert) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "AlertRepository.CreateIfMissing")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return false, err
	}
	alert.TenantID = tenantID

	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(alertsTable).
		Cols("id", "tenant_id", "executive_id", "bill_id", "type", "title", "message",
			"due_date", "created_at", "updated_at").
		Values(alert.ID, alert.TenantID, alert.ExecutiveID, alert.BillID, alert.Type,
			alert.Title, alert.Message, alert.DueDate,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		OnConflictDoNothing()

	query, args := ib.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"bill_id":    alert.BillID,
			"alert_type": alert.Type,
		}).Error("failed to create alert")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create alert")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create alert")
	}
	if rows == 0 {
		return false, nil
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"alert_id":   alert.ID,
		"bill_id":    alert.BillID,
		"alert_type": alert.Type,
	}).Debugf("Created %s", alertsTable)
	return true, nil
}

// GetByID retrieves an alert by ID (tenant-scoped)
func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	ctx, span := tracing.StartSpan(ctx, "AlertRepository.GetByID")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := alertStruct.SelectFrom(alertsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("id", id))

	query, args := sb.Build()
	var alert models.Alert
	err = r.DB().GetContext(ctx, &alert, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "alert %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"alert_id": id,
		}).Error("failed to get alert by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get alert by ID")
	}

	return &alert, nil
}

// List retrieves alerts for the current tenant, newest first
func (r *AlertRepository) List(ctx context.Context, filter AlertFilter) ([]models.Alert, error) {
	ctx, span := tracing.StartSpan(ctx, "AlertRepository.List")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := alertStruct.SelectFrom(alertsTable)
	sb.Where(sb.Equal("tenant_id", tenantID))

	if filter.ExecutiveID != nil {
		sb.Where(sb.Equal("executive_id", *filter.ExecutiveID))
	}
	if filter.Type != nil {
		sb.Where(sb.Equal("type", *filter.Type))
	}
	if filter.OnlyUnread {
		sb.Where(sb.IsNull("acknowledged_at"))
	}

	sb.OrderBy("created_at DESC")
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}

	query, args := sb.Build()
	var alerts []models.Alert
	err = r.DB().SelectContext(ctx, &alerts, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list alerts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list alerts")
	}

	return alerts, nil
}

// Acknowledge stamps acknowledged_at on an alert. Acknowledging an already
// acknowledged alert keeps the original timestamp.
func (r *AlertRepository) Acknowledge(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "AlertRepository.Acknowledge")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(alertsTable).
		Set(
			ub.Assign("acknowledged_at", sqlbuilder.Raw("COALESCE(acknowledged_at, NOW())")),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"alert_id": id,
		}).Error("failed to acknowledge alert")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to acknowledge alert")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to acknowledge alert")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "alert %s does not exist", id)
	}

	return nil
}

// CountUnacknowledged counts unread alerts for an executive
func (r *AlertRepository) CountUnacknowledged(ctx context.Context, executiveID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "AlertRepository.CountUnacknowledged")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return 0, err
	}

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(alertsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("executive_id", executiveID),
		sb.IsNull("acknowledged_at"),
	)

	query, args := sb.Build()
	var count int
	err = r.DB().GetContext(ctx, &count, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"executive_id": executiveID,
		}).Error("failed to count unacknowledged alerts")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count alerts")
	}

	return count, nil
}
