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

const settingsTable = "payable_settings"

var settingsStruct = database.NewStruct(new(models.Settings))

// SettingsRepository handles database operations for per-tenant settings
type SettingsRepository struct {
	*Repository
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db database.DB, logger ectologger.Logger) *SettingsRepository {
	return &SettingsRepository{
		Repository: NewRepository(db, logger),
	}
}

// GetOrDefault retrieves the tenant settings, falling back to defaults when
// no row exists. The fallback is not persisted.
func (r *SettingsRepository) GetOrDefault(ctx context.Context) (*models.Settings, error) {
	ctx, span := tracing.StartSpan(ctx, "SettingsRepository.GetOrDefault")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := settingsStruct.SelectFrom(settingsTable)
	sb.Where(sb.Equal("tenant_id", tenantID))

	query, args := sb.Build()
	var settings models.Settings
	err = r.DB().GetContext(ctx, &settings, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultSettings(tenantID), nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to get settings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get settings")
	}

	return &settings, nil
}

// Upsert stores the tenant settings
func (r *SettingsRepository) Upsert(ctx context.Context, settings *models.Settings) error {
	ctx, span := tracing.StartSpan(ctx, "SettingsRepository.Upsert")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	settings.TenantID = tenantID

	if settings.ID == uuid.Nil {
		settings.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(settingsTable).
		Cols("id", "tenant_id", "due_soon_days", "sync_enabled", "alerts_enabled", "created_at", "updated_at").
		Values(settings.ID, settings.TenantID, settings.DueSoonDays, settings.SyncEnabled, settings.AlertsEnabled,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"))

	ub := ib.OnConflict("tenant_id")
	ub.Set(
		ub.Assign("due_soon_days", database.Excluded("due_soon_days")),
		ub.Assign("sync_enabled", database.Excluded("sync_enabled")),
		ub.Assign("alerts_enabled", database.Excluded("alerts_enabled")),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ib.SQL("RETURNING id, created_at, updated_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).
		Scan(&settings.ID, &settings.CreatedAt, &settings.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to upsert settings")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to store settings")
	}

	return nil
}
