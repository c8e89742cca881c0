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

const syncRunsTable = "payable_sync_runs"

var syncRunStruct = database.NewStruct(new(models.SyncRun))

// SyncRunRepository handles database operations for synchronization runs
type SyncRunRepository struct {
	*Repository
}

// NewSyncRunRepository creates a new sync run repository
func NewSyncRunRepository(db database.DB, logger ectologger.Logger) *SyncRunRepository {
	return &SyncRunRepository{
		Repository: NewRepository(db, logger),
	}
}

// Start records the beginning of a synchronization attempt
func (r *SyncRunRepository) Start(ctx context.Context, connectionID uuid.UUID) (*models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.Start")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	run := models.SyncRun{
		ID:           uuid.New(),
		TenantID:     tenantID,
		ConnectionID: connectionID,
		Status:       models.SyncStatusRunning,
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(syncRunsTable).
		Cols("id", "tenant_id", "connection_id", "status", "started_at", "created_at", "updated_at").
		Values(run.ID, run.TenantID, run.ConnectionID, run.Status,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("started_at", "created_at", "updated_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&run.StartedAt, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": connectionID,
		}).Error("failed to start sync run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start sync run")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"sync_run_id":   run.ID,
		"connection_id": connectionID,
	}).Info("Started sync run")
	return &run, nil
}

// MarkSuccess moves a running sync run to its success terminal state. The
// status guard keeps the terminal state from being written twice.
func (r *SyncRunRepository) MarkSuccess(ctx context.Context, id uuid.UUID, stats models.SyncRunStats) error {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.MarkSuccess")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(syncRunsTable).
		Set(
			ub.Assign("status", models.SyncStatusSuccess),
			ub.Assign("stats", database.JSONB[models.SyncRunStats]{Data: stats}),
			ub.Assign("finished_at", sqlbuilder.Raw("NOW()")),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("tenant_id", tenantID),
			ub.Equal("id", id),
			ub.Equal("status", models.SyncStatusRunning),
		)

	return r.finish(ctx, ub, id)
}

// MarkFailed moves a running sync run to its failed terminal state
func (r *SyncRunRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.MarkFailed")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(syncRunsTable).
		Set(
			ub.Assign("status", models.SyncStatusFailed),
			ub.Assign("error_message", errorMessage),
			ub.Assign("finished_at", sqlbuilder.Raw("NOW()")),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("tenant_id", tenantID),
			ub.Equal("id", id),
			ub.Equal("status", models.SyncStatusRunning),
		)

	return r.finish(ctx, ub, id)
}

func (r *SyncRunRepository) finish(ctx context.Context, ub *database.UpdateBuilder, id uuid.UUID) error {
	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"sync_run_id": id,
		}).Error("failed to finish sync run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish sync run")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish sync run")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "sync run %s is not running", id)
	}

	return nil
}

// GetByID retrieves a sync run by ID (tenant-scoped)
func (r *SyncRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.GetByID")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := syncRunStruct.SelectFrom(syncRunsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("id", id))

	query, args := sb.Build()
	var run models.SyncRun
	err = r.DB().GetContext(ctx, &run, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "sync run %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"sync_run_id": id,
		}).Error("failed to get sync run by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sync run by ID")
	}

	return &run, nil
}

// ListByConnection retrieves the most recent sync runs for a connection
func (r *SyncRunRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID, limit int) ([]models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.ListByConnection")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := syncRunStruct.SelectFrom(syncRunsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("connection_id", connectionID))
	sb.OrderBy("started_at DESC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var runs []models.SyncRun
	err = r.DB().SelectContext(ctx, &runs, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": connectionID,
		}).Error("failed to list sync runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list sync runs")
	}

	return runs, nil
}
