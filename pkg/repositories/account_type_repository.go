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

const accountTypesTable = "payable_account_types"

var accountTypeStruct = database.NewStruct(new(models.AccountType))

// AccountTypeRepository handles database operations for account types
type AccountTypeRepository struct {
	*Repository
}

// NewAccountTypeRepository creates a new account type repository
func NewAccountTypeRepository(db database.DB, logger ectologger.Logger) *AccountTypeRepository {
	return &AccountTypeRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new account type. Names are unique per tenant.
func (r *AccountTypeRepository) Create(ctx context.Context, accountType *models.AccountType) error {
	ctx, span := tracing.StartSpan(ctx, "AccountTypeRepository.Create")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	accountType.TenantID = tenantID

	if accountType.ID == uuid.Nil {
		accountType.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(accountTypesTable).
		Cols("id", "tenant_id", "name", "description", "created_at", "updated_at").
		Values(accountType.ID, accountType.TenantID, accountType.Name, accountType.Description,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&accountType.CreatedAt, &accountType.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"account_type_name": accountType.Name,
		}).Error("failed to create account type")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create account type")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"account_type_id": accountType.ID,
	}).Debugf("Created %s", accountTypesTable)
	return nil
}

// GetByID retrieves an account type by ID (tenant-scoped)
func (r *AccountTypeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AccountType, error) {
	ctx, span := tracing.StartSpan(ctx, "AccountTypeRepository.GetByID")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := accountTypeStruct.SelectFrom(accountTypesTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("id", id))

	query, args := sb.Build()
	var accountType models.AccountType
	err = r.DB().GetContext(ctx, &accountType, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "account type %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"account_type_id": id,
		}).Error("failed to get account type by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get account type by ID")
	}

	return &accountType, nil
}

// List retrieves all account types for the current tenant
func (r *AccountTypeRepository) List(ctx context.Context) ([]models.AccountType, error) {
	ctx, span := tracing.StartSpan(ctx, "AccountTypeRepository.List")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := accountTypeStruct.SelectFrom(accountTypesTable)
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("name")

	query, args := sb.Build()
	var accountTypes []models.AccountType
	err = r.DB().SelectContext(ctx, &accountTypes, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list account types")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list account types")
	}

	return accountTypes, nil
}

// Update updates an existing account type
func (r *AccountTypeRepository) Update(ctx context.Context, accountType *models.AccountType) error {
	ctx, span := tracing.StartSpan(ctx, "AccountTypeRepository.Update")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(accountTypesTable).
		Set(
			ub.Assign("name", accountType.Name),
			ub.Assign("description", accountType.Description),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", accountType.ID))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&accountType.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "account type %s does not exist", accountType.ID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"account_type_id": accountType.ID,
		}).Error("failed to update account type")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update account type")
	}

	return nil
}

// Delete deletes an account type by ID
func (r *AccountTypeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "AccountTypeRepository.Delete")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(accountTypesTable).
		Where(db.Equal("tenant_id", tenantID), db.Equal("id", id))

	query, args := db.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"account_type_id": id,
		}).Error("failed to delete account type")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete account type")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete account type")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "account type %s does not exist", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"account_type_id": id,
	}).Debugf("Deleted %s", accountTypesTable)
	return nil
}
