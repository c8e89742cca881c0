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

const credentialsTable = "payable_credentials"

var credentialStruct = database.NewStruct(new(models.Credential))

// CredentialRepository handles database operations for encrypted portal
// credentials. Only ciphertext ever touches this repository.
type CredentialRepository struct {
	*Repository
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db database.DB, logger ectologger.Logger) *CredentialRepository {
	return &CredentialRepository{
		Repository: NewRepository(db, logger),
	}
}

// Upsert stores the encrypted payload for a connection. The payload version
// starts at 1 and increments on every replacement.
func (r *CredentialRepository) Upsert(ctx context.Context, connectionID uuid.UUID, encryptedPayload string) (*models.Credential, error) {
	ctx, span := tracing.StartSpan(ctx, "CredentialRepository.Upsert")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	credential := models.Credential{
		ID:               uuid.New(),
		TenantID:         tenantID,
		ConnectionID:     connectionID,
		EncryptedPayload: encryptedPayload,
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(credentialsTable).
		Cols("id", "tenant_id", "connection_id", "encrypted_payload", "payload_version", "created_at", "updated_at").
		Values(credential.ID, credential.TenantID, credential.ConnectionID, credential.EncryptedPayload, 1,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"))

	ub := ib.OnConflict("connection_id")
	ub.Set(
		ub.Assign("encrypted_payload", database.Excluded("encrypted_payload")),
		ub.Assign("payload_version", sqlbuilder.Raw(credentialsTable+".payload_version + 1")),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ib.SQL("RETURNING id, payload_version, created_at, updated_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).
		Scan(&credential.ID, &credential.PayloadVersion, &credential.CreatedAt, &credential.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": connectionID,
		}).Error("failed to upsert credential")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to store credentials")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"connection_id":   connectionID,
		"payload_version": credential.PayloadVersion,
	}).Info("Stored credentials for connection")
	return &credential, nil
}

// FindByConnectionID retrieves the credential for a connection. Returns nil
// without error when no credential has been stored yet.
func (r *CredentialRepository) FindByConnectionID(ctx context.Context, connectionID uuid.UUID) (*models.Credential, error) {
	ctx, span := tracing.StartSpan(ctx, "CredentialRepository.FindByConnectionID")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := credentialStruct.SelectFrom(credentialsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("connection_id", connectionID))

	query, args := sb.Build()
	var credential models.Credential
	err = r.DB().GetContext(ctx, &credential, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": connectionID,
		}).Error("failed to get credential by connection ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load credentials")
	}

	return &credential, nil
}

// DeleteByConnectionID removes the stored credential for a connection
func (r *CredentialRepository) DeleteByConnectionID(ctx context.Context, connectionID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "CredentialRepository.DeleteByConnectionID")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(credentialsTable).
		Where(db.Equal("tenant_id", tenantID), db.Equal("connection_id", connectionID))

	query, args := db.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": connectionID,
		}).Error("failed to delete credential")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete credentials")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete credentials")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "no credentials stored for connection %s", connectionID)
	}

	return nil
}
