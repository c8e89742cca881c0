package blob

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const attachmentsTable = "payable_attachments"

// PostgresStore keeps attachment payloads in a bytea column. Portal
// attachments are small documents, so the database is a fine home for them
// and keeps the deployment to a single datastore.
type PostgresStore struct {
	db     database.DB
	logger ectologger.Logger
}

// NewPostgresStore creates a blob store backed by the application database
func NewPostgresStore(db database.DB, logger ectologger.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Upload stores the payload and returns its reference
func (s *PostgresStore) Upload(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "PostgresStore.Upload")
	defer span.End()

	ref := uuid.New().String()

	ib := database.NewInsertBuilder()
	ib.InsertInto(attachmentsTable).
		Cols("id", "filename", "content_type", "size", "data", "created_at").
		Values(ref, filename, contentType, int64(len(data)), data, sqlbuilder.Raw("NOW()"))

	query, args := ib.Build()
	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"filename": filename,
			"size":     len(data),
		}).Error("failed to upload attachment")
		return "", err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"blob_ref": ref,
		"filename": filename,
		"size":     len(data),
	}).Debug("Uploaded attachment")
	return ref, nil
}

// Download retrieves a stored payload by reference
func (s *PostgresStore) Download(ctx context.Context, ref string) (*Object, error) {
	ctx, span := tracing.StartSpan(ctx, "PostgresStore.Download")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("filename", "content_type", "size", "data")
	sb.From(attachmentsTable)
	sb.Where(sb.Equal("id", ref))

	query, args := sb.Build()
	obj := Object{Ref: ref}
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&obj.Filename, &obj.ContentType, &obj.Size, &obj.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"blob_ref": ref,
		}).Error("failed to download attachment")
		return nil, err
	}

	return &obj, nil
}

// Delete removes a stored payload
func (s *PostgresStore) Delete(ctx context.Context, ref string) error {
	ctx, span := tracing.StartSpan(ctx, "PostgresStore.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(attachmentsTable).Where(db.Equal("id", ref))

	query, args := db.Build()
	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"blob_ref": ref,
		}).Error("failed to delete attachment")
		return err
	}

	return nil
}
