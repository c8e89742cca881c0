package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const billsTable = "payable_bills"

var billStruct = database.NewStruct(new(models.Bill))

// BillFilter narrows List results. Zero values are ignored.
type BillFilter struct {
	ConnectionID *uuid.UUID
	ExecutiveID  *uuid.UUID
	Status       *models.BillStatus
	DueFrom      *time.Time
	DueTo        *time.Time
	Limit        int
}

// BillCounts aggregates the executive summary counters derived from bills
type BillCounts struct {
	NewBills int `db:"new_bills"`
	DueSoon  int `db:"due_soon"`
	Overdue  int `db:"overdue"`
}

// AlertTarget is one (tenant, executive) pair that owns bills with due dates.
// Used by the global due-alert refresh, which runs across tenants.
type AlertTarget struct {
	TenantID    uuid.UUID `db:"tenant_id"`
	ExecutiveID uuid.UUID `db:"executive_id"`
}

// BillRepository handles database operations for payable bills
type BillRepository struct {
	*Repository
}

// NewBillRepository creates a new bill repository
func NewBillRepository(db database.DB, logger ectologger.Logger) *BillRepository {
	return &BillRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new bill
func (r *BillRepository) Create(ctx context.Context, bill *models.Bill) error {
	ctx, span := tracing.StartSpan(ctx, "BillRepository.Create")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	bill.TenantID = tenantID

	if bill.ID == uuid.Nil {
		bill.ID = uuid.New()
	}
	if bill.Currency == "" {
		bill.Currency = "BRL"
	}
	if bill.Status == "" {
		bill.Status = models.BillStatusNew
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(billsTable).
		Cols("id", "tenant_id", "connection_id", "executive_id", "account_type_id",
			"remote_id", "reference", "amount", "currency", "issue_date", "due_date",
			"status", "fetched_at", "seen_at", "paid_at",
			"attachment_ref", "attachment_filename", "attachment_mime_type", "attachment_size",
			"raw_data", "created_at", "updated_at").
		Values(bill.ID, bill.TenantID, bill.ConnectionID, bill.ExecutiveID, bill.AccountTypeID,
			bill.RemoteID, bill.Reference, bill.Amount, bill.Currency, bill.IssueDate, bill.DueDate,
			bill.Status, bill.FetchedAt, bill.SeenAt, bill.PaidAt,
			bill.AttachmentRef, bill.AttachmentFilename, bill.AttachmentMimeType, bill.AttachmentSize,
			bill.RawData, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&bill.CreatedAt, &bill.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": bill.ConnectionID,
		}).Error("failed to create bill")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create bill")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"bill_id":       bill.ID,
		"connection_id": bill.ConnectionID,
	}).Debugf("Created %s", billsTable)
	return nil
}

// GetByID retrieves a bill by ID (tenant-scoped)
func (r *BillRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	ctx, span := tracing.StartSpan(ctx, "BillRepository.GetByID")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := billStruct.SelectFrom(billsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("id", id))

	query, args := sb.Build()
	var bill models.Bill
	err = r.DB().GetContext(ctx, &bill, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "bill %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"bill_id": id,
		}).Error("failed to get bill by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get bill by ID")
	}

	return &bill, nil
}

// FindByRemoteID retrieves a bill by its portal identifier within a
// connection. Returns nil without error when no bill matches.
func (r *BillRepository) FindByRemoteID(ctx context.Context, connectionID uuid.UUID, remoteID string) (*models.Bill, error) {
	ctx, span := tracing.StartSpan(ctx, "BillRepository.FindByRemoteID")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := billStruct.SelectFrom(billsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("connection_id", connectionID),
		sb.Equal("remote_id", remoteID),
	)

	query, args := sb.Build()
	var bill models.Bill
	err = r.DB().GetContext(ctx, &bill, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": connectionID,
			"remote_id":     remoteID,
		}).Error("failed to find bill by remote ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find bill")
	}

	return &bill, nil
}

// FindByReferenceAndDueDate retrieves a bill by its document reference and
// due date within a connection. Returns nil without error when no bill
// matches. Only the calendar date of dueDate participates in the match.
func (r *BillRepository) FindByReferenceAndDueDate(ctx context.Context, connectionID uuid.UUID, reference string, dueDate time.Time) (*models.Bill, error) {
	ctx, span := tracing.StartSpan(ctx, "BillRepository.FindByReferenceAndDueDate")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := billStruct.SelectFrom(billsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("connection_id", connectionID),
		sb.Equal("reference", reference),
		sb.Equal("due_date::date", dueDate.Format("2006-01-02")),
	)

	query, args := sb.Build()
	var bill models.Bill
	err = r.DB().GetContext(ctx, &bill, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": connectionID,
			"reference":     reference,
		}).Error("failed to find bill by reference and due date")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find bill")
	}

	return &bill, nil
}

// List retrieves bills for the current tenant, newest due date first
func (r *BillRepository) List(ctx context.Context, filter BillFilter) ([]models.Bill, error) {
	ctx, span := tracing.StartSpan(ctx, "BillRepository.List")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := billStruct.SelectFrom(billsTable)
	sb.Where(sb.Equal("tenant_id", tenantID))

	if filter.ConnectionID != nil {
		sb.Where(sb.Equal("connection_id", *filter.ConnectionID))
	}
	if filter.ExecutiveID != nil {
		sb.Where(sb.Equal("executive_id", *filter.ExecutiveID))
	}
	if filter.Status != nil {
		sb.Where(sb.Equal("status", *filter.Status))
	}
	if filter.DueFrom != nil {
		sb.Where(sb.GreaterEqualThan("due_date", *filter.DueFrom))
	}
	if filter.DueTo != nil {
		sb.Where(sb.LessEqualThan("due_date", *filter.DueTo))
	}

	sb.OrderBy("due_date DESC NULLS LAST", "created_at DESC")
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}

	query, args := sb.Build()
	var bills []models.Bill
	err = r.DB().SelectContext(ctx, &bills, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list bills")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list bills")
	}

	return bills, nil
}

// Update rewrites the mutable fields of an existing bill
func (r *BillRepository) Update(ctx context.Context, bill *models.Bill) error {
	ctx, span := tracing.StartSpan(ctx, "BillRepository.Update")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(billsTable).
		Set(
			ub.Assign("remote_id", bill.RemoteID),
			ub.Assign("reference", bill.Reference),
			ub.Assign("amount", bill.Amount),
			ub.Assign("currency", bill.Currency),
			ub.Assign("issue_date", bill.IssueDate),
			ub.Assign("due_date", bill.DueDate),
			ub.Assign("status", bill.Status),
			ub.Assign("fetched_at", bill.FetchedAt),
			ub.Assign("paid_at", bill.PaidAt),
			ub.Assign("attachment_ref", bill.AttachmentRef),
			ub.Assign("attachment_filename", bill.AttachmentFilename),
			ub.Assign("attachment_mime_type", bill.AttachmentMimeType),
			ub.Assign("attachment_size", bill.AttachmentSize),
			ub.Assign("raw_data", bill.RawData),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", bill.ID))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&bill.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "bill %s does not exist", bill.ID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"bill_id": bill.ID,
		}).Error("failed to update bill")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update bill")
	}

	return nil
}

// MarkSeen stamps seen_at on the given bills and promotes new bills to open.
// Scoped by tenant only; any bill in the tenant can be marked. Bills already
// seen keep their original timestamp, so the call is idempotent.
func (r *BillRepository) MarkSeen(ctx context.Context, billIDs []uuid.UUID) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "BillRepository.MarkSeen")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return 0, err
	}
	if len(billIDs) == 0 {
		return 0, nil
	}

	ids := make([]any, len(billIDs))
	for i, id := range billIDs {
		ids[i] = id
	}

	ub := database.NewUpdateBuilder()
	ub.Update(billsTable).
		Set(
			ub.Assign("seen_at", sqlbuilder.Raw("COALESCE(seen_at, NOW())")),
			ub.Assign("status", sqlbuilder.Raw("CASE WHEN status = 'new' THEN 'open' ELSE status END")),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("tenant_id", tenantID),
			ub.In("id", ids...),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"bill_count": len(billIDs),
		}).Error("failed to mark bills as seen")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark bills as seen")
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// TransitionToOverdue moves a bill into the overdue status. The transition is
// one way; bills already overdue, paid or canceled are left untouched.
// Reports whether this call performed the transition.
func (r *BillRepository) TransitionToOverdue(ctx context.Context, billID uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "BillRepository.TransitionToOverdue")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return false, err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(billsTable).
		Set(
			ub.Assign("status", models.BillStatusOverdue),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("tenant_id", tenantID),
			ub.Equal("id", billID),
			ub.In("status", models.BillStatusNew, models.BillStatusOpen),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"bill_id": billID,
		}).Error("failed to transition bill to overdue")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update bill status")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ListDueForExecutive returns every bill of an executive that carries a due
// date and is still payable: not paid, not canceled.
func (r *BillRepository) ListDueForExecutive(ctx context.Context, executiveID uuid.UUID) ([]models.Bill, error) {
	ctx, span := tracing.StartSpan(ctx, "BillRepository.ListDueForExecutive")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := billStruct.SelectFrom(billsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("executive_id", executiveID),
		sb.IsNotNull("due_date"),
		sb.IsNull("paid_at"),
		sb.NotEqual("status", models.BillStatusCanceled),
	)
	sb.OrderBy("due_date")

	query, args := sb.Build()
	var bills []models.Bill
	err = r.DB().SelectContext(ctx, &bills, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"executive_id": executiveID,
		}).Error("failed to list due bills for executive")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list due bills")
	}

	return bills, nil
}

// CountSummary computes the executive summary counters. Day boundaries are
// taken from now in its own location.
func (r *BillRepository) CountSummary(ctx context.Context, executiveID uuid.UUID, dueSoonDays int, now time.Time) (*BillCounts, error) {
	ctx, span := tracing.StartSpan(ctx, "BillRepository.CountSummary")
	defer span.End()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dueSoonEnd := startOfToday.AddDate(0, 0, dueSoonDays)

	sb := database.NewSelectBuilder()
	sb.Select(
		sb.As("COUNT(*) FILTER (WHERE seen_at IS NULL AND status IN ('new', 'open'))", "new_bills"),
		sb.As("COUNT(*) FILTER (WHERE due_date >= "+sb.Var(startOfToday)+
			" AND due_date <= "+sb.Var(dueSoonEnd)+
			" AND paid_at IS NULL AND status <> 'canceled')", "due_soon"),
		sb.As("COUNT(*) FILTER (WHERE due_date < "+sb.Var(startOfToday)+
			" AND paid_at IS NULL AND status <> 'canceled')", "overdue"),
	)
	sb.From(billsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("executive_id", executiveID),
	)

	query, args := sb.Build()
	var counts BillCounts
	err = r.DB().GetContext(ctx, &counts, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"executive_id": executiveID,
		}).Error("failed to count bill summary")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to compute summary")
	}

	return &counts, nil
}

// ListAlertTargets returns the distinct (tenant, executive) pairs that own
// payable bills with due dates. Used by the global due-alert refresh only;
// runs across tenants.
func (r *BillRepository) ListAlertTargets(ctx context.Context) ([]AlertTarget, error) {
	ctx, span := tracing.StartSpan(ctx, "BillRepository.ListAlertTargets")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("DISTINCT tenant_id", "executive_id")
	sb.From(billsTable)
	sb.Where(
		sb.IsNotNull("due_date"),
		sb.IsNull("paid_at"),
		sb.NotEqual("status", models.BillStatusCanceled),
	)

	query, args := sb.Build()
	var targets []AlertTarget
	err := r.DB().SelectContext(ctx, &targets, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list alert targets")
		return nil, err
	}

	return targets, nil
}
