package connector

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
)

// ExtractedRow is one bill row pulled from a portal page, parsed but not yet
// reconciled against stored bills. Nil fields mean the portal did not render
// the value or it failed to parse.
type ExtractedRow struct {
	RemoteID  *string
	Reference *string
	Amount    *float64
	IssueDate *time.Time
	DueDate   *time.Time

	// Raw holds the unparsed cell texts keyed by field name
	Raw map[string]string
}

// NewBillFromRow builds a fresh bill from an extracted row
func NewBillFromRow(connection *models.Connection, row ExtractedRow, fetchedAt time.Time) *models.Bill {
	return &models.Bill{
		ID:            uuid.New(),
		TenantID:      connection.TenantID,
		ConnectionID:  connection.ID,
		ExecutiveID:   connection.ExecutiveID,
		AccountTypeID: connection.AccountTypeID,
		RemoteID:      row.RemoteID,
		Reference:     row.Reference,
		Amount:        row.Amount,
		Currency:      "BRL",
		IssueDate:     row.IssueDate,
		DueDate:       row.DueDate,
		Status:        models.BillStatusNew,
		FetchedAt:     &fetchedAt,
		RawData:       rawData(row),
	}
}

// MergeRow folds an extracted row into an existing bill. Extracted values win
// over stored ones, stored values survive extraction gaps, the raw snapshot
// is always replaced and fetched_at always advances. Status, seen and paid
// markers belong to the user and are never touched.
func MergeRow(bill *models.Bill, row ExtractedRow, fetchedAt time.Time) {
	if row.RemoteID != nil {
		bill.RemoteID = row.RemoteID
	}
	if row.Reference != nil {
		bill.Reference = row.Reference
	}
	if row.Amount != nil {
		bill.Amount = row.Amount
	}
	if row.IssueDate != nil {
		bill.IssueDate = row.IssueDate
	}
	if row.DueDate != nil {
		bill.DueDate = row.DueDate
	}

	bill.RawData = rawData(row)
	bill.FetchedAt = &fetchedAt
}

func rawData(row ExtractedRow) database.JSONB[map[string]any] {
	data := make(map[string]any, len(row.Raw))
	for k, v := range row.Raw {
		data[k] = v
	}
	return database.JSONB[map[string]any]{Data: data}
}
