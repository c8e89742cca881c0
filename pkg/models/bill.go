package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/database"
)

// BillStatus represents the lifecycle state of a payable bill
type BillStatus string

const (
	BillStatusNew      BillStatus = "new"
	BillStatusOpen     BillStatus = "open"
	BillStatusPaid     BillStatus = "paid"
	BillStatusOverdue  BillStatus = "overdue"
	BillStatusCanceled BillStatus = "canceled"
)

// Bill is one payable obligation extracted from a biller portal or entered
// manually. At most one bill exists per (connection, remote_id) when the
// source exposes a stable identifier.
type Bill struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	TenantID      uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	ConnectionID  uuid.UUID  `db:"connection_id" json:"connection_id"`
	ExecutiveID   uuid.UUID  `db:"executive_id" json:"executive_id"`
	AccountTypeID uuid.UUID  `db:"account_type_id" json:"account_type_id"`
	RemoteID      *string    `db:"remote_id" json:"remote_id,omitempty"`
	Reference     *string    `db:"reference" json:"reference,omitempty"`
	Amount        *float64   `db:"amount" json:"amount,omitempty"`
	Currency      string     `db:"currency" json:"currency"`
	IssueDate     *time.Time `db:"issue_date" json:"issue_date,omitempty"`
	DueDate       *time.Time `db:"due_date" json:"due_date,omitempty"`
	Status        BillStatus `db:"status" json:"status"`
	FetchedAt     *time.Time `db:"fetched_at" json:"fetched_at,omitempty"`
	SeenAt        *time.Time `db:"seen_at" json:"seen_at,omitempty"`
	PaidAt        *time.Time `db:"paid_at" json:"paid_at,omitempty"`

	AttachmentRef      *string `db:"attachment_ref" json:"attachment_ref,omitempty"`
	AttachmentFilename *string `db:"attachment_filename" json:"attachment_filename,omitempty"`
	AttachmentMimeType *string `db:"attachment_mime_type" json:"attachment_mime_type,omitempty"`
	AttachmentSize     *int64  `db:"attachment_size" json:"attachment_size,omitempty"`

	RawData database.JSONB[map[string]any] `db:"raw_data" json:"raw_data,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Bill) TableName() string {
	return "payable_bills"
}

// HasAttachment reports whether a blob is linked to the bill.
func (b *Bill) HasAttachment() bool {
	return b.AttachmentRef != nil && *b.AttachmentRef != ""
}
