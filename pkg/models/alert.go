package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertType classifies payable alerts
type AlertType string

const (
	AlertTypeNewBill AlertType = "new_bill"
	AlertTypeDueSoon AlertType = "due_soon"
	AlertTypeOverdue AlertType = "overdue"
)

// Alert is a notification derived from bill state. At most one alert exists
// per (bill, type); alerts are acknowledged, never deleted.
type Alert struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	TenantID       uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	ExecutiveID    uuid.UUID  `db:"executive_id" json:"executive_id"`
	BillID         *uuid.UUID `db:"bill_id" json:"bill_id,omitempty"`
	Type           AlertType  `db:"type" json:"type"`
	Title          string     `db:"title" json:"title"`
	Message        string     `db:"message" json:"message"`
	DueDate        *time.Time `db:"due_date" json:"due_date,omitempty"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Alert) TableName() string {
	return "payable_alerts"
}
