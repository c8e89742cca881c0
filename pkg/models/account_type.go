package models

import (
	"time"

	"github.com/google/uuid"
)

// AccountType categorizes connections and bills (utilities, rent, cards, ...).
// Unique per (tenant, name).
type AccountType struct {
	ID          uuid.UUID `db:"id" json:"id"`
	TenantID    uuid.UUID `db:"tenant_id" json:"tenant_id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (AccountType) TableName() string {
	return "payable_account_types"
}
