package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultDueSoonDays is the due-soon window applied when a tenant has no
// settings row.
const DefaultDueSoonDays = 7

// Settings holds per-tenant payables tunables.
type Settings struct {
	ID            uuid.UUID `db:"id" json:"id"`
	TenantID      uuid.UUID `db:"tenant_id" json:"tenant_id"`
	DueSoonDays   int       `db:"due_soon_days" json:"due_soon_days"`
	SyncEnabled   bool      `db:"sync_enabled" json:"sync_enabled"`
	AlertsEnabled bool      `db:"alerts_enabled" json:"alerts_enabled"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Settings) TableName() string {
	return "payable_settings"
}

// DefaultSettings returns the tunables applied to tenants without a row.
func DefaultSettings(tenantID uuid.UUID) *Settings {
	return &Settings{
		TenantID:      tenantID,
		DueSoonDays:   DefaultDueSoonDays,
		SyncEnabled:   true,
		AlertsEnabled: true,
	}
}
