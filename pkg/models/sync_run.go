package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/database"
)

// SyncStatus represents the status of a synchronization run
type SyncStatus string

const (
	SyncStatusRunning SyncStatus = "running"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncRunStats carries per-run counters
type SyncRunStats struct {
	NewBillsCount int `json:"new_bills_count"`
}

// SyncRun is the append-only audit trail of one synchronization attempt for
// one connection. The terminal state is written exactly once.
type SyncRun struct {
	ID           uuid.UUID                    `db:"id" json:"id"`
	TenantID     uuid.UUID                    `db:"tenant_id" json:"tenant_id"`
	ConnectionID uuid.UUID                    `db:"connection_id" json:"connection_id"`
	Status       SyncStatus                   `db:"status" json:"status"`
	StartedAt    time.Time                    `db:"started_at" json:"started_at"`
	FinishedAt   *time.Time                   `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string                      `db:"error_message" json:"error_message,omitempty"`
	Stats        database.JSONB[SyncRunStats] `db:"stats" json:"stats"`
	CreatedAt    time.Time                    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time                    `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (SyncRun) TableName() string {
	return "payable_sync_runs"
}
