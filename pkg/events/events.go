// Package events publishes domain events for downstream consumers: mobile
// push, reporting, auditing. Event emission is best effort; the engine never
// fails a sync over an unpublished event.
package events

import (
	"context"
	"time"

	"github.com/Ramsey-B/aster/pkg/models"
)

// Event types carried in the event_type field and Kafka headers
const (
	EventBillCreated  = "bill.created"
	EventBillUpdated  = "bill.updated"
	EventAlertCreated = "alert.created"
	EventSyncFinished = "sync.finished"
)

// BillEvent describes a bill lifecycle change
type BillEvent struct {
	EventType    string     `json:"event_type"`
	TenantID     string     `json:"tenant_id"`
	BillID       string     `json:"bill_id"`
	ConnectionID string     `json:"connection_id"`
	ExecutiveID  string     `json:"executive_id"`
	Status       string     `json:"status"`
	Amount       *float64   `json:"amount,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// AlertEvent describes a newly created alert
type AlertEvent struct {
	EventType   string     `json:"event_type"`
	TenantID    string     `json:"tenant_id"`
	AlertID     string     `json:"alert_id"`
	ExecutiveID string     `json:"executive_id"`
	BillID      *string    `json:"bill_id,omitempty"`
	AlertType   string     `json:"alert_type"`
	Title       string     `json:"title"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// SyncEvent describes a finished synchronization run
type SyncEvent struct {
	EventType    string    `json:"event_type"`
	TenantID     string    `json:"tenant_id"`
	SyncRunID    string    `json:"sync_run_id"`
	ConnectionID string    `json:"connection_id"`
	Status       string    `json:"status"`
	NewBills     int       `json:"new_bills"`
	Timestamp    time.Time `json:"timestamp"`
}

// Emitter publishes domain events
type Emitter interface {
	BillCreated(ctx context.Context, bill *models.Bill) error
	AlertCreated(ctx context.Context, alert *models.Alert) error
	SyncFinished(ctx context.Context, run *models.SyncRun) error
	Close() error
}

// NoopEmitter discards all events. Used in tests and when Kafka is disabled.
type NoopEmitter struct{}

func (NoopEmitter) BillCreated(context.Context, *models.Bill) error     { return nil }
func (NoopEmitter) AlertCreated(context.Context, *models.Alert) error   { return nil }
func (NoopEmitter) SyncFinished(context.Context, *models.SyncRun) error { return nil }
func (NoopEmitter) Close() error                                        { return nil }
