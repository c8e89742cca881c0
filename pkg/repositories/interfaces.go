package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/models"
)

// AccountTypeRepo defines the interface for account type repository operations
type AccountTypeRepo interface {
	Create(ctx context.Context, accountType *models.AccountType) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AccountType, error)
	List(ctx context.Context) ([]models.AccountType, error)
	Update(ctx context.Context, accountType *models.AccountType) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ConnectionRepo defines the interface for connection repository operations
type ConnectionRepo interface {
	Create(ctx context.Context, connection *models.Connection) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Connection, error)
	List(ctx context.Context) ([]models.Connection, error)
	Update(ctx context.Context, connection *models.Connection) error
	SetLastSyncedAt(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListActiveAutomated(ctx context.Context) ([]models.Connection, error)
}

// CredentialRepo defines the interface for credential repository operations
type CredentialRepo interface {
	Upsert(ctx context.Context, connectionID uuid.UUID, encryptedPayload string) (*models.Credential, error)
	FindByConnectionID(ctx context.Context, connectionID uuid.UUID) (*models.Credential, error)
	DeleteByConnectionID(ctx context.Context, connectionID uuid.UUID) error
}

// BillRepo defines the interface for bill repository operations
type BillRepo interface {
	Create(ctx context.Context, bill *models.Bill) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Bill, error)
	FindByRemoteID(ctx context.Context, connectionID uuid.UUID, remoteID string) (*models.Bill, error)
	FindByReferenceAndDueDate(ctx context.Context, connectionID uuid.UUID, reference string, dueDate time.Time) (*models.Bill, error)
	List(ctx context.Context, filter BillFilter) ([]models.Bill, error)
	Update(ctx context.Context, bill *models.Bill) error
	MarkSeen(ctx context.Context, billIDs []uuid.UUID) (int64, error)
	TransitionToOverdue(ctx context.Context, billID uuid.UUID) (bool, error)
	ListDueForExecutive(ctx context.Context, executiveID uuid.UUID) ([]models.Bill, error)
	CountSummary(ctx context.Context, executiveID uuid.UUID, dueSoonDays int, now time.Time) (*BillCounts, error)
	ListAlertTargets(ctx context.Context) ([]AlertTarget, error)
}

// AlertRepo defines the interface for alert repository operations
type AlertRepo interface {
	CreateIfMissing(ctx context.Context, alert *models.Alert) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	List(ctx context.Context, filter AlertFilter) ([]models.Alert, error)
	Acknowledge(ctx context.Context, id uuid.UUID) error
	CountUnacknowledged(ctx context.Context, executiveID uuid.UUID) (int, error)
}

// SyncRunRepo defines the interface for sync run repository operations
type SyncRunRepo interface {
	Start(ctx context.Context, connectionID uuid.UUID) (*models.SyncRun, error)
	MarkSuccess(ctx context.Context, id uuid.UUID, stats models.SyncRunStats) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SyncRun, error)
	ListByConnection(ctx context.Context, connectionID uuid.UUID, limit int) ([]models.SyncRun, error)
}

// SettingsRepo defines the interface for settings repository operations
type SettingsRepo interface {
	GetOrDefault(ctx context.Context) (*models.Settings, error)
	Upsert(ctx context.Context, settings *models.Settings) error
}
