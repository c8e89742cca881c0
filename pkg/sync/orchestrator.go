// Package sync coordinates synchronization runs: locking, the run state
// machine, alert refresh and event emission around a connector run.
package sync

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/connector"
	appctx "github.com/Ramsey-B/aster/pkg/context"
	"github.com/Ramsey-B/aster/pkg/events"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/redis"
	"github.com/Ramsey-B/aster/pkg/repositories"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const (
	// LockKeyPrefix is the prefix for per-connection sync locks
	LockKeyPrefix = "sync:connection:"

	// DefaultLockTTL bounds how long one connection sync may hold its lock
	DefaultLockTTL = 10 * time.Minute
)

// ErrSyncInProgress is returned when a sync is requested for a connection
// that is already being synchronized
var ErrSyncInProgress = errors.New("synchronization already in progress for this connection")

// PortalRunner executes the extraction for one connection
type PortalRunner interface {
	Run(ctx context.Context, connection *models.Connection) (*connector.Result, error)
}

// AlertNotifier creates alerts around synchronization results
type AlertNotifier interface {
	NotifyBillFound(ctx context.Context, connection *models.Connection, bill *models.Bill) error
	RefreshForExecutive(ctx context.Context, executiveID uuid.UUID) (int, error)
	RunGlobalRefresh(ctx context.Context) error
}

// Locker serializes syncs per connection across all service instances
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Orchestrator runs the synchronization state machine for connections
type Orchestrator struct {
	connections repositories.ConnectionRepo
	runs        repositories.SyncRunRepo
	settings    repositories.SettingsRepo
	runner      PortalRunner
	alerts      AlertNotifier
	locker      Locker
	emitter     events.Emitter
	logger      ectologger.Logger
	lockTTL     time.Duration
}

// NewOrchestrator creates a sync orchestrator
func NewOrchestrator(
	connections repositories.ConnectionRepo,
	runs repositories.SyncRunRepo,
	settings repositories.SettingsRepo,
	runner PortalRunner,
	alerts AlertNotifier,
	locker Locker,
	emitter events.Emitter,
	logger ectologger.Logger,
) *Orchestrator {
	return &Orchestrator{
		connections: connections,
		runs:        runs,
		settings:    settings,
		runner:      runner,
		alerts:      alerts,
		locker:      locker,
		emitter:     emitter,
		logger:      logger,
		lockTTL:     DefaultLockTTL,
	}
}

// WithLockTTL overrides the per-connection lock TTL
func (o *Orchestrator) WithLockTTL(ttl time.Duration) *Orchestrator {
	if ttl > 0 {
		o.lockTTL = ttl
	}
	return o
}

// SyncConnection synchronizes one connection under its distributed lock. A
// concurrent sync of the same connection yields ErrSyncInProgress instead of
// a second run. The returned sync run carries the terminal state.
func (o *Orchestrator) SyncConnection(ctx context.Context, connectionID uuid.UUID) (*models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncOrchestrator.SyncConnection")
	defer span.End()

	connection, err := o.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	if !connection.IsActive {
		return nil, repositories.BadRequest("connection is not active")
	}

	var run *models.SyncRun
	lockErr := o.locker.WithLock(ctx, LockKeyPrefix+connectionID.String(), o.lockTTL, func() error {
		var execErr error
		run, execErr = o.execute(ctx, connection)
		return execErr
	})

	if errors.Is(lockErr, redis.ErrLockNotAcquired) {
		return nil, ErrSyncInProgress
	}

	return run, lockErr
}

// execute runs the RUNNING to SUCCESS/FAILED state machine for one
// connection. The run row is created before the portal is touched and always
// reaches a terminal state, even when the connector fails.
func (o *Orchestrator) execute(ctx context.Context, connection *models.Connection) (*models.SyncRun, error) {
	start := time.Now()

	run, err := o.runs.Start(ctx, connection.ID)
	if err != nil {
		return nil, err
	}

	result, runErr := o.runner.Run(ctx, connection)
	if runErr != nil {
		o.logger.WithContext(ctx).WithError(runErr).WithFields(map[string]any{
			"connection_id": connection.ID,
			"sync_run_id":   run.ID,
		}).Error("Sync run failed")

		if err := o.runs.MarkFailed(ctx, run.ID, runErr.Error()); err != nil {
			o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"sync_run_id": run.ID,
			}).Error("Failed to record sync failure")
		}

		metrics.SyncRunsTotal.WithLabelValues(string(models.SyncStatusFailed)).Inc()
		metrics.SyncRunDuration.Observe(time.Since(start).Seconds())

		run.Status = models.SyncStatusFailed
		message := runErr.Error()
		run.ErrorMessage = &message
		return run, runErr
	}

	stats := models.SyncRunStats{NewBillsCount: len(result.NewBills)}
	if err := o.runs.MarkSuccess(ctx, run.ID, stats); err != nil {
		return run, err
	}
	run.Status = models.SyncStatusSuccess
	run.Stats.Data = stats

	if err := o.connections.SetLastSyncedAt(ctx, connection.ID); err != nil {
		o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": connection.ID,
		}).Warn("Failed to stamp connection sync time")
	}

	for _, bill := range result.NewBills {
		if err := o.alerts.NotifyBillFound(ctx, connection, bill); err != nil {
			o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"bill_id": bill.ID,
			}).Warn("Failed to create new bill alert")
		}
		if err := o.emitter.BillCreated(ctx, bill); err != nil {
			o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"bill_id": bill.ID,
			}).Warn("Failed to publish bill event")
		}
	}

	if _, err := o.alerts.RefreshForExecutive(ctx, connection.ExecutiveID); err != nil {
		o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"executive_id": connection.ExecutiveID,
		}).Warn("Failed to refresh due alerts after sync")
	}

	if err := o.emitter.SyncFinished(ctx, run); err != nil {
		o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"sync_run_id": run.ID,
		}).Warn("Failed to publish sync event")
	}

	metrics.SyncRunsTotal.WithLabelValues(string(models.SyncStatusSuccess)).Inc()
	metrics.SyncRunDuration.Observe(time.Since(start).Seconds())
	metrics.BillsExtracted.Add(float64(result.RowsExtracted))
	metrics.NewBillsTotal.Add(float64(len(result.NewBills)))

	o.logger.WithContext(ctx).WithFields(map[string]any{
		"connection_id": connection.ID,
		"sync_run_id":   run.ID,
		"new_bills":     len(result.NewBills),
		"updated_bills": result.UpdatedBills,
		"duration":      time.Since(start).String(),
	}).Info("Sync run succeeded")

	return run, nil
}

// RunScheduledSync synchronizes every active automated connection across all
// tenants. One failing connection never blocks the rest; the pass ends with
// a global due-alert refresh.
func (o *Orchestrator) RunScheduledSync(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "SyncOrchestrator.RunScheduledSync")
	defer span.End()

	connections, err := o.connections.ListActiveAutomated(ctx)
	if err != nil {
		return err
	}

	synced := 0
	skipped := 0
	failed := 0
	for i := range connections {
		connection := &connections[i]
		tctx := appctx.SetTenantID(ctx, connection.TenantID.String())

		settings, err := o.settings.GetOrDefault(tctx)
		if err != nil {
			o.logger.WithContext(tctx).WithError(err).Error("Failed to load tenant settings, skipping connection")
			failed++
			continue
		}
		if !settings.SyncEnabled {
			skipped++
			continue
		}

		if _, err := o.SyncConnection(tctx, connection.ID); err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				skipped++
				continue
			}
			o.logger.WithContext(tctx).WithError(err).WithFields(map[string]any{
				"connection_id": connection.ID,
			}).Error("Scheduled sync failed for connection")
			failed++
			continue
		}
		synced++
	}

	if err := o.alerts.RunGlobalRefresh(ctx); err != nil {
		o.logger.WithContext(ctx).WithError(err).Error("Global due-alert refresh failed")
	}

	o.logger.WithContext(ctx).WithFields(map[string]any{
		"synced":  synced,
		"skipped": skipped,
		"failed":  failed,
	}).Info("Scheduled sync pass completed")

	return nil
}
