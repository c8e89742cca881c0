// Package alerts derives notifications from bill state. Alert creation is
// idempotent per (bill, type); refreshing twice never duplicates.
package alerts

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/aster/pkg/context"
	"github.com/Ramsey-B/aster/pkg/events"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/repositories"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Alert copy shown to users. The product ships in Brazilian Portuguese.
const (
	TitleBillFound      = "Nova conta encontrada"
	TitleBillRegistered = "Nova conta cadastrada"
	TitleDueSoon        = "Conta próxima do vencimento"
	TitleOverdue        = "Conta vencida"
)

// Engine creates alerts from bill state
type Engine struct {
	bills    repositories.BillRepo
	alerts   repositories.AlertRepo
	settings repositories.SettingsRepo
	emitter  events.Emitter
	logger   ectologger.Logger

	// now is swapped in tests to move the clock
	now func() time.Time
}

// NewEngine creates an alert engine
func NewEngine(
	bills repositories.BillRepo,
	alerts repositories.AlertRepo,
	settings repositories.SettingsRepo,
	emitter events.Emitter,
	logger ectologger.Logger,
) *Engine {
	return &Engine{
		bills:    bills,
		alerts:   alerts,
		settings: settings,
		emitter:  emitter,
		logger:   logger,
		now:      time.Now,
	}
}

// NotifyBillFound creates the new-bill alert for a bill discovered by
// synchronization. Bills without a reference are named after their connection.
func (e *Engine) NotifyBillFound(ctx context.Context, connection *models.Connection, bill *models.Bill) error {
	return e.newBillAlert(ctx, bill, TitleBillFound, "Conta: "+connection.Name)
}

// NotifyBillRegistered creates the new-bill alert for a manually entered bill
func (e *Engine) NotifyBillRegistered(ctx context.Context, bill *models.Bill) error {
	return e.newBillAlert(ctx, bill, TitleBillRegistered, "Conta cadastrada")
}

func (e *Engine) newBillAlert(ctx context.Context, bill *models.Bill, title, fallback string) error {
	ctx, span := tracing.StartSpan(ctx, "AlertEngine.newBillAlert")
	defer span.End()

	billID := bill.ID
	alert := &models.Alert{
		ExecutiveID: bill.ExecutiveID,
		BillID:      &billID,
		Type:        models.AlertTypeNewBill,
		Title:       title,
		Message:     billMessage(bill, fallback),
		DueDate:     bill.DueDate,
	}

	_, err := e.createAlert(ctx, alert)
	return err
}

// RefreshForExecutive recomputes due-soon and overdue alerts for one
// executive and persists the overdue status transition. Safe to call any
// number of times; already alerted bills produce nothing new.
func (e *Engine) RefreshForExecutive(ctx context.Context, executiveID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "AlertEngine.RefreshForExecutive")
	defer span.End()

	settings, err := e.settings.GetOrDefault(ctx)
	if err != nil {
		return 0, err
	}
	if !settings.AlertsEnabled {
		return 0, nil
	}

	dueSoonDays := settings.DueSoonDays
	if dueSoonDays <= 0 {
		dueSoonDays = models.DefaultDueSoonDays
	}

	bills, err := e.bills.ListDueForExecutive(ctx, executiveID)
	if err != nil {
		return 0, err
	}

	now := e.now()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dueSoonEnd := startOfToday.AddDate(0, 0, dueSoonDays)

	created := 0
	for i := range bills {
		bill := &bills[i]
		if bill.DueDate == nil {
			continue
		}
		due := *bill.DueDate
		billID := bill.ID

		switch {
		case due.Before(startOfToday):
			transitioned, err := e.bills.TransitionToOverdue(ctx, bill.ID)
			if err != nil {
				return created, err
			}
			if transitioned {
				e.logger.WithContext(ctx).WithFields(map[string]any{
					"bill_id": bill.ID,
				}).Info("Bill transitioned to overdue")
			}

			wasCreated, err := e.createAlert(ctx, &models.Alert{
				ExecutiveID: executiveID,
				BillID:      &billID,
				Type:        models.AlertTypeOverdue,
				Title:       TitleOverdue,
				Message:     billMessage(bill, TitleOverdue),
				DueDate:     bill.DueDate,
			})
			if err != nil {
				return created, err
			}
			if wasCreated {
				created++
			}

		case !due.After(dueSoonEnd):
			wasCreated, err := e.createAlert(ctx, &models.Alert{
				ExecutiveID: executiveID,
				BillID:      &billID,
				Type:        models.AlertTypeDueSoon,
				Title:       TitleDueSoon,
				Message:     billMessage(bill, TitleDueSoon),
				DueDate:     bill.DueDate,
			})
			if err != nil {
				return created, err
			}
			if wasCreated {
				created++
			}
		}
	}

	if created > 0 {
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"executive_id": executiveID,
			"created":      created,
		}).Info("Refreshed due alerts for executive")
	}

	return created, nil
}

// RunGlobalRefresh refreshes due alerts for every (tenant, executive) pair
// that owns payable bills. One failing pair never blocks the rest.
func (e *Engine) RunGlobalRefresh(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "AlertEngine.RunGlobalRefresh")
	defer span.End()

	targets, err := e.bills.ListAlertTargets(ctx)
	if err != nil {
		return err
	}

	for _, target := range targets {
		tctx := appctx.SetTenantID(ctx, target.TenantID.String())
		if _, err := e.RefreshForExecutive(tctx, target.ExecutiveID); err != nil {
			e.logger.WithContext(tctx).WithError(err).WithFields(map[string]any{
				"executive_id": target.ExecutiveID,
			}).Error("Failed to refresh alerts for executive")
		}
	}

	return nil
}

func (e *Engine) createAlert(ctx context.Context, alert *models.Alert) (bool, error) {
	created, err := e.alerts.CreateIfMissing(ctx, alert)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	metrics.AlertsCreated.WithLabelValues(string(alert.Type)).Inc()

	if e.emitter != nil {
		if err := e.emitter.AlertCreated(ctx, alert); err != nil {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"alert_id": alert.ID,
			}).Warn("Failed to publish alert event")
		}
	}

	return true, nil
}

// billMessage names the bill by its reference; bills without one fall back
// to per-type copy.
func billMessage(bill *models.Bill, fallback string) string {
	if bill.Reference != nil && *bill.Reference != "" {
		return "Conta: " + *bill.Reference
	}
	return fallback
}
