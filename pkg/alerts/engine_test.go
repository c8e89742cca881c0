package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/aster/pkg/events"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/repositories"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type fakeBillRepo struct {
	mu    sync.Mutex
	bills map[uuid.UUID]*models.Bill
}

func newFakeBillRepo() *fakeBillRepo {
	return &fakeBillRepo{bills: make(map[uuid.UUID]*models.Bill)}
}

func (f *fakeBillRepo) add(bill *models.Bill) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if bill.ID == uuid.Nil {
		bill.ID = uuid.New()
	}
	f.bills[bill.ID] = bill
}

func (f *fakeBillRepo) Create(_ context.Context, bill *models.Bill) error {
	f.add(bill)
	return nil
}

func (f *fakeBillRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if bill, ok := f.bills[id]; ok {
		return bill, nil
	}
	return nil, repositories.NotFound("bill %s does not exist", id)
}

func (f *fakeBillRepo) FindByRemoteID(context.Context, uuid.UUID, string) (*models.Bill, error) {
	return nil, nil
}

func (f *fakeBillRepo) FindByReferenceAndDueDate(context.Context, uuid.UUID, string, time.Time) (*models.Bill, error) {
	return nil, nil
}

func (f *fakeBillRepo) List(context.Context, repositories.BillFilter) ([]models.Bill, error) {
	return nil, nil
}

func (f *fakeBillRepo) Update(_ context.Context, bill *models.Bill) error {
	f.add(bill)
	return nil
}

func (f *fakeBillRepo) MarkSeen(context.Context, []uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeBillRepo) TransitionToOverdue(_ context.Context, billID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bill, ok := f.bills[billID]
	if !ok {
		return false, nil
	}
	if bill.Status == models.BillStatusNew || bill.Status == models.BillStatusOpen {
		bill.Status = models.BillStatusOverdue
		return true, nil
	}
	return false, nil
}

func (f *fakeBillRepo) ListDueForExecutive(_ context.Context, executiveID uuid.UUID) ([]models.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Bill
	for _, bill := range f.bills {
		if bill.ExecutiveID == executiveID &&
			bill.DueDate != nil && bill.PaidAt == nil &&
			bill.Status != models.BillStatusCanceled {
			out = append(out, *bill)
		}
	}
	return out, nil
}

func (f *fakeBillRepo) CountSummary(context.Context, uuid.UUID, int, time.Time) (*repositories.BillCounts, error) {
	return &repositories.BillCounts{}, nil
}

func (f *fakeBillRepo) ListAlertTargets(context.Context) ([]repositories.AlertTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seen := make(map[uuid.UUID]bool)
	var targets []repositories.AlertTarget
	for _, bill := range f.bills {
		if bill.DueDate == nil || bill.PaidAt != nil || bill.Status == models.BillStatusCanceled {
			continue
		}
		if seen[bill.ExecutiveID] {
			continue
		}
		seen[bill.ExecutiveID] = true
		targets = append(targets, repositories.AlertTarget{
			TenantID:    bill.TenantID,
			ExecutiveID: bill.ExecutiveID,
		})
	}
	return targets, nil
}

type fakeAlertRepo struct {
	mu     sync.Mutex
	alerts []models.Alert
	keys   map[string]bool
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{keys: make(map[string]bool)}
}

func (f *fakeAlertRepo) CreateIfMissing(_ context.Context, alert *models.Alert) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := string(alert.Type)
	if alert.BillID != nil {
		key = alert.BillID.String() + "|" + key
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true

	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	f.alerts = append(f.alerts, *alert)
	return true, nil
}

func (f *fakeAlertRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Alert, error) {
	return nil, repositories.NotFound("alert %s does not exist", id)
}

func (f *fakeAlertRepo) List(context.Context, repositories.AlertFilter) ([]models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Alert(nil), f.alerts...), nil
}

func (f *fakeAlertRepo) Acknowledge(context.Context, uuid.UUID) error { return nil }

func (f *fakeAlertRepo) CountUnacknowledged(context.Context, uuid.UUID) (int, error) {
	return 0, nil
}

func (f *fakeAlertRepo) ofType(alertType models.AlertType) []models.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Alert
	for _, alert := range f.alerts {
		if alert.Type == alertType {
			out = append(out, alert)
		}
	}
	return out
}

type fakeSettingsRepo struct {
	settings models.Settings
}

func (f *fakeSettingsRepo) GetOrDefault(context.Context) (*models.Settings, error) {
	s := f.settings
	return &s, nil
}

func (f *fakeSettingsRepo) Upsert(context.Context, *models.Settings) error { return nil }

func defaultSettings() models.Settings {
	return models.Settings{
		DueSoonDays:   7,
		SyncEnabled:   true,
		AlertsEnabled: true,
	}
}

func newTestEngine(bills *fakeBillRepo, alerts *fakeAlertRepo, settings models.Settings) *Engine {
	return NewEngine(bills, alerts, &fakeSettingsRepo{settings: settings}, events.NoopEmitter{}, testLogger())
}

func dueBill(executiveID uuid.UUID, due time.Time) *models.Bill {
	ref := "FAT-" + uuid.NewString()[:8]
	return &models.Bill{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		ExecutiveID: executiveID,
		Reference:   &ref,
		Status:      models.BillStatusOpen,
		DueDate:     &due,
	}
}

func TestEngine_RefreshForExecutive(t *testing.T) {
	ctx := context.Background()
	today := time.Date(2025, time.August, 20, 10, 0, 0, 0, time.UTC)

	t.Run("creates due soon alerts inside the window", func(t *testing.T) {
		executiveID := uuid.New()
		bills := newFakeBillRepo()
		bills.add(dueBill(executiveID, today.AddDate(0, 0, 3)))
		alertRepo := newFakeAlertRepo()

		engine := newTestEngine(bills, alertRepo, defaultSettings())
		engine.now = func() time.Time { return today }

		created, err := engine.RefreshForExecutive(ctx, executiveID)
		require.NoError(t, err)
		assert.Equal(t, 1, created)

		dueSoon := alertRepo.ofType(models.AlertTypeDueSoon)
		require.Len(t, dueSoon, 1)
		assert.Equal(t, TitleDueSoon, dueSoon[0].Title)
		assert.Contains(t, dueSoon[0].Message, "Conta: FAT-")
	})

	t.Run("bills outside the window produce nothing", func(t *testing.T) {
		executiveID := uuid.New()
		bills := newFakeBillRepo()
		bills.add(dueBill(executiveID, today.AddDate(0, 0, 30)))
		alertRepo := newFakeAlertRepo()

		engine := newTestEngine(bills, alertRepo, defaultSettings())
		engine.now = func() time.Time { return today }

		created, err := engine.RefreshForExecutive(ctx, executiveID)
		require.NoError(t, err)
		assert.Zero(t, created)
		assert.Empty(t, alertRepo.alerts)
	})

	t.Run("double refresh creates zero new alerts", func(t *testing.T) {
		executiveID := uuid.New()
		bills := newFakeBillRepo()
		bills.add(dueBill(executiveID, today.AddDate(0, 0, 2)))
		bills.add(dueBill(executiveID, today.AddDate(0, 0, -2)))
		alertRepo := newFakeAlertRepo()

		engine := newTestEngine(bills, alertRepo, defaultSettings())
		engine.now = func() time.Time { return today }

		first, err := engine.RefreshForExecutive(ctx, executiveID)
		require.NoError(t, err)
		assert.Equal(t, 2, first)

		second, err := engine.RefreshForExecutive(ctx, executiveID)
		require.NoError(t, err)
		assert.Zero(t, second)
		assert.Len(t, alertRepo.alerts, 2)
	})

	t.Run("overdue transition happens exactly once as the clock advances", func(t *testing.T) {
		executiveID := uuid.New()
		bills := newFakeBillRepo()
		bill := dueBill(executiveID, today.AddDate(0, 0, 1))
		bills.add(bill)
		alertRepo := newFakeAlertRepo()

		engine := newTestEngine(bills, alertRepo, defaultSettings())

		// Day one: due tomorrow, only a due soon alert
		engine.now = func() time.Time { return today }
		_, err := engine.RefreshForExecutive(ctx, executiveID)
		require.NoError(t, err)
		assert.Len(t, alertRepo.ofType(models.AlertTypeDueSoon), 1)
		assert.Empty(t, alertRepo.ofType(models.AlertTypeOverdue))
		assert.Equal(t, models.BillStatusOpen, bill.Status)

		// Three days later: overdue alert appears and status flips
		engine.now = func() time.Time { return today.AddDate(0, 0, 3) }
		created, err := engine.RefreshForExecutive(ctx, executiveID)
		require.NoError(t, err)
		assert.Equal(t, 1, created)
		assert.Len(t, alertRepo.ofType(models.AlertTypeOverdue), 1)
		assert.Equal(t, models.BillStatusOverdue, bill.Status)

		// Another refresh: nothing new, status stays
		created, err = engine.RefreshForExecutive(ctx, executiveID)
		require.NoError(t, err)
		assert.Zero(t, created)
		assert.Len(t, alertRepo.ofType(models.AlertTypeOverdue), 1)
	})

	t.Run("disabled alerts produce nothing", func(t *testing.T) {
		executiveID := uuid.New()
		bills := newFakeBillRepo()
		bills.add(dueBill(executiveID, today.AddDate(0, 0, 1)))
		alertRepo := newFakeAlertRepo()

		settings := defaultSettings()
		settings.AlertsEnabled = false
		engine := newTestEngine(bills, alertRepo, settings)
		engine.now = func() time.Time { return today }

		created, err := engine.RefreshForExecutive(ctx, executiveID)
		require.NoError(t, err)
		assert.Zero(t, created)
		assert.Empty(t, alertRepo.alerts)
	})

	t.Run("due alerts without a reference use the title as message", func(t *testing.T) {
		executiveID := uuid.New()
		bills := newFakeBillRepo()
		soon := dueBill(executiveID, today.AddDate(0, 0, 2))
		soon.Reference = nil
		bills.add(soon)
		late := dueBill(executiveID, today.AddDate(0, 0, -2))
		late.Reference = nil
		bills.add(late)
		alertRepo := newFakeAlertRepo()

		engine := newTestEngine(bills, alertRepo, defaultSettings())
		engine.now = func() time.Time { return today }

		_, err := engine.RefreshForExecutive(ctx, executiveID)
		require.NoError(t, err)

		dueSoon := alertRepo.ofType(models.AlertTypeDueSoon)
		require.Len(t, dueSoon, 1)
		assert.Equal(t, TitleDueSoon, dueSoon[0].Message)

		overdue := alertRepo.ofType(models.AlertTypeOverdue)
		require.Len(t, overdue, 1)
		assert.Equal(t, TitleOverdue, overdue[0].Message)
	})

	t.Run("honors a custom due soon window", func(t *testing.T) {
		executiveID := uuid.New()
		bills := newFakeBillRepo()
		bills.add(dueBill(executiveID, today.AddDate(0, 0, 10)))
		alertRepo := newFakeAlertRepo()

		settings := defaultSettings()
		settings.DueSoonDays = 14
		engine := newTestEngine(bills, alertRepo, settings)
		engine.now = func() time.Time { return today }

		created, err := engine.RefreshForExecutive(ctx, executiveID)
		require.NoError(t, err)
		assert.Equal(t, 1, created)
	})
}

func TestEngine_NotifyNewBill(t *testing.T) {
	ctx := context.Background()

	connection := &models.Connection{ID: uuid.New(), Name: "Energia Sul"}

	t.Run("sync and manual titles differ", func(t *testing.T) {
		executiveID := uuid.New()
		alertRepo := newFakeAlertRepo()
		engine := newTestEngine(newFakeBillRepo(), alertRepo, defaultSettings())

		found := dueBill(executiveID, time.Now().AddDate(0, 0, 5))
		registered := dueBill(executiveID, time.Now().AddDate(0, 0, 5))

		require.NoError(t, engine.NotifyBillFound(ctx, connection, found))
		require.NoError(t, engine.NotifyBillRegistered(ctx, registered))

		newBill := alertRepo.ofType(models.AlertTypeNewBill)
		require.Len(t, newBill, 2)
		titles := []string{newBill[0].Title, newBill[1].Title}
		assert.Contains(t, titles, TitleBillFound)
		assert.Contains(t, titles, TitleBillRegistered)
	})

	t.Run("notifying the same bill twice creates one alert", func(t *testing.T) {
		executiveID := uuid.New()
		alertRepo := newFakeAlertRepo()
		engine := newTestEngine(newFakeBillRepo(), alertRepo, defaultSettings())

		bill := dueBill(executiveID, time.Now().AddDate(0, 0, 5))
		require.NoError(t, engine.NotifyBillFound(ctx, connection, bill))
		require.NoError(t, engine.NotifyBillFound(ctx, connection, bill))

		assert.Len(t, alertRepo.ofType(models.AlertTypeNewBill), 1)
	})

	t.Run("bills without a reference fall back to per-type copy", func(t *testing.T) {
		executiveID := uuid.New()
		alertRepo := newFakeAlertRepo()
		engine := newTestEngine(newFakeBillRepo(), alertRepo, defaultSettings())

		found := dueBill(executiveID, time.Now().AddDate(0, 0, 5))
		found.Reference = nil
		registered := dueBill(executiveID, time.Now().AddDate(0, 0, 5))
		registered.Reference = nil

		require.NoError(t, engine.NotifyBillFound(ctx, connection, found))
		require.NoError(t, engine.NotifyBillRegistered(ctx, registered))

		newBill := alertRepo.ofType(models.AlertTypeNewBill)
		require.Len(t, newBill, 2)
		messages := []string{newBill[0].Message, newBill[1].Message}
		assert.Contains(t, messages, "Conta: Energia Sul")
		assert.Contains(t, messages, "Conta cadastrada")
	})
}

func TestEngine_RunGlobalRefresh(t *testing.T) {
	ctx := context.Background()
	today := time.Date(2025, time.August, 20, 10, 0, 0, 0, time.UTC)

	t.Run("covers every executive with payable bills", func(t *testing.T) {
		bills := newFakeBillRepo()
		first := uuid.New()
		second := uuid.New()
		bills.add(dueBill(first, today.AddDate(0, 0, 2)))
		bills.add(dueBill(second, today.AddDate(0, 0, -1)))
		alertRepo := newFakeAlertRepo()

		engine := newTestEngine(bills, alertRepo, defaultSettings())
		engine.now = func() time.Time { return today }

		require.NoError(t, engine.RunGlobalRefresh(ctx))

		assert.Len(t, alertRepo.ofType(models.AlertTypeDueSoon), 1)
		assert.Len(t, alertRepo.ofType(models.AlertTypeOverdue), 1)
	})
}
