package repositories_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/repositories"
)

func TestAlertRepository_CreateIfMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	repo := repositories.NewAlertRepository(db, logger)
	bills := repositories.NewBillRepository(db, logger)

	ctx := getTestContext(uuid.New())
	connection := seedConnection(t, ctx, db, models.ModeManual)

	bill := &models.Bill{
		ConnectionID:  connection.ID,
		ExecutiveID:   connection.ExecutiveID,
		AccountTypeID: connection.AccountTypeID,
	}
	require.NoError(t, bills.Create(ctx, bill))

	alert := &models.Alert{
		ExecutiveID: connection.ExecutiveID,
		BillID:      &bill.ID,
		Type:        models.AlertTypeNewBill,
		Title:       "Nova conta encontrada",
		Message:     "Conta: Energia Sul",
	}

	created, err := repo.CreateIfMissing(ctx, alert)
	require.NoError(t, err)
	assert.True(t, created)

	// Same (bill, type) again is swallowed by the unique index
	duplicate := &models.Alert{
		ExecutiveID: connection.ExecutiveID,
		BillID:      &bill.ID,
		Type:        models.AlertTypeNewBill,
		Title:       "Nova conta encontrada",
		Message:     "Conta: Energia Sul",
	}
	created, err = repo.CreateIfMissing(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, created)

	// A different type for the same bill is a distinct alert
	overdue := &models.Alert{
		ExecutiveID: connection.ExecutiveID,
		BillID:      &bill.ID,
		Type:        models.AlertTypeOverdue,
		Title:       "Conta vencida",
		Message:     "Conta vencida",
	}
	created, err = repo.CreateIfMissing(ctx, overdue)
	require.NoError(t, err)
	assert.True(t, created)

	alerts, err := repo.List(ctx, repositories.AlertFilter{ExecutiveID: &connection.ExecutiveID})
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestAlertRepository_Acknowledge(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	repo := repositories.NewAlertRepository(db, logger)
	bills := repositories.NewBillRepository(db, logger)

	ctx := getTestContext(uuid.New())
	connection := seedConnection(t, ctx, db, models.ModeManual)

	bill := &models.Bill{
		ConnectionID:  connection.ID,
		ExecutiveID:   connection.ExecutiveID,
		AccountTypeID: connection.AccountTypeID,
	}
	require.NoError(t, bills.Create(ctx, bill))

	alert := &models.Alert{
		ExecutiveID: connection.ExecutiveID,
		BillID:      &bill.ID,
		Type:        models.AlertTypeDueSoon,
		Title:       "Conta próxima do vencimento",
		Message:     "Conta próxima do vencimento",
	}
	created, err := repo.CreateIfMissing(ctx, alert)
	require.NoError(t, err)
	require.True(t, created)

	count, err := repo.CountUnacknowledged(ctx, connection.ExecutiveID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, repo.Acknowledge(ctx, alert.ID))

	acked, err := repo.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	require.NotNil(t, acked.AcknowledgedAt)
	firstAck := *acked.AcknowledgedAt

	// Acknowledging twice keeps the original timestamp
	require.NoError(t, repo.Acknowledge(ctx, alert.ID))
	again, err := repo.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, again.AcknowledgedAt.Equal(firstAck))

	count, err = repo.CountUnacknowledged(ctx, connection.ExecutiveID)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Unknown alert
	assertNotFound(t, repo.Acknowledge(ctx, uuid.New()))
}
