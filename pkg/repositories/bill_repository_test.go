package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/repositories"
)

func TestBillRepository_CreateAndDefaults(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	repo := repositories.NewBillRepository(db, logger)

	tenantID := uuid.New()
	ctx := getTestContext(tenantID)
	connection := seedConnection(t, ctx, db, models.ModeManual)

	bill := &models.Bill{
		ConnectionID:  connection.ID,
		ExecutiveID:   connection.ExecutiveID,
		AccountTypeID: connection.AccountTypeID,
		Reference:     strPtr("FAT-2026-08"),
		Amount:        floatPtr(1234.56),
	}

	err := repo.Create(ctx, bill)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, bill.ID)
	assert.Equal(t, tenantID, bill.TenantID)
	assert.Equal(t, "BRL", bill.Currency)
	assert.Equal(t, models.BillStatusNew, bill.Status)

	fetched, err := repo.GetByID(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, bill.ID, fetched.ID)
	assert.Equal(t, "FAT-2026-08", *fetched.Reference)

	// Tenant isolation
	_, err = repo.GetByID(getTestContext(uuid.New()), bill.ID)
	assertNotFound(t, err)
}

func TestBillRepository_DedupLookups(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	repo := repositories.NewBillRepository(db, logger)

	ctx := getTestContext(uuid.New())
	connection := seedConnection(t, ctx, db, models.ModeAutomated)
	dueDate := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	bill := &models.Bill{
		ConnectionID:  connection.ID,
		ExecutiveID:   connection.ExecutiveID,
		AccountTypeID: connection.AccountTypeID,
		RemoteID:      strPtr("INV-001"),
		Reference:     strPtr("09/2026"),
		DueDate:       timePtr(dueDate),
	}
	require.NoError(t, repo.Create(ctx, bill))

	t.Run("by remote id", func(t *testing.T) {
		found, err := repo.FindByRemoteID(ctx, connection.ID, "INV-001")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, bill.ID, found.ID)

		missing, err := repo.FindByRemoteID(ctx, connection.ID, "INV-999")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("by reference and due date", func(t *testing.T) {
		found, err := repo.FindByReferenceAndDueDate(ctx, connection.ID, "09/2026", dueDate)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, bill.ID, found.ID)

		// Same reference, different due date
		missing, err := repo.FindByReferenceAndDueDate(ctx, connection.ID, "09/2026", dueDate.AddDate(0, 1, 0))
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("scoped to connection", func(t *testing.T) {
		other := seedConnection(t, ctx, db, models.ModeAutomated)
		missing, err := repo.FindByRemoteID(ctx, other.ID, "INV-001")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestBillRepository_MarkSeen(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	repo := repositories.NewBillRepository(db, logger)

	ctx := getTestContext(uuid.New())
	connection := seedConnection(t, ctx, db, models.ModeManual)

	bill := &models.Bill{
		ConnectionID:  connection.ID,
		ExecutiveID:   connection.ExecutiveID,
		AccountTypeID: connection.AccountTypeID,
	}
	require.NoError(t, repo.Create(ctx, bill))

	updated, err := repo.MarkSeen(ctx, []uuid.UUID{bill.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	seen, err := repo.GetByID(ctx, bill.ID)
	require.NoError(t, err)
	require.NotNil(t, seen.SeenAt)
	assert.Equal(t, models.BillStatusOpen, seen.Status)

	// Marking again keeps the original timestamp
	firstSeen := *seen.SeenAt
	_, err = repo.MarkSeen(ctx, []uuid.UUID{bill.ID})
	require.NoError(t, err)

	again, err := repo.GetByID(ctx, bill.ID)
	require.NoError(t, err)
	assert.True(t, again.SeenAt.Equal(firstSeen))

	// Scoping is by tenant, not executive
	other := &models.Bill{
		ConnectionID:  connection.ID,
		ExecutiveID:   uuid.New(),
		AccountTypeID: connection.AccountTypeID,
	}
	require.NoError(t, repo.Create(ctx, other))

	updated, err = repo.MarkSeen(ctx, []uuid.UUID{other.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)
}

func TestBillRepository_TransitionToOverdue(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	repo := repositories.NewBillRepository(db, logger)

	ctx := getTestContext(uuid.New())
	connection := seedConnection(t, ctx, db, models.ModeManual)

	bill := &models.Bill{
		ConnectionID:  connection.ID,
		ExecutiveID:   connection.ExecutiveID,
		AccountTypeID: connection.AccountTypeID,
		DueDate:       timePtr(time.Now().UTC().AddDate(0, 0, -3)),
	}
	require.NoError(t, repo.Create(ctx, bill))

	transitioned, err := repo.TransitionToOverdue(ctx, bill.ID)
	require.NoError(t, err)
	assert.True(t, transitioned)

	// A second transition is a no-op
	transitioned, err = repo.TransitionToOverdue(ctx, bill.ID)
	require.NoError(t, err)
	assert.False(t, transitioned)

	overdue, err := repo.GetByID(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusOverdue, overdue.Status)

	// Paid bills never go overdue
	paid := &models.Bill{
		ConnectionID:  connection.ID,
		ExecutiveID:   connection.ExecutiveID,
		AccountTypeID: connection.AccountTypeID,
	}
	require.NoError(t, repo.Create(ctx, paid))
	paid.Status = models.BillStatusPaid
	paid.PaidAt = timePtr(time.Now().UTC())
	require.NoError(t, repo.Update(ctx, paid))

	transitioned, err = repo.TransitionToOverdue(ctx, paid.ID)
	require.NoError(t, err)
	assert.False(t, transitioned)
}

func TestBillRepository_CountSummary(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	repo := repositories.NewBillRepository(db, logger)

	ctx := getTestContext(uuid.New())
	connection := seedConnection(t, ctx, db, models.ModeManual)
	now := time.Now().UTC()

	mk := func(status models.BillStatus, due *time.Time) *models.Bill {
		bill := &models.Bill{
			ConnectionID:  connection.ID,
			ExecutiveID:   connection.ExecutiveID,
			AccountTypeID: connection.AccountTypeID,
			DueDate:       due,
		}
		require.NoError(t, repo.Create(ctx, bill))
		if status != models.BillStatusNew {
			bill.Status = status
			require.NoError(t, repo.Update(ctx, bill))
		}
		return bill
	}

	mk(models.BillStatusNew, nil)
	dueSoon := mk(models.BillStatusOpen, timePtr(now.AddDate(0, 0, 3)))
	mk(models.BillStatusOverdue, timePtr(now.AddDate(0, 0, -2)))
	dueLater := mk(models.BillStatusOpen, timePtr(now.AddDate(0, 0, 30)))

	// Seen bills drop out of the new count but keep their due-date buckets
	_, err := repo.MarkSeen(ctx, []uuid.UUID{dueSoon.ID, dueLater.ID})
	require.NoError(t, err)

	counts, err := repo.CountSummary(ctx, connection.ExecutiveID, 7, now)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.NewBills)
	assert.Equal(t, 1, counts.DueSoon)
	assert.Equal(t, 1, counts.Overdue)
}

func TestBillRepository_TenantRequired(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := repositories.NewBillRepository(db, getTestLogger())

	err := repo.Create(context.Background(), &models.Bill{})
	assertUnauthorized(t, err)
}
