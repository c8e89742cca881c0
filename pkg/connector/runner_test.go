package connector

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

	"github.com/Ramsey-B/aster/pkg/blob"
	"github.com/Ramsey-B/aster/pkg/browser"
	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/repositories"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type fakeBillRepo struct {
	mu      sync.Mutex
	bills   map[uuid.UUID]*models.Bill
	creates int
	updates int
}

func newFakeBillRepo() *fakeBillRepo {
	return &fakeBillRepo{bills: make(map[uuid.UUID]*models.Bill)}
}

func (f *fakeBillRepo) Create(_ context.Context, bill *models.Bill) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if bill.ID == uuid.Nil {
		bill.ID = uuid.New()
	}
	clone := *bill
	f.bills[bill.ID] = &clone
	f.creates++
	return nil
}

func (f *fakeBillRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if bill, ok := f.bills[id]; ok {
		clone := *bill
		return &clone, nil
	}
	return nil, repositories.NotFound("bill %s does not exist", id)
}

func (f *fakeBillRepo) FindByRemoteID(_ context.Context, connectionID uuid.UUID, remoteID string) (*models.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, bill := range f.bills {
		if bill.ConnectionID == connectionID && bill.RemoteID != nil && *bill.RemoteID == remoteID {
			clone := *bill
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeBillRepo) FindByReferenceAndDueDate(_ context.Context, connectionID uuid.UUID, reference string, dueDate time.Time) (*models.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, bill := range f.bills {
		if bill.ConnectionID == connectionID &&
			bill.Reference != nil && *bill.Reference == reference &&
			bill.DueDate != nil && sameDay(*bill.DueDate, dueDate) {
			clone := *bill
			return &clone, nil
		}
	}
	return nil, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (f *fakeBillRepo) List(context.Context, repositories.BillFilter) ([]models.Bill, error) {
	return nil, nil
}

func (f *fakeBillRepo) Update(_ context.Context, bill *models.Bill) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	clone := *bill
	f.bills[bill.ID] = &clone
	f.updates++
	return nil
}

func (f *fakeBillRepo) MarkSeen(context.Context, []uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeBillRepo) TransitionToOverdue(context.Context, uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeBillRepo) ListDueForExecutive(context.Context, uuid.UUID) ([]models.Bill, error) {
	return nil, nil
}

func (f *fakeBillRepo) CountSummary(context.Context, uuid.UUID, int, time.Time) (*repositories.BillCounts, error) {
	return &repositories.BillCounts{}, nil
}

func (f *fakeBillRepo) ListAlertTargets(context.Context) ([]repositories.AlertTarget, error) {
	return nil, nil
}

type fakeCredentials struct {
	payload models.CredentialPayload
	err     error
}

func (f *fakeCredentials) Load(context.Context, uuid.UUID) (models.CredentialPayload, error) {
	return f.payload, f.err
}

func testConnection(recipe models.ExtractionRecipe) *models.Connection {
	return &models.Connection{
		ID:            uuid.New(),
		TenantID:      uuid.New(),
		ExecutiveID:   uuid.New(),
		AccountTypeID: uuid.New(),
		Name:          "Energia Luz e Forca",
		Mode:          models.ModeAutomated,
		Recipe:        database.JSONB[models.ExtractionRecipe]{Data: recipe},
		IsActive:      true,
	}
}

func portalRecipe() models.ExtractionRecipe {
	return models.ExtractionRecipe{
		LoginURL:          "https://portal.example.com.br/login",
		UsernameSelector:  "#username",
		PasswordSelector:  "#password",
		SubmitSelector:    "#submit",
		BillsURL:          "https://portal.example.com.br/faturas",
		BillRowSelector:   "tr.bill",
		RemoteIDSelector:  ".remote-id",
		ReferenceSelector: ".reference",
		AmountSelector:    ".amount",
		DueDateSelector:   ".due-date",
	}
}

func TestRunner_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("manual connections are a no-op", func(t *testing.T) {
		driver := browser.NewScriptedDriver(&browser.ScriptedSession{})
		runner := NewRunner(
			driver,
			&fakeCredentials{},
			newFakeBillRepo(),
			blob.NewMemoryStore(),
			testLogger(),
		)

		connection := testConnection(models.ExtractionRecipe{})
		connection.Mode = models.ModeManual

		result, err := runner.Run(ctx, connection)
		require.NoError(t, err)
		assert.Zero(t, result.RowsExtracted)
		assert.Empty(t, result.NewBills)
		assert.Zero(t, driver.SessionCount(), "manual run must never open a portal session")
	})

	t.Run("extracts, parses and creates new bills", func(t *testing.T) {
		session := &browser.ScriptedSession{
			Rows: []map[string]string{
				{
					"remote_id": "INV-100",
					"reference": "FAT-2025-09",
					"amount":    "1.234,56",
					"due_date":  "15/08/2025",
				},
			},
		}
		repo := newFakeBillRepo()
		runner := NewRunner(
			browser.NewScriptedDriver(session),
			&fakeCredentials{payload: models.CredentialPayload{Username: "billing@acme.com.br", Password: "s3cr3t"}},
			repo,
			blob.NewMemoryStore(),
			testLogger(),
		)

		connection := testConnection(portalRecipe())
		result, err := runner.Run(ctx, connection)
		require.NoError(t, err)

		assert.Equal(t, 1, result.RowsExtracted)
		assert.Equal(t, 0, result.UpdatedBills)
		require.Len(t, result.NewBills, 1)

		bill := result.NewBills[0]
		assert.Equal(t, "INV-100", *bill.RemoteID)
		assert.Equal(t, "FAT-2025-09", *bill.Reference)
		assert.InDelta(t, 1234.56, *bill.Amount, 0.001)
		assert.Equal(t, time.Date(2025, time.August, 15, 0, 0, 0, 0, time.UTC), *bill.DueDate)
		assert.Equal(t, models.BillStatusNew, bill.Status)

		// Login flow ran with the decrypted credentials
		assert.Equal(t, "billing@acme.com.br", session.Filled["#username"])
		assert.Equal(t, "s3cr3t", session.Filled["#password"])
		assert.Contains(t, session.Clicked, "#submit")
		assert.Contains(t, session.Navigated, "https://portal.example.com.br/login")
		assert.Contains(t, session.Navigated, "https://portal.example.com.br/faturas")
		assert.True(t, session.Closed)
	})

	t.Run("second run updates instead of duplicating", func(t *testing.T) {
		session := &browser.ScriptedSession{
			Rows: []map[string]string{
				{"remote_id": "INV-100", "amount": "1.234,56", "due_date": "15/08/2025"},
			},
		}
		repo := newFakeBillRepo()
		runner := NewRunner(
			browser.NewScriptedDriver(session),
			&fakeCredentials{},
			repo,
			blob.NewMemoryStore(),
			testLogger(),
		)

		connection := testConnection(portalRecipe())

		first, err := runner.Run(ctx, connection)
		require.NoError(t, err)
		require.Len(t, first.NewBills, 1)

		second, err := runner.Run(ctx, connection)
		require.NoError(t, err)
		assert.Empty(t, second.NewBills)
		assert.Equal(t, 1, second.UpdatedBills)
		assert.Equal(t, 1, repo.creates)
		assert.Equal(t, 1, repo.updates)
	})

	t.Run("dedups by reference and due date when no remote id", func(t *testing.T) {
		session := &browser.ScriptedSession{
			Rows: []map[string]string{
				{"reference": "FAT-77", "amount": "200,00", "due_date": "01/09/2025"},
			},
		}
		repo := newFakeBillRepo()
		recipe := portalRecipe()
		recipe.RemoteIDSelector = ""
		runner := NewRunner(
			browser.NewScriptedDriver(session),
			&fakeCredentials{},
			repo,
			blob.NewMemoryStore(),
			testLogger(),
		)

		connection := testConnection(recipe)

		_, err := runner.Run(ctx, connection)
		require.NoError(t, err)
		second, err := runner.Run(ctx, connection)
		require.NoError(t, err)

		assert.Empty(t, second.NewBills)
		assert.Equal(t, 1, repo.creates)
		assert.Equal(t, 1, repo.updates)
	})

	t.Run("rows without identity always create", func(t *testing.T) {
		session := &browser.ScriptedSession{
			Rows: []map[string]string{
				{"amount": "50,00"},
			},
		}
		repo := newFakeBillRepo()
		recipe := portalRecipe()
		recipe.RemoteIDSelector = ""
		recipe.ReferenceSelector = ""
		runner := NewRunner(
			browser.NewScriptedDriver(session),
			&fakeCredentials{},
			repo,
			blob.NewMemoryStore(),
			testLogger(),
		)

		connection := testConnection(recipe)

		_, err := runner.Run(ctx, connection)
		require.NoError(t, err)
		_, err = runner.Run(ctx, connection)
		require.NoError(t, err)

		assert.Equal(t, 2, repo.creates)
	})

	t.Run("malformed cells become nil fields, not errors", func(t *testing.T) {
		session := &browser.ScriptedSession{
			Rows: []map[string]string{
				{"remote_id": "INV-9", "amount": "indisponivel", "due_date": "32/13/2025"},
			},
		}
		repo := newFakeBillRepo()
		runner := NewRunner(
			browser.NewScriptedDriver(session),
			&fakeCredentials{},
			repo,
			blob.NewMemoryStore(),
			testLogger(),
		)

		result, err := runner.Run(ctx, testConnection(portalRecipe()))
		require.NoError(t, err)
		require.Len(t, result.NewBills, 1)

		bill := result.NewBills[0]
		assert.Nil(t, bill.Amount)
		assert.Nil(t, bill.DueDate)
		assert.Equal(t, "indisponivel", bill.RawData.GetValue()["amount"])
	})

	t.Run("links downloaded attachments to new bills", func(t *testing.T) {
		recipe := portalRecipe()
		recipe.DownloadSelector = "a.download"

		session := &browser.ScriptedSession{
			Rows: []map[string]string{
				{"remote_id": "INV-100", "amount": "10,00", "due_date": "15/08/2025"},
			},
			Downloads: map[string]*browser.Download{
				"tr.bill:nth-child(1) a.download": {
					Filename: "fatura.pdf",
					Data:     []byte("%PDF-1.4"),
				},
			},
		}
		blobs := blob.NewMemoryStore()
		runner := NewRunner(
			browser.NewScriptedDriver(session),
			&fakeCredentials{},
			newFakeBillRepo(),
			blobs,
			testLogger(),
		)

		result, err := runner.Run(ctx, testConnection(recipe))
		require.NoError(t, err)
		require.Len(t, result.NewBills, 1)

		bill := result.NewBills[0]
		require.NotNil(t, bill.AttachmentRef)
		assert.Equal(t, "fatura.pdf", *bill.AttachmentFilename)
		assert.Equal(t, "application/pdf", *bill.AttachmentMimeType)
		assert.Equal(t, int64(len("%PDF-1.4")), *bill.AttachmentSize)
		assert.Equal(t, 1, blobs.Len())
	})

	t.Run("downloads attachments for existing bills that have none", func(t *testing.T) {
		recipe := portalRecipe()
		recipe.DownloadSelector = "a.download"
		connection := testConnection(recipe)

		remoteID := "INV-100"
		repo := newFakeBillRepo()
		existing := &models.Bill{
			ID:            uuid.New(),
			TenantID:      connection.TenantID,
			ConnectionID:  connection.ID,
			ExecutiveID:   connection.ExecutiveID,
			AccountTypeID: connection.AccountTypeID,
			RemoteID:      &remoteID,
			Status:        models.BillStatusOpen,
		}
		require.NoError(t, repo.Create(ctx, existing))

		session := &browser.ScriptedSession{
			Rows: []map[string]string{
				{"remote_id": "INV-100", "amount": "10,00", "due_date": "15/08/2025"},
			},
			Downloads: map[string]*browser.Download{
				"tr.bill:nth-child(1) a.download": {
					Filename: "fatura.pdf",
					Data:     []byte("%PDF-1.4"),
				},
			},
		}
		blobs := blob.NewMemoryStore()
		runner := NewRunner(
			browser.NewScriptedDriver(session),
			&fakeCredentials{},
			repo,
			blobs,
			testLogger(),
		)

		result, err := runner.Run(ctx, connection)
		require.NoError(t, err)
		assert.Empty(t, result.NewBills)
		assert.Equal(t, 1, result.UpdatedBills)

		stored, err := repo.FindByRemoteID(ctx, connection.ID, remoteID)
		require.NoError(t, err)
		require.NotNil(t, stored.AttachmentRef)
		assert.Equal(t, "fatura.pdf", *stored.AttachmentFilename)
		assert.Equal(t, 1, blobs.Len())
	})

	t.Run("bills that already have an attachment are not downloaded again", func(t *testing.T) {
		recipe := portalRecipe()
		recipe.DownloadSelector = "a.download"
		connection := testConnection(recipe)

		remoteID := "INV-100"
		ref := "blob-existing"
		repo := newFakeBillRepo()
		existing := &models.Bill{
			ID:            uuid.New(),
			TenantID:      connection.TenantID,
			ConnectionID:  connection.ID,
			ExecutiveID:   connection.ExecutiveID,
			AccountTypeID: connection.AccountTypeID,
			RemoteID:      &remoteID,
			AttachmentRef: &ref,
			Status:        models.BillStatusOpen,
		}
		require.NoError(t, repo.Create(ctx, existing))

		session := &browser.ScriptedSession{
			Rows: []map[string]string{
				{"remote_id": "INV-100", "amount": "10,00", "due_date": "15/08/2025"},
			},
			Downloads: map[string]*browser.Download{
				"tr.bill:nth-child(1) a.download": {
					Filename: "fatura.pdf",
					Data:     []byte("%PDF-1.4"),
				},
			},
		}
		blobs := blob.NewMemoryStore()
		runner := NewRunner(
			browser.NewScriptedDriver(session),
			&fakeCredentials{},
			repo,
			blobs,
			testLogger(),
		)

		_, err := runner.Run(ctx, connection)
		require.NoError(t, err)

		stored, err := repo.FindByRemoteID(ctx, connection.ID, remoteID)
		require.NoError(t, err)
		assert.Equal(t, ref, *stored.AttachmentRef)
		assert.Zero(t, blobs.Len())
	})

	t.Run("downloads by url when the recipe has no selector", func(t *testing.T) {
		recipe := portalRecipe()
		recipe.DownloadURL = "https://portal.example.com.br/fatura/atual.pdf"

		session := &browser.ScriptedSession{
			Rows: []map[string]string{
				{"remote_id": "INV-100", "amount": "10,00", "due_date": "15/08/2025"},
			},
			Downloads: map[string]*browser.Download{
				"https://portal.example.com.br/fatura/atual.pdf": {
					Filename: "atual.pdf",
					Data:     []byte("%PDF-1.4"),
				},
			},
		}
		blobs := blob.NewMemoryStore()
		runner := NewRunner(
			browser.NewScriptedDriver(session),
			&fakeCredentials{},
			newFakeBillRepo(),
			blobs,
			testLogger(),
		)

		result, err := runner.Run(ctx, testConnection(recipe))
		require.NoError(t, err)
		require.Len(t, result.NewBills, 1)

		bill := result.NewBills[0]
		require.NotNil(t, bill.AttachmentRef)
		assert.Equal(t, "atual.pdf", *bill.AttachmentFilename)
		assert.Contains(t, session.Navigated, "https://portal.example.com.br/fatura/atual.pdf")
		assert.Equal(t, 1, blobs.Len())
	})

	t.Run("attachment failures keep the bill without attachment", func(t *testing.T) {
		recipe := portalRecipe()
		recipe.DownloadSelector = "a.download"

		session := &browser.ScriptedSession{
			Rows: []map[string]string{
				{"remote_id": "INV-100", "amount": "10,00", "due_date": "15/08/2025"},
			},
			// No canned download: AwaitDownload times out
		}
		runner := NewRunner(
			browser.NewScriptedDriver(session),
			&fakeCredentials{},
			newFakeBillRepo(),
			blob.NewMemoryStore(),
			testLogger(),
		)

		result, err := runner.Run(ctx, testConnection(recipe))
		require.NoError(t, err)
		require.Len(t, result.NewBills, 1)
		assert.Nil(t, result.NewBills[0].AttachmentRef)
	})

	t.Run("portal failures abort the run", func(t *testing.T) {
		session := &browser.ScriptedSession{
			Errs: map[string]error{
				"https://portal.example.com.br/login": browser.ErrAutomationFailed,
			},
		}
		runner := NewRunner(
			browser.NewScriptedDriver(session),
			&fakeCredentials{},
			newFakeBillRepo(),
			blob.NewMemoryStore(),
			testLogger(),
		)

		_, err := runner.Run(ctx, testConnection(portalRecipe()))
		assert.ErrorIs(t, err, browser.ErrAutomationFailed)
	})
}
