// Package connector drives biller portals through the browser boundary and
// reconciles the extracted rows against stored bills.
package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/blob"
	"github.com/Ramsey-B/aster/pkg/browser"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/repositories"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Extraction field names. They key both the rows returned by the browser
// boundary and the raw snapshot stored on the bill.
const (
	fieldRemoteID  = "remote_id"
	fieldReference = "reference"
	fieldAmount    = "amount"
	fieldIssueDate = "issue_date"
	fieldDueDate   = "due_date"
)

// CredentialSource yields the decrypted credential payload for a connection
type CredentialSource interface {
	Load(ctx context.Context, connectionID uuid.UUID) (models.CredentialPayload, error)
}

// Result summarizes one connector run
type Result struct {
	RowsExtracted int
	UpdatedBills  int
	NewBills      []*models.Bill
}

// Runner executes extraction recipes against portals
type Runner struct {
	driver      browser.Driver
	credentials CredentialSource
	bills       repositories.BillRepo
	blobs       blob.Store
	logger      ectologger.Logger
}

// NewRunner creates a connector runner
func NewRunner(
	driver browser.Driver,
	credentials CredentialSource,
	bills repositories.BillRepo,
	blobs blob.Store,
	logger ectologger.Logger,
) *Runner {
	return &Runner{
		driver:      driver,
		credentials: credentials,
		bills:       bills,
		blobs:       blobs,
		logger:      logger,
	}
}

// Run drives the connection's portal, extracts bill rows and reconciles them
// against stored bills. Manual connections are a no-op: their bills arrive
// through direct registration, not extraction. Database failures abort the
// run; per-cell parse failures and attachment problems degrade to nulls
// instead.
func (r *Runner) Run(ctx context.Context, connection *models.Connection) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectorRunner.Run")
	defer span.End()

	if connection.Mode != models.ModeAutomated {
		return &Result{}, nil
	}

	recipe := connection.Recipe.GetValue()
	if err := recipe.Validate(connection.Mode); err != nil {
		return nil, fmt.Errorf("invalid extraction recipe: %w", err)
	}

	credentials, err := r.credentials.Load(ctx, connection.ID)
	if err != nil {
		return nil, err
	}

	session, err := r.driver.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close(ctx)

	if err := r.login(ctx, session, connection, &recipe, credentials); err != nil {
		return nil, err
	}

	rows, err := r.extractRows(ctx, session, &recipe)
	if err != nil {
		return nil, err
	}

	fetchedAt := time.Now().UTC()
	result := &Result{RowsExtracted: len(rows)}

	for i, raw := range rows {
		row := parseRow(raw)

		existing, err := r.findExisting(ctx, connection.ID, row)
		if err != nil {
			return nil, err
		}

		if existing != nil {
			MergeRow(existing, row, fetchedAt)
			if !existing.HasAttachment() {
				r.attach(ctx, session, &recipe, i, existing)
			}
			if err := r.bills.Update(ctx, existing); err != nil {
				return nil, err
			}
			result.UpdatedBills++
			continue
		}

		bill := NewBillFromRow(connection, row, fetchedAt)
		r.attach(ctx, session, &recipe, i, bill)
		if err := r.bills.Create(ctx, bill); err != nil {
			return nil, err
		}
		result.NewBills = append(result.NewBills, bill)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"connection_id": connection.ID,
		"rows":          result.RowsExtracted,
		"new_bills":     len(result.NewBills),
		"updated_bills": result.UpdatedBills,
	}).Info("Connector run completed")

	return result, nil
}

// login walks the recipe's authentication steps. Recipes without a login URL
// skip straight to the bills page.
func (r *Runner) login(ctx context.Context, session browser.Session, connection *models.Connection, recipe *models.ExtractionRecipe, credentials models.CredentialPayload) error {
	loginURL := connection.EffectiveLoginURL()
	if loginURL != "" {
		if err := session.Navigate(ctx, loginURL); err != nil {
			return err
		}

		if recipe.UsernameSelector != "" {
			if err := session.Fill(ctx, recipe.UsernameSelector, credentials.Username); err != nil {
				return err
			}
		}
		if recipe.PasswordSelector != "" {
			if err := session.Fill(ctx, recipe.PasswordSelector, credentials.Password); err != nil {
				return err
			}
		}
		if recipe.SubmitSelector != "" {
			if err := session.Click(ctx, recipe.SubmitSelector); err != nil {
				return err
			}
		}
		if recipe.PostLoginURL != "" {
			if err := session.Navigate(ctx, recipe.PostLoginURL); err != nil {
				return err
			}
		}
	}

	if recipe.BillsURL != "" {
		return session.Navigate(ctx, recipe.BillsURL)
	}

	return nil
}

// extractRows pulls the raw bill rows off the current page. Recipes without a
// row selector describe single-bill portals; each field is extracted on its
// own and missing elements just leave the field out.
func (r *Runner) extractRows(ctx context.Context, session browser.Session, recipe *models.ExtractionRecipe) ([]map[string]string, error) {
	selectors := fieldSelectors(recipe)

	if recipe.BillRowSelector != "" {
		return session.ExtractRows(ctx, recipe.BillRowSelector, selectors, browser.DefaultExtractTimeout)
	}

	row := make(map[string]string)
	for field, selector := range selectors {
		text, err := session.ExtractText(ctx, selector, browser.DefaultExtractTimeout)
		if errors.Is(err, browser.ErrElementNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		row[field] = text
	}

	if len(row) == 0 {
		return nil, nil
	}
	return []map[string]string{row}, nil
}

func fieldSelectors(recipe *models.ExtractionRecipe) map[string]string {
	selectors := make(map[string]string)
	if recipe.RemoteIDSelector != "" {
		selectors[fieldRemoteID] = recipe.RemoteIDSelector
	}
	if recipe.ReferenceSelector != "" {
		selectors[fieldReference] = recipe.ReferenceSelector
	}
	if recipe.AmountSelector != "" {
		selectors[fieldAmount] = recipe.AmountSelector
	}
	if recipe.IssueDateSelector != "" {
		selectors[fieldIssueDate] = recipe.IssueDateSelector
	}
	if recipe.DueDateSelector != "" {
		selectors[fieldDueDate] = recipe.DueDateSelector
	}
	return selectors
}

// parseRow turns raw cell texts into typed values. Malformed cells become
// nil, never an error.
func parseRow(raw map[string]string) ExtractedRow {
	return ExtractedRow{
		RemoteID:  textField(raw, fieldRemoteID),
		Reference: textField(raw, fieldReference),
		Amount:    ParseAmount(raw[fieldAmount]),
		IssueDate: ParseDate(raw[fieldIssueDate]),
		DueDate:   ParseDate(raw[fieldDueDate]),
		Raw:       raw,
	}
}

func textField(raw map[string]string, field string) *string {
	text := strings.TrimSpace(raw[field])
	if text == "" {
		return nil
	}
	return &text
}

// findExisting resolves the dedup identity of a row. The portal identifier
// wins; reference plus due date is the fallback; rows with neither always
// create.
func (r *Runner) findExisting(ctx context.Context, connectionID uuid.UUID, row ExtractedRow) (*models.Bill, error) {
	if row.RemoteID != nil {
		return r.bills.FindByRemoteID(ctx, connectionID, *row.RemoteID)
	}
	if row.Reference != nil && row.DueDate != nil {
		return r.bills.FindByReferenceAndDueDate(ctx, connectionID, *row.Reference, *row.DueDate)
	}
	return nil, nil
}

// attach downloads the row's document and links it to the bill. Called for
// new bills and for existing bills that have no document yet. Best effort:
// any failure leaves the bill without an attachment.
func (r *Runner) attach(ctx context.Context, session browser.Session, recipe *models.ExtractionRecipe, rowIndex int, bill *models.Bill) {
	if !recipe.HasDownload() {
		return
	}

	timeout := browser.DefaultDownloadTimeout
	if recipe.DownloadTimeoutMs > 0 {
		timeout = time.Duration(recipe.DownloadTimeoutMs) * time.Millisecond
	}

	var (
		download *browser.Download
		source   string
		err      error
	)
	if recipe.DownloadURL != "" {
		source = recipe.DownloadURL
		download, err = session.DownloadFromURL(ctx, recipe.DownloadURL, timeout)
	} else {
		source = recipe.DownloadSelector
		if recipe.BillRowSelector != "" {
			source = fmt.Sprintf("%s:nth-child(%d) %s", recipe.BillRowSelector, rowIndex+1, recipe.DownloadSelector)
		}
		download, err = session.AwaitDownload(ctx, source, timeout)
	}
	if err != nil {
		metrics.AttachmentDownloads.WithLabelValues("error").Inc()
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": bill.ConnectionID,
			"source":        source,
		}).Warn("Attachment download failed, keeping bill without attachment")
		return
	}

	contentType := download.ContentType
	if contentType == "" {
		contentType = GuessMimeType(download.Filename)
	}

	ref, err := r.blobs.Upload(ctx, download.Filename, contentType, download.Data)
	if err != nil {
		metrics.AttachmentDownloads.WithLabelValues("error").Inc()
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": bill.ConnectionID,
			"filename":      download.Filename,
		}).Warn("Attachment upload failed, keeping bill without attachment")
		return
	}

	if bill.HasAttachment() {
		if err := r.blobs.Delete(ctx, *bill.AttachmentRef); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"bill_id": bill.ID,
				"ref":     *bill.AttachmentRef,
			}).Warn("Failed to delete replaced attachment")
		}
	}

	metrics.AttachmentDownloads.WithLabelValues("success").Inc()
	size := int64(len(download.Data))
	bill.AttachmentRef = &ref
	bill.AttachmentFilename = &download.Filename
	bill.AttachmentMimeType = &contentType
	bill.AttachmentSize = &size
}
