package models

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ErrRecipeNoFields is returned when an automated connection's recipe has no
// field selectors at all; such a recipe can never produce a bill.
var ErrRecipeNoFields = errors.New("extraction recipe defines no field selectors")

// ExtractionRecipe describes how to drive a biller portal and pull bill rows
// out of it. All selectors are CSS selectors evaluated by the automation
// driver. Validated at connection-creation time, not at run time.
type ExtractionRecipe struct {
	// Login
	LoginURL         string `json:"login_url,omitempty" validate:"omitempty,url"`
	UsernameSelector string `json:"username_selector,omitempty"`
	PasswordSelector string `json:"password_selector,omitempty"`
	SubmitSelector   string `json:"submit_selector,omitempty"`

	// Post-login navigation
	PostLoginURL string `json:"post_login_url,omitempty" validate:"omitempty,url"`
	BillsURL     string `json:"bills_url,omitempty" validate:"omitempty,url"`

	// Per-row extraction
	BillRowSelector   string `json:"bill_row_selector,omitempty"`
	RemoteIDSelector  string `json:"remote_id_selector,omitempty"`
	ReferenceSelector string `json:"reference_selector,omitempty"`
	AmountSelector    string `json:"amount_selector,omitempty"`
	IssueDateSelector string `json:"issue_date_selector,omitempty"`
	DueDateSelector   string `json:"due_date_selector,omitempty"`

	// Attachment download
	DownloadSelector  string `json:"download_selector,omitempty"`
	DownloadURL       string `json:"download_url,omitempty" validate:"omitempty,url"`
	DownloadTimeoutMs int    `json:"download_timeout_ms,omitempty" validate:"omitempty,min=1000,max=300000"`
}

// Validate checks the recipe's structural constraints. A recipe for an
// automated connection must at least know how to find bill fields.
func (r *ExtractionRecipe) Validate(mode AutomationMode) error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if mode != ModeAutomated {
		return nil
	}
	if r.RemoteIDSelector == "" && r.ReferenceSelector == "" && r.AmountSelector == "" && r.DueDateSelector == "" {
		return ErrRecipeNoFields
	}
	return nil
}

// HasDownload reports whether the recipe specifies an attachment source.
func (r *ExtractionRecipe) HasDownload() bool {
	return r.DownloadSelector != "" || r.DownloadURL != ""
}
