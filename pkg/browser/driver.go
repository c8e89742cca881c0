// Package browser defines the narrow boundary to the headless browser used
// for portal automation. Connector code never sees browser internals; it
// speaks in navigations, form fills, clicks and text extractions.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAutomationFailed wraps any failure inside the browser sidecar
	ErrAutomationFailed = errors.New("browser automation failed")

	// ErrElementNotFound is returned when a selector matches nothing before
	// the extraction timeout
	ErrElementNotFound = errors.New("element not found")

	// ErrDownloadTimeout is returned when no download starts within the
	// configured window
	ErrDownloadTimeout = errors.New("download timed out")
)

const (
	// DefaultExtractTimeout bounds a single text extraction
	DefaultExtractTimeout = 5 * time.Second

	// DefaultDownloadTimeout bounds waiting for a triggered download
	DefaultDownloadTimeout = 60 * time.Second
)

// Download is a file captured from the portal during a session
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Session is one isolated browser context. Sessions are not safe for
// concurrent use; each sync run drives its own.
type Session interface {
	// Navigate loads a URL and waits for the page to settle
	Navigate(ctx context.Context, url string) error

	// Fill types a value into the element matched by selector
	Fill(ctx context.Context, selector, value string) error

	// Click clicks the element matched by selector
	Click(ctx context.Context, selector string) error

	// ExtractText returns the trimmed text content of the first element
	// matched by selector, waiting up to timeout for it to appear
	ExtractText(ctx context.Context, selector string, timeout time.Duration) (string, error)

	// ExtractRows matches rowSelector and resolves each field selector
	// relative to every matched row. Fields whose selector matches nothing
	// inside a row are absent from that row's map.
	ExtractRows(ctx context.Context, rowSelector string, fieldSelectors map[string]string, timeout time.Duration) ([]map[string]string, error)

	// AwaitDownload clicks selector and waits up to timeout for the
	// resulting download to complete
	AwaitDownload(ctx context.Context, selector string, timeout time.Duration) (*Download, error)

	// DownloadFromURL navigates to url and waits up to timeout for the
	// resulting download to complete
	DownloadFromURL(ctx context.Context, url string, timeout time.Duration) (*Download, error)

	// Close tears down the browser context
	Close(ctx context.Context) error
}

// Driver opens browser sessions
type Driver interface {
	NewSession(ctx context.Context) (Session, error)
}
