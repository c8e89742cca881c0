package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
)

const (
	// DefaultRequestTimeout is the default sidecar request timeout. Download
	// waits override it per call.
	DefaultRequestTimeout = 90 * time.Second

	// MaxDownloadSize caps captured downloads (25MB)
	MaxDownloadSize = 25 * 1024 * 1024
)

// RemoteConfig holds configuration for the browser sidecar client
type RemoteConfig struct {
	// BaseURL is the address of the browser sidecar, e.g. http://browser:3000
	BaseURL string

	// Timeout bounds a single sidecar request
	Timeout time.Duration
}

// RemoteDriver drives a headless browser through its HTTP sidecar. Each
// session maps to one isolated browser context in the sidecar.
type RemoteDriver struct {
	baseURL string
	client  *http.Client
	logger  ectologger.Logger
}

// NewRemoteDriver creates a driver for the browser sidecar
func NewRemoteDriver(cfg RemoteConfig, logger ectologger.Logger) *RemoteDriver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &RemoteDriver{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// NewSession opens a fresh browser context in the sidecar
func (d *RemoteDriver) NewSession(ctx context.Context) (Session, error) {
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := d.post(ctx, "/sessions", nil, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to open session: %v", ErrAutomationFailed, err)
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"session_id": resp.SessionID,
	}).Debug("Opened browser session")

	return &remoteSession{driver: d, id: resp.SessionID}, nil
}

type remoteSession struct {
	driver *RemoteDriver
	id     string
}

func (s *remoteSession) Navigate(ctx context.Context, url string) error {
	body := map[string]any{"url": url}
	if err := s.driver.post(ctx, s.path("/navigate"), body, nil); err != nil {
		return fmt.Errorf("%w: navigate %s: %v", ErrAutomationFailed, url, err)
	}
	return nil
}

func (s *remoteSession) Fill(ctx context.Context, selector, value string) error {
	body := map[string]any{"selector": selector, "value": value}
	if err := s.driver.post(ctx, s.path("/fill"), body, nil); err != nil {
		return fmt.Errorf("%w: fill %s: %v", ErrAutomationFailed, selector, err)
	}
	return nil
}

func (s *remoteSession) Click(ctx context.Context, selector string) error {
	body := map[string]any{"selector": selector}
	if err := s.driver.post(ctx, s.path("/click"), body, nil); err != nil {
		return fmt.Errorf("%w: click %s: %v", ErrAutomationFailed, selector, err)
	}
	return nil
}

func (s *remoteSession) ExtractText(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultExtractTimeout
	}

	body := map[string]any{"selector": selector, "timeout_ms": timeout.Milliseconds()}
	var resp struct {
		Found bool   `json:"found"`
		Text  string `json:"text"`
	}
	if err := s.driver.post(ctx, s.path("/extract"), body, &resp); err != nil {
		return "", fmt.Errorf("%w: extract %s: %v", ErrAutomationFailed, selector, err)
	}
	if !resp.Found {
		return "", fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}

	return resp.Text, nil
}

func (s *remoteSession) ExtractRows(ctx context.Context, rowSelector string, fieldSelectors map[string]string, timeout time.Duration) ([]map[string]string, error) {
	if timeout <= 0 {
		timeout = DefaultExtractTimeout
	}

	body := map[string]any{
		"row_selector":    rowSelector,
		"field_selectors": fieldSelectors,
		"timeout_ms":      timeout.Milliseconds(),
	}
	var resp struct {
		Rows []map[string]string `json:"rows"`
	}
	if err := s.driver.post(ctx, s.path("/rows"), body, &resp); err != nil {
		return nil, fmt.Errorf("%w: extract rows %s: %v", ErrAutomationFailed, rowSelector, err)
	}

	return resp.Rows, nil
}

func (s *remoteSession) AwaitDownload(ctx context.Context, selector string, timeout time.Duration) (*Download, error) {
	return s.download(ctx, map[string]any{"selector": selector}, selector, timeout)
}

func (s *remoteSession) DownloadFromURL(ctx context.Context, url string, timeout time.Duration) (*Download, error) {
	return s.download(ctx, map[string]any{"url": url}, url, timeout)
}

// download posts a capture request to the sidecar. The sidecar clicks the
// selector or navigates to the url and reports the captured file.
func (s *remoteSession) download(ctx context.Context, body map[string]any, target string, timeout time.Duration) (*Download, error) {
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	body["timeout_ms"] = timeout.Milliseconds()

	// The sidecar request must outlive the download window
	ctx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()

	var resp struct {
		Completed   bool   `json:"completed"`
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
		Data        string `json:"data"`
	}
	if err := s.driver.post(ctx, s.path("/download"), body, &resp); err != nil {
		return nil, fmt.Errorf("%w: download %s: %v", ErrAutomationFailed, target, err)
	}
	if !resp.Completed {
		return nil, fmt.Errorf("%w: %s", ErrDownloadTimeout, target)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed download payload: %v", ErrAutomationFailed, err)
	}
	if len(data) > MaxDownloadSize {
		return nil, fmt.Errorf("%w: download too large: %d bytes", ErrAutomationFailed, len(data))
	}

	return &Download{
		Filename:    resp.Filename,
		ContentType: resp.ContentType,
		Data:        data,
	}, nil
}

func (s *remoteSession) Close(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.driver.baseURL+"/sessions/"+s.id, nil)
	if err != nil {
		return err
	}

	resp, err := s.driver.client.Do(req)
	if err != nil {
		s.driver.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"session_id": s.id,
		}).Warn("Failed to close browser session")
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return nil
}

func (s *remoteSession) path(suffix string) string {
	return "/sessions/" + s.id + suffix
}

func (d *RemoteDriver) post(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize*2))
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sidecar returned %d: %s", resp.StatusCode, truncate(raw, 256))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("malformed sidecar response: %w", err)
		}
	}

	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
