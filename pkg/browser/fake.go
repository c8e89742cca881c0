package browser

import (
	"context"
	"sync"
	"time"
)

// ScriptedDriver hands out a fixed session. Exported for use in tests of
// packages that drive portals.
type ScriptedDriver struct {
	Session *ScriptedSession

	// NewSessionErr, when set, makes NewSession fail
	NewSessionErr error

	mu       sync.Mutex
	sessions int
}

// NewScriptedDriver creates a driver serving the given session
func NewScriptedDriver(session *ScriptedSession) *ScriptedDriver {
	return &ScriptedDriver{Session: session}
}

func (d *ScriptedDriver) NewSession(context.Context) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.NewSessionErr != nil {
		return nil, d.NewSessionErr
	}
	d.sessions++
	return d.Session, nil
}

// SessionCount reports how many sessions were opened
func (d *ScriptedDriver) SessionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions
}

// ScriptedSession is a canned Session for tests. Configure the response maps,
// then assert on the recorded interactions.
type ScriptedSession struct {
	// Texts maps selectors to the text ExtractText returns. Missing
	// selectors yield ErrElementNotFound.
	Texts map[string]string

	// Rows is returned by ExtractRows
	Rows []map[string]string

	// Downloads maps selectors or URLs to canned downloads. Missing keys
	// yield ErrDownloadTimeout.
	Downloads map[string]*Download

	// Errs maps selectors or URLs to forced errors, checked before the
	// response maps
	Errs map[string]error

	mu        sync.Mutex
	Navigated []string
	Filled    map[string]string
	Clicked   []string
	Closed    bool
}

func (s *ScriptedSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Errs[url]; err != nil {
		return err
	}
	s.Navigated = append(s.Navigated, url)
	return nil
}

func (s *ScriptedSession) Fill(_ context.Context, selector, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Errs[selector]; err != nil {
		return err
	}
	if s.Filled == nil {
		s.Filled = make(map[string]string)
	}
	s.Filled[selector] = value
	return nil
}

func (s *ScriptedSession) Click(_ context.Context, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Errs[selector]; err != nil {
		return err
	}
	s.Clicked = append(s.Clicked, selector)
	return nil
}

func (s *ScriptedSession) ExtractText(_ context.Context, selector string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Errs[selector]; err != nil {
		return "", err
	}
	text, ok := s.Texts[selector]
	if !ok {
		return "", ErrElementNotFound
	}
	return text, nil
}

func (s *ScriptedSession) ExtractRows(_ context.Context, rowSelector string, _ map[string]string, _ time.Duration) ([]map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Errs[rowSelector]; err != nil {
		return nil, err
	}
	return s.Rows, nil
}

func (s *ScriptedSession) AwaitDownload(_ context.Context, selector string, _ time.Duration) (*Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Errs[selector]; err != nil {
		return nil, err
	}
	download, ok := s.Downloads[selector]
	if !ok {
		return nil, ErrDownloadTimeout
	}
	return download, nil
}

func (s *ScriptedSession) DownloadFromURL(_ context.Context, url string, _ time.Duration) (*Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Errs[url]; err != nil {
		return nil, err
	}
	s.Navigated = append(s.Navigated, url)
	download, ok := s.Downloads[url]
	if !ok {
		return nil, ErrDownloadTimeout
	}
	return download, nil
}

func (s *ScriptedSession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Closed = true
	return nil
}
