// Package scheduler drives the periodic synchronization and alert refresh
// passes. Each pass carries a reentrancy guard so a slow pass is skipped on
// the next tick instead of piling up.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when Start is called twice
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultSyncInterval is how often all active connections are synchronized
	DefaultSyncInterval = 30 * time.Minute

	// DefaultAlertInterval is how often due alerts are recomputed globally
	DefaultAlertInterval = time.Hour
)

// SyncRunner runs one scheduled synchronization pass
type SyncRunner interface {
	RunScheduledSync(ctx context.Context) error
}

// AlertRefresher runs one global due-alert refresh pass
type AlertRefresher interface {
	RunGlobalRefresh(ctx context.Context) error
}

// Config holds scheduler configuration
type Config struct {
	// SyncInterval is the period between sync passes
	SyncInterval time.Duration

	// AlertInterval is the period between alert refresh passes
	AlertInterval time.Duration
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		SyncInterval:  DefaultSyncInterval,
		AlertInterval: DefaultAlertInterval,
	}
}

// Scheduler ticks the sync and alert passes
type Scheduler struct {
	sync   SyncRunner
	alerts AlertRefresher
	config Config
	logger ectologger.Logger

	// Reentrancy guards; a tick that finds its pass active is dropped
	syncActive  atomic.Bool
	alertActive atomic.Bool

	// Coordination
	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler
func NewScheduler(syncRunner SyncRunner, alerts AlertRefresher, config Config, logger ectologger.Logger) *Scheduler {
	if config.SyncInterval <= 0 {
		config.SyncInterval = DefaultSyncInterval
	}
	if config.AlertInterval <= 0 {
		config.AlertInterval = DefaultAlertInterval
	}

	return &Scheduler{
		sync:     syncRunner,
		alerts:   alerts,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start starts the tick loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting scheduler: sync_interval=%s alert_interval=%s",
		s.config.SyncInterval, s.config.AlertInterval)

	go s.loop(ctx)
	return nil
}

// Stop stops the scheduler and waits for in-flight passes to finish
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")
	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning reports whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.stoppedC)

	syncTicker := time.NewTicker(s.config.SyncInterval)
	defer syncTicker.Stop()
	alertTicker := time.NewTicker(s.config.AlertInterval)
	defer alertTicker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Scheduler loop stopping")
			s.wg.Wait()
			return
		case <-syncTicker.C:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.RunSyncPass(ctx)
			}()
		case <-alertTicker.C:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.RunAlertPass(ctx)
			}()
		}
	}
}

// RunSyncPass runs one synchronization pass unless one is already active
func (s *Scheduler) RunSyncPass(ctx context.Context) {
	if !s.syncActive.CompareAndSwap(false, true) {
		s.logger.WithContext(ctx).Warn("Previous sync pass still active, skipping tick")
		return
	}
	defer s.syncActive.Store(false)

	ctx, span := tracing.StartSpan(ctx, "Scheduler.RunSyncPass")
	defer span.End()

	start := time.Now()
	if err := s.sync.RunScheduledSync(ctx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Sync pass failed")
		return
	}

	s.logger.WithContext(ctx).Debugf("Sync pass completed in %s", time.Since(start))
}

// RunAlertPass runs one global alert refresh unless one is already active
func (s *Scheduler) RunAlertPass(ctx context.Context) {
	if !s.alertActive.CompareAndSwap(false, true) {
		s.logger.WithContext(ctx).Warn("Previous alert pass still active, skipping tick")
		return
	}
	defer s.alertActive.Store(false)

	ctx, span := tracing.StartSpan(ctx, "Scheduler.RunAlertPass")
	defer span.End()

	start := time.Now()
	if err := s.alerts.RunGlobalRefresh(ctx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Alert pass failed")
		return
	}

	s.logger.WithContext(ctx).Debugf("Alert pass completed in %s", time.Since(start))
}
