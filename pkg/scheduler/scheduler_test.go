package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type countingRunner struct {
	calls atomic.Int32
	block chan struct{}
}

func (c *countingRunner) RunScheduledSync(context.Context) error {
	c.calls.Add(1)
	if c.block != nil {
		<-c.block
	}
	return nil
}

type countingRefresher struct {
	calls atomic.Int32
}

func (c *countingRefresher) RunGlobalRefresh(context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestScheduler_StartStop(t *testing.T) {
	ctx := context.Background()
	runner := &countingRunner{}
	refresher := &countingRefresher{}

	s := NewScheduler(runner, refresher, Config{
		SyncInterval:  10 * time.Millisecond,
		AlertInterval: 10 * time.Millisecond,
	}, testLogger())

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(ctx), ErrSchedulerAlreadyRunning)

	// Give a few ticks time to fire
	time.Sleep(60 * time.Millisecond)

	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())

	assert.Greater(t, runner.calls.Load(), int32(0))
	assert.Greater(t, refresher.calls.Load(), int32(0))

	// Stopping twice is a no-op
	require.NoError(t, s.Stop(ctx))
}

func TestScheduler_SyncPassReentrancyGuard(t *testing.T) {
	ctx := context.Background()
	runner := &countingRunner{block: make(chan struct{})}

	s := NewScheduler(runner, &countingRefresher{}, DefaultConfig(), testLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.RunSyncPass(ctx)
	}()

	// Wait for the first pass to be inside the runner
	require.Eventually(t, func() bool {
		return runner.calls.Load() == 1
	}, time.Second, time.Millisecond)

	// A second pass while the first is active is dropped
	s.RunSyncPass(ctx)
	assert.Equal(t, int32(1), runner.calls.Load())

	close(runner.block)
	wg.Wait()

	// After the first pass finishes the guard clears
	s.RunSyncPass(ctx)
	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestScheduler_AlertPassReentrancyGuard(t *testing.T) {
	ctx := context.Background()
	refresher := &countingRefresher{}
	s := NewScheduler(&countingRunner{}, refresher, DefaultConfig(), testLogger())

	s.alertActive.Store(true)
	s.RunAlertPass(ctx)
	assert.Zero(t, refresher.calls.Load())

	s.alertActive.Store(false)
	s.RunAlertPass(ctx)
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestScheduler_DefaultsApplied(t *testing.T) {
	s := NewScheduler(&countingRunner{}, &countingRefresher{}, Config{}, testLogger())
	assert.Equal(t, DefaultSyncInterval, s.config.SyncInterval)
	assert.Equal(t, DefaultAlertInterval, s.config.AlertInterval)
}
