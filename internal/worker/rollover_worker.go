package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/ledger-gate/internal/observability"
	"go.uber.org/zap"
)

// LimitResetter restores stale daily limits.
type LimitResetter interface {
	ResetDailyLimitsIfStale(ctx context.Context) (int, error)
}

// RolloverWorker applies the daily limit reset shortly after midnight so
// reads between rollover and the next transfer see fresh rows. Transfers
// still reset on their own before executing.
type RolloverWorker struct {
	store        LimitResetter
	pollInterval time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// NewRolloverWorker creates a worker polling once a minute.
func NewRolloverWorker(store LimitResetter) *RolloverWorker {
	return &RolloverWorker{
		store:        store,
		pollInterval: time.Minute,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval sets the poll interval for the worker.
func (w *RolloverWorker) WithPollInterval(interval time.Duration) *RolloverWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// Start runs until Stop is called or the context is canceled.
func (w *RolloverWorker) Start(ctx context.Context) {
	zap.L().Info("rollover worker starting", zap.Duration("poll_interval", w.pollInterval))
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("rollover worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("rollover worker stop signal received")
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *RolloverWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *RolloverWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// ProcessOnce performs a single reset pass immediately.
func (w *RolloverWorker) ProcessOnce(ctx context.Context) {
	if _, err := w.store.ResetDailyLimitsIfStale(ctx); err != nil {
		observability.IncrementWorkerRun("rollover", "failed")
		zap.L().Error("daily limit rollover failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("rollover", "success")
}
