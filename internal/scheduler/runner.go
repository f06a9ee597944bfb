// Package scheduler drives the periodic sweep over due reminder schedules.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andreiandoo/epas-sub045/internal/model"
	"github.com/andreiandoo/epas-sub045/internal/tenant"
	"github.com/andreiandoo/epas-sub045/pkg/logger"
	"github.com/andreiandoo/epas-sub045/pkg/utils"
)

// Sweeper processes due schedules up to a batch limit.
type Sweeper interface {
	ProcessDueSchedules(ctx context.Context, limit int) (model.SweepResult, error)
}

// Runner ticks at a fixed interval and runs one sweep per tick. Sweeps never
// overlap: a tick that arrives while a sweep is still in flight is dropped,
// the next tick picks the rows up again.
type Runner struct {
	sweeper    Sweeper
	tenantID   string
	interval   time.Duration
	batchLimit int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	sweepMu sync.Mutex
}

func NewRunner(sweeper Sweeper, tenantID string, interval time.Duration, batchLimit int) (*Runner, error) {
	if sweeper == nil {
		return nil, errors.New("sweeper must not be nil")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if batchLimit <= 0 {
		return nil, errors.New("batch limit must be positive")
	}
	return &Runner{
		sweeper:    sweeper,
		tenantID:   tenantID,
		interval:   interval,
		batchLimit: batchLimit,
	}, nil
}

// Start launches the tick loop. Calling Start on a running runner is a no-op.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		logger.Log.Warn("Schedule runner already started")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	logger.Log.Info("Starting schedule runner",
		zap.Duration("interval", r.interval),
		zap.Int("batch_limit", r.batchLimit))

	done := r.done
	utils.SafeGo(func() {
		defer close(done)
		r.loop(ctx)
	}, func(p interface{}, stack []byte) {
		logger.Log.Error("Schedule runner loop panicked",
			zap.Any("panic", p), zap.ByteString("stack", stack))
	})
}

// Stop cancels the loop and waits for the in-flight sweep to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	<-done
	logger.Log.Info("Schedule runner stopped")
}

// IsRunning reports whether the tick loop is active.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Run once on startup so reminders missed during downtime go out
	// without waiting a full interval.
	r.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. It is also called from the manual trigger
// endpoint, so it guards against overlapping with a ticker-driven sweep.
func (r *Runner) RunOnce(ctx context.Context) model.SweepResult {
	if !r.sweepMu.TryLock() {
		logger.Log.Debug("Sweep already in flight, skipping tick")
		return model.SweepResult{}
	}
	defer r.sweepMu.Unlock()

	ctx = tenant.WithTenantID(ctx, r.tenantID)
	defer utils.RecoverWithLog(ctx, "schedule sweep")

	result, err := r.sweeper.ProcessDueSchedules(ctx, r.batchLimit)
	if err != nil {
		logger.FromContext(ctx).Error("Schedule sweep failed", zap.Error(err))
		return result
	}
	return result
}
