package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/andreiandoo/epas-sub045/internal/config"
	"github.com/andreiandoo/epas-sub045/internal/model"
)

// DispatchTaskData holds one due schedule handed to the worker pool.
type DispatchTaskData struct {
	Ctx      context.Context // Context derived for the task, NOT the original request context
	Schedule model.Schedule
	Done     func(status string) // called with the terminal schedule status
}

// IDispatchWorker defines the interface for the schedule dispatch pool.
type IDispatchWorker interface {
	SubmitTask(taskData DispatchTaskData) error
	Stop()
}

// DispatchWorker fans due schedules out over an ants pool so one slow
// provider call does not stall the whole sweep.
type DispatchWorker struct {
	pool       *ants.PoolWithFunc
	service    *MessagingService
	cfg        config.DispatchWorkerPoolConfig
	baseLogger *zap.Logger
}

// Ensure DispatchWorker implements IDispatchWorker
var _ IDispatchWorker = (*DispatchWorker)(nil)

// NewDispatchWorker creates and initializes the schedule dispatch pool.
func NewDispatchWorker(
	cfg config.DispatchWorkerPoolConfig,
	service *MessagingService,
	baseLogger *zap.Logger,
) (*DispatchWorker, error) {
	worker := &DispatchWorker{
		service:    service,
		cfg:        cfg,
		baseLogger: baseLogger.Named("dispatch_worker"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		taskData, ok := i.(DispatchTaskData)
		if !ok {
			worker.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		worker.processDispatchTask(taskData)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			worker.baseLogger.Error("Panic recovered in dispatch worker", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch worker pool: %w", err)
	}
	worker.pool = pool
	worker.baseLogger.Info("Dispatch worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("expiry_time", cfg.ExpiryTime),
	)
	return worker, nil
}

// SubmitTask submits one due schedule to the pool, blocking while the queue
// is full.
func (w *DispatchWorker) SubmitTask(taskData DispatchTaskData) error {
	err := w.pool.Invoke(taskData)
	if err != nil {
		w.baseLogger.Warn("Failed to submit dispatch task to pool",
			zap.String("schedule_id", taskData.Schedule.ID),
			zap.Error(err),
		)
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("dispatch pool overload: %w", err)
		}
		return fmt.Errorf("failed to invoke dispatch task: %w", err)
	}
	return nil
}

// processDispatchTask runs inside a pool goroutine.
func (w *DispatchWorker) processDispatchTask(taskData DispatchTaskData) {
	status := w.service.DispatchSchedule(taskData.Ctx, taskData.Schedule)
	if taskData.Done != nil {
		taskData.Done(status)
	}
}

// Stop gracefully shuts down the worker pool.
func (w *DispatchWorker) Stop() {
	w.baseLogger.Info("Stopping dispatch worker pool...")
	w.pool.Release()
	w.baseLogger.Info("Dispatch worker pool stopped.")
}
