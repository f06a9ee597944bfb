package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/model"
	"github.com/andreiandoo/epas-sub045/internal/observer"
	"github.com/andreiandoo/epas-sub045/internal/tenant"
	"github.com/andreiandoo/epas-sub045/pkg/logger"
	"github.com/andreiandoo/epas-sub045/pkg/utils"
)

// CreateScheduleIfAbsent inserts a schedule row unless one already exists for
// the same (tenant, correlation_ref, message_type). Returns whether a new row
// was created, which makes reminder registration idempotent.
func (r *PostgresRepo) CreateScheduleIfAbsent(ctx context.Context, schedule *model.Schedule) (bool, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if tenantID != schedule.TenantID {
		return false, fmt.Errorf("%w: schedule TenantID %s does not match tenant ID %s", apperrors.ErrBadRequest, schedule.TenantID, tenantID)
	}

	schedule.UpdatedAt = utils.Now()

	var created bool
	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "tenant_id"}, {Name: "correlation_ref"}, {Name: "message_type"},
			},
			DoNothing: true,
		}).Create(schedule)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		created = result.RowsAffected > 0
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "CreateScheduleIfAbsent Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "schedule", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to create schedule after retries",
			zap.String("correlation_ref", schedule.CorrelationRef),
			zap.String("message_type", schedule.MessageType),
			zap.Error(commitErr))
		return false, commitErr
	}
	return created, nil
}

// FindSchedulesByCorrelation returns all schedule rows registered for a
// correlation reference, ordered by run time.
func (r *PostgresRepo) FindSchedulesByCorrelation(ctx context.Context, correlationRef string) ([]model.Schedule, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var schedules []model.Schedule
	operation := func() error {
		findErr := r.db.WithContext(ctx).
			Where("tenant_id = ? AND correlation_ref = ?", tenantID, correlationRef).
			Order("run_at asc").
			Find(&schedules).Error
		if findErr != nil {
			return checkConstraintViolation(findErr)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindSchedulesByCorrelation", operation)
	observer.ObserveDbOperationDuration("find", "schedule", tenantID, time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to find schedules by correlation",
			zap.String("correlation_ref", correlationRef), zap.Error(findErr))
		return nil, findErr
	}
	return schedules, nil
}

// FindDueSchedules returns scheduled rows whose run time has passed, oldest
// first, capped at limit.
func (r *PostgresRepo) FindDueSchedules(ctx context.Context, now time.Time, limit int) ([]model.Schedule, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var schedules []model.Schedule
	operation := func() error {
		findErr := r.db.WithContext(ctx).
			Where("tenant_id = ? AND status = ? AND run_at <= ?", tenantID, model.ScheduleStatusScheduled, now).
			Order("run_at asc").
			Limit(limit).
			Find(&schedules).Error
		if findErr != nil {
			return checkConstraintViolation(findErr)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindDueSchedules", operation)
	observer.ObserveDbOperationDuration("find_due", "schedule", tenantID, time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to find due schedules", zap.Error(findErr))
		return nil, findErr
	}
	return schedules, nil
}

// transitionSchedule performs a conditional status update out of scheduled.
// Zero rows affected maps to ErrConflict so only one resolver wins.
func (r *PostgresRepo) transitionSchedule(ctx context.Context, opName, id string, updates map[string]interface{}) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	updates["updated_at"] = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Schedule{}).
			Where("id = ? AND tenant_id = ? AND status = ?", id, tenantID, model.ScheduleStatusScheduled).
			Updates(updates)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: schedule %s is no longer scheduled", apperrors.ErrConflict, id))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, opName, operation)
	observer.ObserveDbOperationDuration("transition", "schedule", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		if errors.Is(commitErr, apperrors.ErrConflict) {
			logger.FromContext(ctx).Debug("Schedule transition lost the race", zap.String("schedule_id", id))
			return commitErr
		}
		logger.FromContext(ctx).Error("Failed to transition schedule",
			zap.String("schedule_id", id), zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// MarkScheduleSent resolves a schedule as dispatched, linking the message it
// produced.
func (r *PostgresRepo) MarkScheduleSent(ctx context.Context, id, messageID string) error {
	return r.transitionSchedule(ctx, "MarkScheduleSent", id, map[string]interface{}{
		"status":     model.ScheduleStatusSent,
		"message_id": messageID,
		"ran_at":     utils.Now(),
	})
}

// MarkScheduleSkipped resolves a schedule as intentionally not dispatched.
func (r *PostgresRepo) MarkScheduleSkipped(ctx context.Context, id, reason string) error {
	return r.transitionSchedule(ctx, "MarkScheduleSkipped", id, map[string]interface{}{
		"status": model.ScheduleStatusSkipped,
		"reason": reason,
		"ran_at": utils.Now(),
	})
}

// MarkScheduleFailed resolves a schedule whose dispatch errored.
func (r *PostgresRepo) MarkScheduleFailed(ctx context.Context, id, reason string) error {
	return r.transitionSchedule(ctx, "MarkScheduleFailed", id, map[string]interface{}{
		"status": model.ScheduleStatusFailed,
		"reason": reason,
		"ran_at": utils.Now(),
	})
}
