package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/model"
	"github.com/andreiandoo/epas-sub045/internal/observer"
	"github.com/andreiandoo/epas-sub045/internal/tenant"
	"github.com/andreiandoo/epas-sub045/pkg/logger"
	"github.com/andreiandoo/epas-sub045/pkg/utils"
)

// CreateMessage inserts a new queued message. A unique index on
// (tenant_id, correlation_ref, template_name) rejects duplicates with
// ErrDuplicate.
func (r *PostgresRepo) CreateMessage(ctx context.Context, message *model.Message) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if tenantID != message.TenantID {
		return fmt.Errorf("%w: message TenantID %s does not match tenant ID %s", apperrors.ErrBadRequest, message.TenantID, tenantID)
	}

	message.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Create(message)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "CreateMessage Commit", operation)
	observer.ObserveDbOperationDuration("insert", "message", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to create message after retries",
			zap.String("correlation_ref", message.CorrelationRef), zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindMessageByCorrelation looks up a message by its idempotency key.
func (r *PostgresRepo) FindMessageByCorrelation(ctx context.Context, correlationRef, templateName string) (*model.Message, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var message model.Message
	operation := func() error {
		findErr := r.db.WithContext(ctx).
			Where("tenant_id = ? AND correlation_ref = ? AND template_name = ?", tenantID, correlationRef, templateName).
			First(&message).Error
		if findErr != nil {
			return checkConstraintViolation(findErr)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindMessageByCorrelation", operation)
	observer.ObserveDbOperationDuration("find", "message", tenantID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, findErr
		}
		logger.FromContext(ctx).Error("Failed to find message by correlation",
			zap.String("correlation_ref", correlationRef), zap.Error(findErr))
		return nil, findErr
	}
	return &message, nil
}

// FindMessageByProviderID looks up a message by the identifier assigned by
// the BSP. Used by the webhook path.
func (r *PostgresRepo) FindMessageByProviderID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var message model.Message
	operation := func() error {
		findErr := r.db.WithContext(ctx).
			Where("tenant_id = ? AND provider_message_id = ?", tenantID, providerMessageID).
			First(&message).Error
		if findErr != nil {
			return checkConstraintViolation(findErr)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindMessageByProviderID", operation)
	observer.ObserveDbOperationDuration("find_by_provider_id", "message", tenantID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, findErr
		}
		logger.FromContext(ctx).Error("Failed to find message by provider ID",
			zap.String("provider_message_id", providerMessageID), zap.Error(findErr))
		return nil, findErr
	}
	return &message, nil
}

// transitionMessage performs a conditional status update. The WHERE clause
// carries the allowed source statuses so concurrent writers cannot move a
// row backwards; zero rows affected maps to ErrConflict.
func (r *PostgresRepo) transitionMessage(ctx context.Context, opName, id string, from []string, updates map[string]interface{}) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	updates["updated_at"] = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Message{}).
			Where("id = ? AND tenant_id = ? AND status IN ?", id, tenantID, from).
			Updates(updates)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: message %s is not in status %v", apperrors.ErrConflict, id, from))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, opName, operation)
	observer.ObserveDbOperationDuration("transition", "message", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		if errors.Is(commitErr, apperrors.ErrConflict) {
			logger.FromContext(ctx).Debug("Message transition lost the race",
				zap.String("message_id", id), zap.Strings("from", from))
			return commitErr
		}
		logger.FromContext(ctx).Error("Failed to transition message",
			zap.String("message_id", id), zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// MarkMessageSent moves a queued message to sent and records the provider
// identifier and per-message cost.
func (r *PostgresRepo) MarkMessageSent(ctx context.Context, id, providerMessageID string, cost *float64) error {
	updates := map[string]interface{}{
		"status":              model.MessageStatusSent,
		"provider_message_id": providerMessageID,
		"sent_at":             utils.Now(),
	}
	if cost != nil {
		updates["cost"] = *cost
	}
	return r.transitionMessage(ctx, "MarkMessageSent", id, []string{model.MessageStatusQueued}, updates)
}

// MarkMessageDelivered moves a sent message to delivered.
func (r *PostgresRepo) MarkMessageDelivered(ctx context.Context, id string) error {
	return r.transitionMessage(ctx, "MarkMessageDelivered", id,
		[]string{model.MessageStatusSent},
		map[string]interface{}{
			"status":       model.MessageStatusDelivered,
			"delivered_at": utils.Now(),
		})
}

// MarkMessageRead moves a sent or delivered message to read.
func (r *PostgresRepo) MarkMessageRead(ctx context.Context, id string) error {
	return r.transitionMessage(ctx, "MarkMessageRead", id,
		[]string{model.MessageStatusSent, model.MessageStatusDelivered},
		map[string]interface{}{
			"status":  model.MessageStatusRead,
			"read_at": utils.Now(),
		})
}

// MarkMessageFailed moves a queued or sent message to failed with the
// provider error details.
func (r *PostgresRepo) MarkMessageFailed(ctx context.Context, id, errorCode, errorMessage string) error {
	return r.transitionMessage(ctx, "MarkMessageFailed", id,
		[]string{model.MessageStatusQueued, model.MessageStatusSent},
		map[string]interface{}{
			"status":        model.MessageStatusFailed,
			"error_code":    errorCode,
			"error_message": errorMessage,
			"failed_at":     utils.Now(),
		})
}

// MessageStats aggregates message counts and cost per (type, status) since
// the given instant.
func (r *PostgresRepo) MessageStats(ctx context.Context, since time.Time) ([]model.StatsRow, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var rows []model.StatsRow
	operation := func() error {
		scanErr := r.db.WithContext(ctx).Model(&model.Message{}).
			Select("message_type, status, COUNT(*) AS count, COALESCE(SUM(cost), 0) AS cost").
			Where("tenant_id = ? AND created_at >= ?", tenantID, since).
			Group("message_type, status").
			Order("message_type, status").
			Scan(&rows).Error
		if scanErr != nil && !errors.Is(scanErr, gorm.ErrRecordNotFound) {
			return checkConstraintViolation(scanErr)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	scanErr := retryableOperation(ctx, readPolicy, "MessageStats", operation)
	observer.ObserveDbOperationDuration("stats", "message", tenantID, time.Since(startTime), scanErr)

	if scanErr != nil {
		logger.FromContext(ctx).Error("Failed to aggregate message stats", zap.Error(scanErr))
		return nil, scanErr
	}
	return rows, nil
}
