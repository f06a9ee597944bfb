package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/model"
	"github.com/andreiandoo/epas-sub045/internal/observer"
	"github.com/andreiandoo/epas-sub045/internal/tenant"
	"github.com/andreiandoo/epas-sub045/pkg/logger"
	"github.com/andreiandoo/epas-sub045/pkg/utils"
)

// UpsertOptIn records a consent decision. The latest write wins on the
// (tenant_id, phone) key.
func (r *PostgresRepo) UpsertOptIn(ctx context.Context, optIn *model.OptIn) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if tenantID != optIn.TenantID {
		return fmt.Errorf("%w: opt-in TenantID %s does not match tenant ID %s", apperrors.ErrBadRequest, optIn.TenantID, tenantID)
	}

	optIn.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "phone"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "source", "consented_at", "revoked_at", "updated_at",
			}),
		}).Create(optIn)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpsertOptIn Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "opt_in", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to upsert opt-in after retries",
			zap.String("phone", optIn.Phone), zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindOptInByPhone returns the consent record for a normalized phone number.
func (r *PostgresRepo) FindOptInByPhone(ctx context.Context, phone string) (*model.OptIn, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var optIn model.OptIn
	operation := func() error {
		findErr := r.db.WithContext(ctx).
			Where("tenant_id = ? AND phone = ?", tenantID, phone).
			First(&optIn).Error
		if findErr != nil {
			return checkConstraintViolation(findErr)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindOptInByPhone", operation)
	observer.ObserveDbOperationDuration("find", "opt_in", tenantID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, findErr
		}
		logger.FromContext(ctx).Error("Failed to find opt-in by phone",
			zap.String("phone", phone), zap.Error(findErr))
		return nil, findErr
	}
	return &optIn, nil
}

// HasOptInConsent reports whether the phone currently authorizes sending.
// Unknown numbers are treated as not consented.
func (r *PostgresRepo) HasOptInConsent(ctx context.Context, phone string) (bool, error) {
	optIn, err := r.FindOptInByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return optIn.HasConsent(), nil
}
