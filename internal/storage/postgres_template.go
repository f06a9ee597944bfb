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

// UpsertTemplate registers or updates a template definition on the
// (tenant_id, name) key.
func (r *PostgresRepo) UpsertTemplate(ctx context.Context, template *model.Template) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if tenantID != template.TenantID {
		return fmt.Errorf("%w: template TenantID %s does not match tenant ID %s", apperrors.ErrBadRequest, template.TenantID, tenantID)
	}

	template.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"language", "body", "status", "provider_ref", "metadata", "updated_at",
			}),
		}).Create(template)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpsertTemplate Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "template", tenantID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to upsert template after retries",
			zap.String("name", template.Name), zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindTemplateByName returns a template regardless of approval status.
func (r *PostgresRepo) FindTemplateByName(ctx context.Context, name string) (*model.Template, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var template model.Template
	operation := func() error {
		findErr := r.db.WithContext(ctx).
			Where("tenant_id = ? AND name = ?", tenantID, name).
			First(&template).Error
		if findErr != nil {
			return checkConstraintViolation(findErr)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindTemplateByName", operation)
	observer.ObserveDbOperationDuration("find", "template", tenantID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, findErr
		}
		logger.FromContext(ctx).Error("Failed to find template",
			zap.String("name", name), zap.Error(findErr))
		return nil, findErr
	}
	return &template, nil
}

// FindApprovedTemplate returns the template only when it has passed BSP
// review; an existing but unapproved template maps to ErrTemplateNotApproved.
func (r *PostgresRepo) FindApprovedTemplate(ctx context.Context, name string) (*model.Template, error) {
	template, err := r.FindTemplateByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !template.IsApproved() {
		return nil, fmt.Errorf("%w: template %s is %s", apperrors.ErrTemplateNotApproved, name, template.Status)
	}
	return template, nil
}
