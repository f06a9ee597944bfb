package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/model"
	"github.com/andreiandoo/epas-sub045/internal/tenant"
	"github.com/andreiandoo/epas-sub045/internal/validator"
	"github.com/andreiandoo/epas-sub045/pkg/logger"
	"github.com/andreiandoo/epas-sub045/pkg/utils"
)

// RecordOptIn stores a consent grant for the phone number. The latest
// decision wins.
func (s *MessagingService) RecordOptIn(ctx context.Context, req model.OptInRequest) (*model.OptIn, error) {
	return s.recordConsent(ctx, req, model.OptInStatusOptedIn)
}

// RecordOptOut stores a consent revocation for the phone number. Pending
// reminders for the number are skipped at dispatch time rather than purged.
func (s *MessagingService) RecordOptOut(ctx context.Context, req model.OptInRequest) (*model.OptIn, error) {
	return s.recordConsent(ctx, req, model.OptInStatusOptedOut)
}

func (s *MessagingService) recordConsent(ctx context.Context, req model.OptInRequest, status string) (*model.OptIn, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if err := validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}

	prefix := req.CountryPrefix
	if prefix == "" {
		prefix = s.cfg.DefaultCountryPrefix
	}
	now := utils.Now()
	optIn := &model.OptIn{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Phone:    utils.NormalizePhone(req.Phone, prefix),
		Status:   status,
		Source:   req.Source,
	}
	if status == model.OptInStatusOptedIn {
		optIn.ConsentedAt = &now
	} else {
		optIn.RevokedAt = &now
	}

	if err := s.optInRepo.Upsert(ctx, optIn); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Consent decision recorded",
		zap.String("phone", optIn.Phone),
		zap.String("status", status),
		zap.String("source", req.Source))
	return optIn, nil
}

// Stats aggregates message counts and delivery cost per (type, status) over
// the trailing number of days.
func (s *MessagingService) Stats(ctx context.Context, days int) (*model.StatsResult, error) {
	if days <= 0 {
		days = 30
	}
	since := utils.Now().AddDate(0, 0, -days)

	rows, err := s.messageRepo.Stats(ctx, since)
	if err != nil {
		return nil, err
	}

	result := &model.StatsResult{Days: days, Rows: rows}
	for _, row := range rows {
		result.Total += row.Count
		result.TotalCost += row.Cost
	}
	return result, nil
}
