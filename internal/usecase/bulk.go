package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/model"
	"github.com/andreiandoo/epas-sub045/internal/observer"
	"github.com/andreiandoo/epas-sub045/internal/tenant"
	"github.com/andreiandoo/epas-sub045/internal/validator"
	"github.com/andreiandoo/epas-sub045/pkg/logger"
	"github.com/andreiandoo/epas-sub045/pkg/utils"
)

// SendBulk dispatches a promo campaign to many recipients with batch
// throttling. Each recipient flows through the full transactional pipeline
// under the correlation key "<campaign_id>:<phone>", so re-running a
// campaign never double-sends.
//
// With DryRun set, every gate of a live run is evaluated (template
// approval, per-recipient idempotency, consent) but nothing is persisted
// or dispatched; the result counts what a live run would do.
func (s *MessagingService) SendBulk(ctx context.Context, req model.BulkRequest) (*model.BulkResult, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if err := validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}

	// A dry run fails closed on an unapproved template up front, exactly
	// like every recipient of a live run would.
	if req.DryRun {
		if _, err := s.templateRepo.FindApproved(ctx, req.TemplateName); err != nil {
			if apperrors.IsNotFoundError(err) {
				return nil, fmt.Errorf("%w: template %s", apperrors.ErrTemplateNotApproved, req.TemplateName)
			}
			return nil, err
		}
	}

	log := logger.FromContext(ctx).With(
		zap.String("campaign_id", req.CampaignID),
		zap.Int("recipients", len(req.Recipients)),
		zap.Bool("dry_run", req.DryRun),
	)
	log.Info("Starting bulk campaign send")

	result := &model.BulkResult{
		CampaignID: req.CampaignID,
		DryRun:     req.DryRun,
		Results:    make([]model.BulkRecipientResult, 0, len(req.Recipients)),
	}

	for i, recipient := range req.Recipients {
		if err := ctx.Err(); err != nil {
			log.Warn("Bulk send aborted", zap.Int("processed", i), zap.Error(err))
			return result, err
		}

		recipientResult := s.sendBulkRecipient(ctx, tenantID, req, recipient)
		result.Results = append(result.Results, recipientResult)
		switch recipientResult.Outcome {
		case model.SendOutcomeSent, model.SendOutcomeAlreadySent, model.SendOutcomeQueued, model.SendOutcomeDryRun:
			// queued means a concurrent run of the same campaign owns the
			// dispatch; either way the recipient is covered.
			result.Sent++
		case model.SendOutcomeSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
		observer.IncBulkRecipient(tenantID, model.MessageTypePromo, recipientResult.Outcome)

		// Throttle between batches to stay inside provider rate limits.
		if (i+1)%s.cfg.BulkBatchSize == 0 && i+1 < len(req.Recipients) {
			select {
			case <-time.After(s.cfg.BulkBatchDelay):
			case <-ctx.Done():
				log.Warn("Bulk send aborted during throttle pause", zap.Int("processed", i+1))
				return result, ctx.Err()
			}
		}
	}

	log.Info("Bulk campaign send finished",
		zap.Int("sent", result.Sent),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

// sendBulkRecipient handles one campaign recipient.
func (s *MessagingService) sendBulkRecipient(ctx context.Context, tenantID string, req model.BulkRequest, recipient model.BulkRecipient) model.BulkRecipientResult {
	phone := utils.NormalizePhone(recipient.Phone, s.cfg.DefaultCountryPrefix)

	// Shared campaign variables come first, recipient overrides follow.
	variables := make(model.Variables, 0, len(req.Variables)+len(recipient.Variables))
	variables = append(variables, req.Variables...)
	variables = append(variables, recipient.Variables...)

	correlationRef := fmt.Sprintf("%s:%s", req.CampaignID, phone)
	if req.DryRun {
		return s.dryRunRecipient(ctx, req, correlationRef, phone)
	}

	sendResult, err := s.SendTransactional(ctx, model.SendRequest{
		CorrelationRef: correlationRef,
		TemplateName:   req.TemplateName,
		Phone:          phone,
		MessageType:    model.MessageTypePromo,
		Variables:      variables,
	})
	if err != nil {
		logger.FromContext(ctx).Warn("Bulk recipient send errored",
			zap.String("phone", phone), zap.Error(err))
		return model.BulkRecipientResult{Phone: phone, Outcome: model.SendOutcomeFailed, Reason: err.Error()}
	}

	return model.BulkRecipientResult{
		Phone:     phone,
		Outcome:   sendResult.Outcome,
		MessageID: sendResult.MessageID,
		Reason:    sendResult.Reason,
	}
}

// dryRunRecipient walks one recipient through the idempotency and consent
// gates in live-run order, without persisting or dispatching anything.
func (s *MessagingService) dryRunRecipient(ctx context.Context, req model.BulkRequest, correlationRef, phone string) model.BulkRecipientResult {
	existing, err := s.messageRepo.FindByCorrelation(ctx, correlationRef, req.TemplateName)
	switch {
	case err == nil:
		if existing.Status == model.MessageStatusFailed {
			return model.BulkRecipientResult{
				Phone:     phone,
				Outcome:   model.SendOutcomeFailed,
				MessageID: existing.ID,
				Reason:    existing.ErrorMessage,
			}
		}
		if model.MessageStatusRank(existing.Status) >= model.MessageStatusRank(model.MessageStatusSent) {
			return model.BulkRecipientResult{
				Phone:     phone,
				Outcome:   model.SendOutcomeAlreadySent,
				MessageID: existing.ID,
			}
		}
		// Still queued: a live run would re-dispatch through the same row.
	case apperrors.IsNotFoundError(err):
		// First attempt for this key.
	default:
		return model.BulkRecipientResult{Phone: phone, Outcome: model.SendOutcomeFailed, Reason: err.Error()}
	}

	consent, err := s.optInRepo.HasConsent(ctx, phone)
	if err != nil {
		return model.BulkRecipientResult{Phone: phone, Outcome: model.SendOutcomeFailed, Reason: err.Error()}
	}
	if !consent {
		return model.BulkRecipientResult{Phone: phone, Outcome: model.SendOutcomeSkipped, Reason: SendSkipReasonNoOptIn}
	}
	return model.BulkRecipientResult{Phone: phone, Outcome: model.SendOutcomeDryRun}
}
