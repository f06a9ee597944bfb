package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/bsp"
	"github.com/andreiandoo/epas-sub045/internal/model"
	"github.com/andreiandoo/epas-sub045/internal/observer"
	"github.com/andreiandoo/epas-sub045/internal/tenant"
	"github.com/andreiandoo/epas-sub045/internal/validator"
	"github.com/andreiandoo/epas-sub045/pkg/logger"
	"github.com/andreiandoo/epas-sub045/pkg/utils"
)

// Skip reasons surfaced on skipped send results.
const (
	SendSkipReasonNoOptIn = "no_opt_in"
)

// SendTransactional runs the idempotent send pipeline: dedupe on
// (correlation_ref, template_name), consent gate, template approval check,
// durable queued record, then one provider call.
//
// A previous attempt that reached sent or beyond short-circuits to
// already_sent. A previous failed attempt is terminal and is reported as-is;
// a previous queued attempt (a crash between create and send) is
// re-dispatched through the same row. Losing the insert race against a
// concurrent call whose provider send is still in flight reports queued.
func (s *MessagingService) SendTransactional(ctx context.Context, req model.SendRequest) (*model.SendResult, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if err := validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}
	if req.MessageType == "" {
		req.MessageType = model.MessageTypeOrderConfirmation
	}

	prefix := req.CountryPrefix
	if prefix == "" {
		prefix = s.cfg.DefaultCountryPrefix
	}
	phone := utils.NormalizePhone(req.Phone, prefix)

	log := logger.FromContext(ctx).With(
		zap.String("correlation_ref", req.CorrelationRef),
		zap.String("template_name", req.TemplateName),
	)

	var message *model.Message
	existing, err := s.messageRepo.FindByCorrelation(ctx, req.CorrelationRef, req.TemplateName)
	switch {
	case err == nil:
		if model.MessageStatusRank(existing.Status) >= model.MessageStatusRank(model.MessageStatusSent) {
			log.Info("Send short-circuited, message already dispatched",
				zap.String("message_id", existing.ID), zap.String("status", existing.Status))
			return &model.SendResult{
				Outcome:           model.SendOutcomeAlreadySent,
				MessageID:         existing.ID,
				ProviderMessageID: existing.ProviderMessageID,
			}, nil
		}
		if existing.Status == model.MessageStatusFailed {
			return &model.SendResult{
				Outcome:   model.SendOutcomeFailed,
				MessageID: existing.ID,
				ErrorCode: existing.ErrorCode,
				Reason:    existing.ErrorMessage,
			}, nil
		}
		// Still queued: a previous attempt died before the provider call.
		message = existing
	case apperrors.IsNotFoundError(err):
		// First attempt for this key.
	default:
		return nil, err
	}

	consent, err := s.optInRepo.HasConsent(ctx, phone)
	if err != nil {
		return nil, err
	}
	if !consent {
		log.Info("Send skipped, recipient has no opt-in consent", zap.String("phone", phone))
		observer.IncMessage(tenantID, req.MessageType, model.SendOutcomeSkipped)
		return &model.SendResult{
			Outcome: model.SendOutcomeSkipped,
			Reason:  SendSkipReasonNoOptIn,
		}, nil
	}

	template, err := s.templateRepo.FindApproved(ctx, req.TemplateName)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: template %s", apperrors.ErrTemplateNotApproved, req.TemplateName)
		}
		return nil, err
	}

	if message == nil {
		message = &model.Message{
			ID:             uuid.NewString(),
			TenantID:       tenantID,
			MessageType:    req.MessageType,
			ToPhone:        phone,
			TemplateName:   req.TemplateName,
			Variables:      req.Variables.JSON(),
			Status:         model.MessageStatusQueued,
			CorrelationRef: req.CorrelationRef,
			CreatedAt:      utils.Now(),
		}
		if err := s.messageRepo.Create(ctx, message); err != nil {
			if apperrors.IsDuplicateError(err) {
				// A concurrent call won the insert race; report its record.
				return s.reportExisting(ctx, req)
			}
			return nil, err
		}
	}

	return s.dispatchMessage(ctx, message, template)
}

// reportExisting resolves the outcome of a send whose insert lost a race.
func (s *MessagingService) reportExisting(ctx context.Context, req model.SendRequest) (*model.SendResult, error) {
	existing, err := s.messageRepo.FindByCorrelation(ctx, req.CorrelationRef, req.TemplateName)
	if err != nil {
		return nil, err
	}
	switch {
	case existing.Status == model.MessageStatusFailed:
		return &model.SendResult{
			Outcome:   model.SendOutcomeFailed,
			MessageID: existing.ID,
			ErrorCode: existing.ErrorCode,
			Reason:    existing.ErrorMessage,
		}, nil
	case model.MessageStatusRank(existing.Status) >= model.MessageStatusRank(model.MessageStatusSent):
		return &model.SendResult{
			Outcome:           model.SendOutcomeAlreadySent,
			MessageID:         existing.ID,
			ProviderMessageID: existing.ProviderMessageID,
		}, nil
	default:
		// The racer's provider call is still in flight. Reporting already_sent
		// here would claim a dispatch that may yet fail.
		logger.FromContext(ctx).Debug("Insert race lost against an in-flight send",
			zap.String("message_id", existing.ID))
		return &model.SendResult{
			Outcome:   model.SendOutcomeQueued,
			MessageID: existing.ID,
		}, nil
	}
}

// dispatchMessage performs the provider call for a queued message and
// resolves the row to sent or failed.
func (s *MessagingService) dispatchMessage(ctx context.Context, message *model.Message, template *model.Template) (*model.SendResult, error) {
	log := logger.FromContext(ctx).With(zap.String("message_id", message.ID))

	creds, err := s.credentials.Credentials(ctx, message.TenantID)
	if err != nil {
		// Credentials are deployment state, not message state. The row stays
		// queued so a later attempt can pick it up.
		return nil, err
	}
	adapter, err := s.adapters.Resolve(creds.Provider())
	if err != nil {
		return nil, err
	}

	variables, err := model.VariablesFromJSON(message.Variables)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrBadRequest, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.AdapterTimeout)
	defer cancel()

	startTime := utils.Now()
	result, sendErr := adapter.SendTemplate(callCtx, creds, bsp.SendTemplateRequest{
		To:           message.ToPhone,
		TemplateName: message.TemplateName,
		ProviderRef:  template.ProviderRef,
		Variables:    variables,
	})
	observer.ObserveProviderSendDuration(adapter.Name(), time.Since(startTime), sendErr)

	if sendErr != nil {
		log.Warn("Provider send raised an error", zap.Error(sendErr))
		s.failMessage(ctx, message, model.ErrorClassException, sendErr.Error())
		observer.IncMessage(message.TenantID, message.MessageType, model.SendOutcomeFailed)
		return &model.SendResult{
			Outcome:   model.SendOutcomeFailed,
			MessageID: message.ID,
			ErrorCode: model.ErrorClassException,
			Reason:    sendErr.Error(),
		}, nil
	}

	if !result.Success {
		log.Warn("Provider rejected the message",
			zap.String("error_code", result.ErrorCode),
			zap.String("error_message", result.ErrorMessage))
		s.failMessage(ctx, message, result.ErrorCode, result.ErrorMessage)
		observer.IncMessage(message.TenantID, message.MessageType, model.SendOutcomeFailed)
		return &model.SendResult{
			Outcome:   model.SendOutcomeFailed,
			MessageID: message.ID,
			ErrorCode: result.ErrorCode,
			Reason:    result.ErrorMessage,
		}, nil
	}

	if err := s.messageRepo.MarkSent(ctx, message.ID, result.ProviderMessageID, result.Cost); err != nil {
		if apperrors.IsConflictError(err) {
			// Another dispatcher resolved the row first; its cost recording
			// stands and this one is dropped.
			log.Debug("MarkSent lost the race, treating as already sent")
			return &model.SendResult{
				Outcome:           model.SendOutcomeAlreadySent,
				MessageID:         message.ID,
				ProviderMessageID: result.ProviderMessageID,
			}, nil
		}
		log.Error("Message dispatched but status update failed", zap.Error(err))
		return nil, err
	}

	if result.Cost != nil {
		if costErr := s.costs.RecordCost(ctx, message.TenantID, message.ID, *result.Cost); costErr != nil {
			log.Error("Failed to record message cost", zap.Error(costErr))
		}
	}

	log.Info("Message dispatched",
		zap.String("provider_message_id", result.ProviderMessageID),
		zap.String("provider", adapter.Name()))
	observer.IncMessage(message.TenantID, message.MessageType, model.SendOutcomeSent)
	return &model.SendResult{
		Outcome:           model.SendOutcomeSent,
		MessageID:         message.ID,
		ProviderMessageID: result.ProviderMessageID,
	}, nil
}

// failMessage resolves the row to failed, tolerating transition races.
func (s *MessagingService) failMessage(ctx context.Context, message *model.Message, errorCode, errorMessage string) {
	if err := s.messageRepo.MarkFailed(ctx, message.ID, errorCode, errorMessage); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			logger.FromContext(ctx).Debug("MarkFailed lost the race", zap.String("message_id", message.ID))
			return
		}
		logger.FromContext(ctx).Error("Failed to mark message as failed",
			zap.String("message_id", message.ID), zap.Error(err))
	}
}
