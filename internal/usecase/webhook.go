package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/model"
	"github.com/andreiandoo/epas-sub045/internal/observer"
	"github.com/andreiandoo/epas-sub045/internal/tenant"
	"github.com/andreiandoo/epas-sub045/pkg/logger"
)

// HandleWebhook applies one provider status callback to the message it
// references. Webhooks are delivered at-least-once and out of order, so
// unknown message IDs, untracked statuses and stale transitions are all
// absorbed without error; the guarded transitions keep delivery progress
// monotonic no matter the arrival order.
func (s *MessagingService) HandleWebhook(ctx context.Context, payload []byte) (*model.WebhookResult, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	creds, err := s.credentials.Credentials(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapters.Resolve(creds.Provider())
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)

	event, err := adapter.ParseWebhook(payload)
	if err != nil {
		log.Warn("Unparseable webhook payload", zap.Error(err))
		return nil, err
	}
	if event == nil {
		// Nothing this engine tracks, e.g. an intermediate queued status.
		return &model.WebhookResult{Processed: false, Reason: "untracked status"}, nil
	}

	observer.IncWebhookEvent(tenantID, event.Status)
	log = log.With(
		zap.String("provider_message_id", event.ProviderMessageID),
		zap.String("status", event.Status),
	)

	message, err := s.messageRepo.FindByProviderMessageID(ctx, event.ProviderMessageID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			// The send's MarkSent may not have committed yet, or the callback
			// belongs to a message this engine never sent.
			log.Warn("Webhook references unknown message, absorbing")
			return &model.WebhookResult{Processed: false, Reason: "unknown message"}, nil
		}
		return nil, err
	}

	var transitionErr error
	switch event.Status {
	case model.MessageStatusDelivered:
		transitionErr = s.messageRepo.MarkDelivered(ctx, message.ID)
	case model.MessageStatusRead:
		transitionErr = s.messageRepo.MarkRead(ctx, message.ID)
	case model.MessageStatusFailed:
		transitionErr = s.messageRepo.MarkFailed(ctx, message.ID, event.ErrorCode, event.ErrorMessage)
	case model.MessageStatusSent:
		// The synchronous send path already recorded sent; a sent callback
		// confirms it and carries no new transition.
		return &model.WebhookResult{Processed: false, MessageID: message.ID, Reason: "already sent"}, nil
	default:
		log.Warn("Webhook carries unsupported status, absorbing")
		return &model.WebhookResult{Processed: false, MessageID: message.ID, Reason: "unsupported status"}, nil
	}

	if transitionErr != nil {
		if apperrors.IsConflictError(transitionErr) {
			// Stale or duplicate callback; the row already moved on.
			log.Debug("Webhook transition is stale, absorbing")
			return &model.WebhookResult{Processed: false, MessageID: message.ID, Reason: "stale transition"}, nil
		}
		return nil, transitionErr
	}

	log.Info("Webhook applied", zap.String("message_id", message.ID))
	return &model.WebhookResult{Processed: true, MessageID: message.ID, Status: event.Status}, nil
}
