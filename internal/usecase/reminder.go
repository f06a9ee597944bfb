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

// DefaultReminderTemplate is used when the event carries no template name.
const DefaultReminderTemplate = "event_reminder"

// ScheduleReminders registers the reminder ladder for an upcoming event.
// Offsets already in the past are pruned, and slots that exist from an
// earlier registration are left untouched, so the operation is idempotent
// and safe to repeat when an order is re-confirmed.
func (s *MessagingService) ScheduleReminders(ctx context.Context, event model.ReminderEvent) ([]model.ScheduleResult, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if err := validator.Validate(event); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}

	loc, err := s.timezones.Timezone(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	eventStart, err := event.ParseEventStart(loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}

	templateName := event.TemplateName
	if templateName == "" {
		templateName = DefaultReminderTemplate
	}
	prefix := event.CountryPrefix
	if prefix == "" {
		prefix = s.cfg.DefaultCountryPrefix
	}
	payload := model.SchedulePayload{
		Phone:        utils.NormalizePhone(event.Phone, prefix),
		TemplateName: templateName,
		Variables:    event.Variables,
	}

	log := logger.FromContext(ctx).With(
		zap.String("correlation_ref", event.CorrelationRef),
		zap.Time("event_start", eventStart),
	)

	now := utils.Now()
	results := make([]model.ScheduleResult, 0, len(model.ReminderOffsets))
	for _, offset := range model.ReminderOffsets {
		runAt := eventStart.Add(-offset.Lead).UTC()
		if !runAt.After(now) {
			log.Debug("Pruning past reminder slot",
				zap.String("message_type", offset.MessageType),
				zap.Time("run_at", runAt))
			continue
		}

		schedule := &model.Schedule{
			ID:             uuid.NewString(),
			TenantID:       tenantID,
			MessageType:    offset.MessageType,
			CorrelationRef: event.CorrelationRef,
			RunAt:          runAt,
			Payload:        payload.JSON(),
			Status:         model.ScheduleStatusScheduled,
			CreatedAt:      now,
		}
		created, err := s.scheduleRepo.CreateIfAbsent(ctx, schedule)
		if err != nil {
			return nil, err
		}
		result := model.ScheduleResult{
			ScheduleID:  schedule.ID,
			MessageType: offset.MessageType,
			RunAt:       runAt,
			Created:     created,
		}
		if !created {
			// The slot survives from an earlier registration under its own ID,
			// resolved below.
			result.ScheduleID = ""
			log.Debug("Reminder slot already registered",
				zap.String("message_type", offset.MessageType))
		}
		results = append(results, result)
	}

	if err := s.resolveExistingSlots(ctx, event.CorrelationRef, results); err != nil {
		return nil, err
	}

	log.Info("Reminder schedules registered",
		zap.Int("slots", len(results)),
		zap.Int("pruned", len(model.ReminderOffsets)-len(results)))
	return results, nil
}

// resolveExistingSlots back-fills the stored identity of slots that survived
// from an earlier registration.
func (s *MessagingService) resolveExistingSlots(ctx context.Context, correlationRef string, results []model.ScheduleResult) error {
	anyExisting := false
	for _, result := range results {
		if !result.Created {
			anyExisting = true
			break
		}
	}
	if !anyExisting {
		return nil
	}

	existing, err := s.scheduleRepo.FindByCorrelation(ctx, correlationRef)
	if err != nil {
		return err
	}
	byType := make(map[string]model.Schedule, len(existing))
	for _, schedule := range existing {
		byType[schedule.MessageType] = schedule
	}
	for i, result := range results {
		if result.Created {
			continue
		}
		if schedule, ok := byType[result.MessageType]; ok {
			results[i].ScheduleID = schedule.ID
			results[i].RunAt = schedule.RunAt
		}
	}
	return nil
}
