package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/model"
	"github.com/andreiandoo/epas-sub045/internal/observer"
	"github.com/andreiandoo/epas-sub045/internal/tenant"
	"github.com/andreiandoo/epas-sub045/pkg/logger"
	"github.com/andreiandoo/epas-sub045/pkg/utils"
)

// dispatchStatusConflict marks a schedule another sweeper resolved first.
const dispatchStatusConflict = "conflict"

// ProcessDueSchedules claims up to limit due schedules and resolves each to
// sent, skipped or failed. With a dispatch worker attached the rows go
// through the bounded pool, otherwise they fan out one goroutine per row.
// Either way the call returns only after every row is resolved.
func (s *MessagingService) ProcessDueSchedules(ctx context.Context, limit int) (model.SweepResult, error) {
	startTime := utils.Now()
	defer func() {
		observer.ObserveSweepDuration(time.Since(startTime))
	}()

	due, err := s.scheduleRepo.FindDue(ctx, utils.Now(), limit)
	if err != nil {
		return model.SweepResult{}, err
	}
	if len(due) == 0 {
		return model.SweepResult{}, nil
	}

	log := logger.FromContext(ctx)
	log.Info("Processing due schedules", zap.Int("count", len(due)))

	var sent, skipped, failed atomic.Int64
	count := func(status string) {
		switch status {
		case model.ScheduleStatusSent:
			sent.Add(1)
		case model.ScheduleStatusSkipped:
			skipped.Add(1)
		case model.ScheduleStatusFailed:
			failed.Add(1)
		}
	}

	if s.worker != nil {
		var wg sync.WaitGroup
		for _, schedule := range due {
			wg.Add(1)
			task := DispatchTaskData{
				Ctx:      ctx,
				Schedule: schedule,
				Done: func(status string) {
					count(status)
					wg.Done()
				},
			}
			if submitErr := s.worker.SubmitTask(task); submitErr != nil {
				log.Warn("Dispatch task submission failed, schedule stays due",
					zap.String("schedule_id", schedule.ID), zap.Error(submitErr))
				wg.Done()
			}
		}
		wg.Wait()
	} else {
		iter.ForEach(due, func(schedule *model.Schedule) {
			count(s.DispatchSchedule(ctx, *schedule))
		})
	}

	result := model.SweepResult{
		Processed: len(due),
		Sent:      int(sent.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
	}
	log.Info("Schedule sweep finished",
		zap.Int("processed", result.Processed),
		zap.Int("sent", result.Sent),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

// DispatchSchedule resolves one due schedule and returns its terminal
// status. Consent and order state are re-checked at dispatch time because
// both may have changed since registration.
func (s *MessagingService) DispatchSchedule(ctx context.Context, schedule model.Schedule) string {
	ctx = tenant.WithTenantID(ctx, schedule.TenantID)
	log := logger.FromContext(ctx).With(
		zap.String("schedule_id", schedule.ID),
		zap.String("correlation_ref", schedule.CorrelationRef),
		zap.String("message_type", schedule.MessageType),
	)

	payload, err := model.SchedulePayloadFromJSON(schedule.Payload)
	if err != nil {
		log.Error("Schedule payload is unreadable", zap.Error(err))
		return s.resolveSchedule(ctx, schedule, model.ScheduleStatusFailed, "", fmt.Sprintf("bad payload: %v", err))
	}

	consent, err := s.optInRepo.HasConsent(ctx, payload.Phone)
	if err != nil {
		log.Warn("Consent check failed, schedule stays due", zap.Error(err))
		return dispatchStatusConflict
	}
	if !consent {
		log.Info("Skipping reminder, recipient opted out", zap.String("phone", payload.Phone))
		return s.resolveSchedule(ctx, schedule, model.ScheduleStatusSkipped, "", model.SkipReasonOptedOut)
	}

	cancelled, err := s.orders.IsCancelled(ctx, schedule.TenantID, schedule.CorrelationRef)
	if err != nil {
		log.Warn("Order status check failed, schedule stays due", zap.Error(err))
		return dispatchStatusConflict
	}
	if cancelled {
		log.Info("Skipping reminder, order was cancelled")
		return s.resolveSchedule(ctx, schedule, model.ScheduleStatusSkipped, "", model.SkipReasonOrderCancelled)
	}

	// The three reminder offsets of one order share a correlation ref, so
	// the per-message dedupe key carries the offset type as well. Without it
	// the D-3 and D-1 dispatches would collapse onto the D-7 message.
	sendResult, err := s.SendTransactional(ctx, model.SendRequest{
		CorrelationRef: fmt.Sprintf("%s:%s", schedule.CorrelationRef, schedule.MessageType),
		TemplateName:   payload.TemplateName,
		Phone:          payload.Phone,
		MessageType:    model.MessageTypeReminder,
		Variables:      payload.Variables,
	})
	if err != nil {
		log.Error("Reminder dispatch errored", zap.Error(err))
		return s.resolveSchedule(ctx, schedule, model.ScheduleStatusFailed, "", err.Error())
	}

	switch sendResult.Outcome {
	case model.SendOutcomeSent, model.SendOutcomeAlreadySent:
		return s.resolveSchedule(ctx, schedule, model.ScheduleStatusSent, sendResult.MessageID, "")
	case model.SendOutcomeQueued:
		// A concurrent dispatcher owns the message and will resolve it. The
		// schedule stays due and the next sweep settles it.
		log.Debug("Reminder message is in flight elsewhere, schedule stays due")
		return dispatchStatusConflict
	case model.SendOutcomeSkipped:
		return s.resolveSchedule(ctx, schedule, model.ScheduleStatusSkipped, "", sendResult.Reason)
	default:
		reason := sendResult.Reason
		if reason == "" {
			reason = sendResult.ErrorCode
		}
		return s.resolveSchedule(ctx, schedule, model.ScheduleStatusFailed, "", reason)
	}
}

// resolveSchedule writes the terminal schedule status, absorbing the
// conflict raised when a concurrent sweeper resolved the row first.
func (s *MessagingService) resolveSchedule(ctx context.Context, schedule model.Schedule, status, messageID, reason string) string {
	var err error
	switch status {
	case model.ScheduleStatusSent:
		err = s.scheduleRepo.MarkSent(ctx, schedule.ID, messageID)
	case model.ScheduleStatusSkipped:
		err = s.scheduleRepo.MarkSkipped(ctx, schedule.ID, reason)
	case model.ScheduleStatusFailed:
		err = s.scheduleRepo.MarkFailed(ctx, schedule.ID, reason)
	}
	if err != nil {
		if apperrors.IsConflictError(err) {
			logger.FromContext(ctx).Debug("Schedule already resolved elsewhere",
				zap.String("schedule_id", schedule.ID))
			return dispatchStatusConflict
		}
		logger.FromContext(ctx).Error("Failed to resolve schedule",
			zap.String("schedule_id", schedule.ID),
			zap.String("status", status),
			zap.Error(err))
		return dispatchStatusConflict
	}
	observer.IncScheduleProcessed(schedule.TenantID, status)
	return status
}
