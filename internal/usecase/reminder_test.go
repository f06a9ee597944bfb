package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/model"
)

func reminderEvent(startAt time.Time) model.ReminderEvent {
	return model.ReminderEvent{
		CorrelationRef: "order-2001",
		EventStartAt:   startAt.Format(time.RFC3339),
		Phone:          "0721123456",
		Variables: model.Variables{
			{Name: "event", Value: "Concert"},
		},
	}
}

func TestScheduleReminders_AllFuture(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	eventStart := time.Now().Add(10 * 24 * time.Hour)
	mocks.scheduleRepo.On("CreateIfAbsent", mock.Anything, mock.MatchedBy(func(s *model.Schedule) bool {
		return s.TenantID == testTenantID &&
			s.CorrelationRef == "order-2001" &&
			s.Status == model.ScheduleStatusScheduled
	})).Return(true, nil).Times(3)

	results, err := service.ScheduleReminders(ctx, reminderEvent(eventStart))
	require.NoError(t, err)
	require.Len(t, results, 3)

	types := []string{results[0].MessageType, results[1].MessageType, results[2].MessageType}
	assert.Equal(t, []string{
		model.ScheduleTypeReminderD7,
		model.ScheduleTypeReminderD3,
		model.ScheduleTypeReminderD1,
	}, types)

	for _, result := range results {
		assert.True(t, result.Created)
		assert.NotEmpty(t, result.ScheduleID)
		assert.True(t, result.RunAt.Before(eventStart))
	}
	mocks.scheduleRepo.AssertExpectations(t)
}

func TestScheduleReminders_PastOffsetsPruned(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	// Two days out: only the D-1 slot is still in the future.
	eventStart := time.Now().Add(48 * time.Hour)
	mocks.scheduleRepo.On("CreateIfAbsent", mock.Anything, mock.MatchedBy(func(s *model.Schedule) bool {
		return s.MessageType == model.ScheduleTypeReminderD1
	})).Return(true, nil).Once()

	results, err := service.ScheduleReminders(ctx, reminderEvent(eventStart))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.ScheduleTypeReminderD1, results[0].MessageType)
	mocks.scheduleRepo.AssertExpectations(t)
}

func TestScheduleReminders_PastEventYieldsNothing(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	results, err := service.ScheduleReminders(ctx, reminderEvent(time.Now().Add(-time.Hour)))
	require.NoError(t, err)
	assert.Empty(t, results)
	mocks.scheduleRepo.AssertNotCalled(t, "CreateIfAbsent", mock.Anything, mock.Anything)
}

func TestScheduleReminders_Idempotent(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	eventStart := time.Now().Add(10 * 24 * time.Hour)
	// All three slots already exist from an earlier registration.
	mocks.scheduleRepo.On("CreateIfAbsent", mock.Anything, mock.Anything).Return(false, nil).Times(3)
	mocks.scheduleRepo.On("FindByCorrelation", mock.Anything, "order-2001").
		Return([]model.Schedule{
			{ID: "sched-d7", MessageType: model.ScheduleTypeReminderD7, RunAt: eventStart.Add(-7 * 24 * time.Hour)},
			{ID: "sched-d3", MessageType: model.ScheduleTypeReminderD3, RunAt: eventStart.Add(-3 * 24 * time.Hour)},
			{ID: "sched-d1", MessageType: model.ScheduleTypeReminderD1, RunAt: eventStart.Add(-24 * time.Hour)},
		}, nil).Once()

	results, err := service.ScheduleReminders(ctx, reminderEvent(eventStart))
	require.NoError(t, err)
	require.Len(t, results, 3)

	// The surviving slots are reported under their stored identity.
	ids := []string{results[0].ScheduleID, results[1].ScheduleID, results[2].ScheduleID}
	assert.Equal(t, []string{"sched-d7", "sched-d3", "sched-d1"}, ids)
	for _, result := range results {
		assert.False(t, result.Created)
	}
	mocks.scheduleRepo.AssertExpectations(t)
}

func TestScheduleReminders_WallClockUsesTenantTimezone(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	loc, err := time.LoadLocation("Europe/Bucharest")
	require.NoError(t, err)
	eventStart := time.Now().In(loc).Add(10 * 24 * time.Hour)

	var captured []*model.Schedule
	mocks.scheduleRepo.On("CreateIfAbsent", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = append(captured, args.Get(1).(*model.Schedule))
		}).Return(true, nil).Times(3)

	event := reminderEvent(eventStart)
	event.EventStartAt = eventStart.Format("2006-01-02 15:04:05")

	_, err = service.ScheduleReminders(ctx, event)
	require.NoError(t, err)
	require.Len(t, captured, 3)

	expected := eventStart.Add(-7 * 24 * time.Hour)
	assert.WithinDuration(t, expected, captured[0].RunAt, time.Second)
}

func TestScheduleReminders_BadEventStart(t *testing.T) {
	service, _ := newTestService(t)
	ctx := testContext()

	event := reminderEvent(time.Now())
	event.EventStartAt = "soon"

	_, err := service.ScheduleReminders(ctx, event)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}
