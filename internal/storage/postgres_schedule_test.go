package storage

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/model"
)

func TestPostgresRepo_CreateScheduleIfAbsent_New(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	schedule := model.NewSchedule(&model.Schedule{
		TenantID:       testTenantID,
		CorrelationRef: "order-123",
		MessageType:    model.ScheduleTypeReminderD7,
	})

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "wa_schedules"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.CreateScheduleIfAbsent(ctx, schedule)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestPostgresRepo_CreateScheduleIfAbsent_Existing(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	schedule := model.NewSchedule(&model.Schedule{
		TenantID:       testTenantID,
		CorrelationRef: "order-123",
		MessageType:    model.ScheduleTypeReminderD7,
	})

	// ON CONFLICT DO NOTHING reports zero affected rows for the duplicate.
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "wa_schedules"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.CreateScheduleIfAbsent(ctx, schedule)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestPostgresRepo_FindDueSchedules(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "message_type", "correlation_ref", "status"}).
		AddRow("sched-1", testTenantID, model.ScheduleTypeReminderD7, "order-1", model.ScheduleStatusScheduled).
		AddRow("sched-2", testTenantID, model.ScheduleTypeReminderD3, "order-2", model.ScheduleStatusScheduled)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "wa_schedules" WHERE tenant_id = $1 AND status = $2 AND run_at <= $3`)).
		WithArgs(testTenantID, model.ScheduleStatusScheduled, AnyTime{}, 50).
		WillReturnRows(rows)

	schedules, err := repo.FindDueSchedules(ctx, now, 50)
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	assert.Equal(t, "sched-1", schedules[0].ID)
}

func TestPostgresRepo_MarkScheduleSent(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "wa_schedules" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkScheduleSent(ctx, "sched-1", "msg-1")
	assert.NoError(t, err)
}

func TestPostgresRepo_MarkScheduleSkipped_AlreadyResolved(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "wa_schedules" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkScheduleSkipped(ctx, "sched-1", model.SkipReasonOptedOut)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflictError(err))
}
