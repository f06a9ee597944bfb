package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/model"
)

func TestPostgresRepo_CreateMessage(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	message := model.NewMessage(&model.Message{
		TenantID:       testTenantID,
		CorrelationRef: "order-123",
		TemplateName:   "order_confirmation",
	})

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "wa_messages"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateMessage(ctx, message)
	assert.NoError(t, err)
}

func TestPostgresRepo_CreateMessage_TenantMismatch(t *testing.T) {
	repo, _, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	message := model.NewMessage(&model.Message{TenantID: "wrong-tenant"})

	err := repo.CreateMessage(ctx, message)
	require.Error(t, err)
	assert.True(t, apperrors.IsBadRequestError(err))
}

func TestPostgresRepo_FindMessageByCorrelation(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "correlation_ref", "template_name", "status"}).
		AddRow("msg-1", testTenantID, "order-123", "order_confirmation", model.MessageStatusSent)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "wa_messages" WHERE tenant_id = $1 AND correlation_ref = $2 AND template_name = $3`)).
		WithArgs(testTenantID, "order-123", "order_confirmation", 1).
		WillReturnRows(rows)

	message, err := repo.FindMessageByCorrelation(ctx, "order-123", "order_confirmation")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", message.ID)
	assert.Equal(t, model.MessageStatusSent, message.Status)
}

func TestPostgresRepo_FindMessageByCorrelation_NotFound(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "wa_messages"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindMessageByCorrelation(ctx, "order-404", "order_confirmation")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestPostgresRepo_MarkMessageSent(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	cost := 0.05
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "wa_messages" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkMessageSent(ctx, "msg-1", "SM123", &cost)
	assert.NoError(t, err)
}

func TestPostgresRepo_MarkMessageSent_Conflict(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	// Row already moved past queued: conditional update touches nothing.
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "wa_messages" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkMessageSent(ctx, "msg-1", "SM123", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflictError(err))
}

func TestPostgresRepo_MarkMessageRead_Conflict(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "wa_messages" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkMessageRead(ctx, "msg-terminal")
	require.Error(t, err)
	assert.True(t, apperrors.IsConflictError(err))
}

func TestPostgresRepo_MarkMessageFailed(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "wa_messages" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkMessageFailed(ctx, "msg-1", "63016", "Recipient unreachable")
	assert.NoError(t, err)
}

func TestPostgresRepo_MessageStats(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	since := time.Now().Add(-30 * 24 * time.Hour)
	rows := sqlmock.NewRows([]string{"message_type", "status", "count", "cost"}).
		AddRow(model.MessageTypeOrderConfirmation, model.MessageStatusSent, 10, 0.5).
		AddRow(model.MessageTypeReminder, model.MessageStatusDelivered, 4, 0.2)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT message_type, status, COUNT(*) AS count, COALESCE(SUM(cost), 0) AS cost FROM "wa_messages"`)).
		WithArgs(testTenantID, AnyTime{}).
		WillReturnRows(rows)

	stats, err := repo.MessageStats(ctx, since)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, int64(10), stats[0].Count)
	assert.InDelta(t, 0.5, stats[0].Cost, 1e-9)
}

func TestPostgresRepo_MissingTenant(t *testing.T) {
	repo, _, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	_, err := repo.FindMessageByCorrelation(context.Background(), "order-123", "order_confirmation")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorizedError(err))
}
