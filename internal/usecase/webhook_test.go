package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/model"
)

func sentMessage(id, providerID string) *model.Message {
	return model.NewMessage(&model.Message{
		ID:                id,
		TenantID:          testTenantID,
		Status:            model.MessageStatusSent,
		ProviderMessageID: providerID,
	})
}

func TestHandleWebhook_Delivered(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	mocks.messageRepo.On("FindByProviderMessageID", mock.Anything, "mock-100").
		Return(sentMessage("msg-1", "mock-100"), nil).Once()
	mocks.messageRepo.On("MarkDelivered", mock.Anything, "msg-1").Return(nil).Once()

	result, err := service.HandleWebhook(ctx, []byte(`{"message_id":"mock-100","status":"delivered"}`))
	require.NoError(t, err)
	assert.True(t, result.Processed)
	assert.Equal(t, "msg-1", result.MessageID)
	assert.Equal(t, model.MessageStatusDelivered, result.Status)
	mocks.messageRepo.AssertExpectations(t)
}

func TestHandleWebhook_Read(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	mocks.messageRepo.On("FindByProviderMessageID", mock.Anything, "mock-101").
		Return(sentMessage("msg-2", "mock-101"), nil).Once()
	mocks.messageRepo.On("MarkRead", mock.Anything, "msg-2").Return(nil).Once()

	result, err := service.HandleWebhook(ctx, []byte(`{"message_id":"mock-101","status":"read"}`))
	require.NoError(t, err)
	assert.True(t, result.Processed)
}

func TestHandleWebhook_Failed(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	mocks.messageRepo.On("FindByProviderMessageID", mock.Anything, "mock-102").
		Return(sentMessage("msg-3", "mock-102"), nil).Once()
	mocks.messageRepo.On("MarkFailed", mock.Anything, "msg-3", "63016", "undeliverable").
		Return(nil).Once()

	result, err := service.HandleWebhook(ctx, []byte(`{"message_id":"mock-102","status":"failed","error_code":"63016","error_message":"undeliverable"}`))
	require.NoError(t, err)
	assert.True(t, result.Processed)
	assert.Equal(t, model.MessageStatusFailed, result.Status)
}

func TestHandleWebhook_UnknownMessageAbsorbed(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	mocks.messageRepo.On("FindByProviderMessageID", mock.Anything, "mock-404").
		Return(nil, apperrors.ErrNotFound).Once()

	result, err := service.HandleWebhook(ctx, []byte(`{"message_id":"mock-404","status":"delivered"}`))
	require.NoError(t, err)
	assert.False(t, result.Processed)
}

func TestHandleWebhook_StaleTransitionAbsorbed(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	// The row is already read; a late delivered callback must not regress it.
	mocks.messageRepo.On("FindByProviderMessageID", mock.Anything, "mock-105").
		Return(sentMessage("msg-5", "mock-105"), nil).Once()
	mocks.messageRepo.On("MarkDelivered", mock.Anything, "msg-5").
		Return(apperrors.ErrConflict).Once()

	result, err := service.HandleWebhook(ctx, []byte(`{"message_id":"mock-105","status":"delivered"}`))
	require.NoError(t, err)
	assert.False(t, result.Processed)
}

func TestHandleWebhook_SentCallbackIsNoOp(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	mocks.messageRepo.On("FindByProviderMessageID", mock.Anything, "mock-106").
		Return(sentMessage("msg-6", "mock-106"), nil).Once()

	result, err := service.HandleWebhook(ctx, []byte(`{"message_id":"mock-106","status":"sent"}`))
	require.NoError(t, err)
	assert.False(t, result.Processed)
	mocks.messageRepo.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything)
}

func TestHandleWebhook_UnparseablePayload(t *testing.T) {
	service, _ := newTestService(t)
	ctx := testContext()

	_, err := service.HandleWebhook(ctx, []byte("not json at all"))
	require.Error(t, err)
	assert.True(t, apperrors.IsBadRequestError(err))
}
