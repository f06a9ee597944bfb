package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/model"
)

func bulkRequest() model.BulkRequest {
	return model.BulkRequest{
		CampaignID:   "camp-1",
		TemplateName: "promo_generic",
		Variables:    model.Variables{{Name: "offer", Value: "20% off"}},
		Recipients: []model.BulkRecipient{
			{Phone: "0721000001"},
			{Phone: "0721000002"},
			{Phone: "0721000003", Variables: model.Variables{{Name: "name", Value: "Dan"}}},
		},
	}
}

func TestSendBulk_MixedConsent(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	// Recipient two has opted out; the others are consented.
	mocks.optInRepo.On("HasConsent", mock.Anything, "+40721000001").Return(true, nil)
	mocks.optInRepo.On("HasConsent", mock.Anything, "+40721000002").Return(false, nil)
	mocks.optInRepo.On("HasConsent", mock.Anything, "+40721000003").Return(true, nil)

	mocks.messageRepo.On("FindByCorrelation", mock.Anything, mock.Anything, "promo_generic").
		Return(nil, apperrors.ErrNotFound)
	mocks.templateRepo.On("FindApproved", mock.Anything, "promo_generic").
		Return(approvedTemplate("promo_generic"), nil)
	mocks.messageRepo.On("Create", mock.Anything, mock.MatchedBy(func(m *model.Message) bool {
		return m.MessageType == model.MessageTypePromo
	})).Return(nil)
	mocks.messageRepo.On("MarkSent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)

	result, err := service.SendBulk(ctx, bulkRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.Results, 3)
	assert.Equal(t, model.SendOutcomeSkipped, result.Results[1].Outcome)

	// Each recipient gets its own idempotency key under the campaign.
	sent := mocks.adapter.Sent()
	require.Len(t, sent, 2)
	mocks.messageRepo.AssertCalled(t, "FindByCorrelation", mock.Anything, "camp-1:+40721000001", "promo_generic")
	mocks.messageRepo.AssertCalled(t, "FindByCorrelation", mock.Anything, "camp-1:+40721000003", "promo_generic")
}

func TestSendBulk_SharedVariablesPrecedeRecipientVariables(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	var captured *model.Message
	mocks.optInRepo.On("HasConsent", mock.Anything, mock.Anything).Return(true, nil)
	mocks.messageRepo.On("FindByCorrelation", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.ErrNotFound)
	mocks.templateRepo.On("FindApproved", mock.Anything, mock.Anything).
		Return(approvedTemplate("promo_generic"), nil)
	mocks.messageRepo.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*model.Message)
		}).Return(nil)
	mocks.messageRepo.On("MarkSent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)

	req := bulkRequest()
	req.Recipients = req.Recipients[2:3] // only the one with its own variable

	_, err := service.SendBulk(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, captured)

	variables, err := model.VariablesFromJSON(captured.Variables)
	require.NoError(t, err)
	assert.Equal(t, model.Variables{
		{Name: "offer", Value: "20% off"},
		{Name: "name", Value: "Dan"},
	}, variables)
}

func TestSendBulk_DryRun(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	mocks.templateRepo.On("FindApproved", mock.Anything, "promo_generic").
		Return(approvedTemplate("promo_generic"), nil).Once()
	mocks.messageRepo.On("FindByCorrelation", mock.Anything, mock.Anything, "promo_generic").
		Return(nil, apperrors.ErrNotFound)
	mocks.optInRepo.On("HasConsent", mock.Anything, "+40721000001").Return(true, nil)
	mocks.optInRepo.On("HasConsent", mock.Anything, "+40721000002").Return(false, nil)
	mocks.optInRepo.On("HasConsent", mock.Anything, "+40721000003").Return(true, nil)

	req := bulkRequest()
	req.DryRun = true

	result, err := service.SendBulk(ctx, req)
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, model.SendOutcomeDryRun, result.Results[0].Outcome)

	// A dry run persists nothing and talks to no provider.
	mocks.messageRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Empty(t, mocks.adapter.Sent())
	assert.Empty(t, mocks.costs.Costs())
}

func TestSendBulk_DryRunFailsClosedOnUnapprovedTemplate(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	mocks.templateRepo.On("FindApproved", mock.Anything, "promo_generic").
		Return(nil, apperrors.ErrNotFound).Once()

	req := bulkRequest()
	req.DryRun = true

	_, err := service.SendBulk(ctx, req)
	require.Error(t, err)
	assert.True(t, apperrors.IsTemplateNotApprovedError(err))

	// The gate fires before any recipient is evaluated.
	mocks.optInRepo.AssertNotCalled(t, "HasConsent", mock.Anything, mock.Anything)
}

func TestSendBulk_DryRunReportsPriorOutcomes(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	mocks.templateRepo.On("FindApproved", mock.Anything, "promo_generic").
		Return(approvedTemplate("promo_generic"), nil).Once()

	// Recipient one was sent in an earlier run, recipient two failed
	// terminally, recipient three is new.
	mocks.messageRepo.On("FindByCorrelation", mock.Anything, "camp-1:+40721000001", "promo_generic").
		Return(model.NewMessage(&model.Message{
			ID:       "msg-sent",
			TenantID: testTenantID,
			Status:   model.MessageStatusSent,
		}), nil).Once()
	failed := model.NewMessage(&model.Message{
		ID:       "msg-failed",
		TenantID: testTenantID,
		Status:   model.MessageStatusFailed,
	})
	failed.ErrorMessage = "undeliverable"
	mocks.messageRepo.On("FindByCorrelation", mock.Anything, "camp-1:+40721000002", "promo_generic").
		Return(failed, nil).Once()
	mocks.messageRepo.On("FindByCorrelation", mock.Anything, "camp-1:+40721000003", "promo_generic").
		Return(nil, apperrors.ErrNotFound).Once()
	mocks.optInRepo.On("HasConsent", mock.Anything, "+40721000003").Return(true, nil).Once()

	req := bulkRequest()
	req.DryRun = true

	result, err := service.SendBulk(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Results, 3)
	assert.Equal(t, model.SendOutcomeAlreadySent, result.Results[0].Outcome)
	assert.Equal(t, model.SendOutcomeFailed, result.Results[1].Outcome)
	assert.Equal(t, "undeliverable", result.Results[1].Reason)
	assert.Equal(t, model.SendOutcomeDryRun, result.Results[2].Outcome)

	mocks.messageRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Empty(t, mocks.adapter.Sent())
}

func TestSendBulk_RerunDoesNotDoubleSend(t *testing.T) {
	service, mocks := newTestService(t)
	ctx := testContext()

	// Every recipient already has a sent row from the first run.
	mocks.optInRepo.On("HasConsent", mock.Anything, mock.Anything).Return(true, nil)
	mocks.messageRepo.On("FindByCorrelation", mock.Anything, mock.Anything, mock.Anything).
		Return(model.NewMessage(&model.Message{
			ID:       "msg-prev",
			TenantID: testTenantID,
			Status:   model.MessageStatusSent,
		}), nil)

	result, err := service.SendBulk(ctx, bulkRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Sent) // counted as already sent
	assert.Empty(t, mocks.adapter.Sent())
	mocks.messageRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSendBulk_ValidationFailure(t *testing.T) {
	service, _ := newTestService(t)
	ctx := testContext()

	_, err := service.SendBulk(ctx, model.BulkRequest{CampaignID: "camp-1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}
