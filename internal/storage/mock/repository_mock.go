package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/andreiandoo/epas-sub045/internal/model"
)

// --- MessageRepo Mock ---

// MessageRepoMock mocks the MessageRepo interface
type MessageRepoMock struct {
	mock.Mock
}

// Create mocks the Create method
func (m *MessageRepoMock) Create(ctx context.Context, message *model.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

// FindByCorrelation mocks the FindByCorrelation method
func (m *MessageRepoMock) FindByCorrelation(ctx context.Context, correlationRef, templateName string) (*model.Message, error) {
	args := m.Called(ctx, correlationRef, templateName)
	if msg, ok := args.Get(0).(*model.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByProviderMessageID mocks the FindByProviderMessageID method
func (m *MessageRepoMock) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	args := m.Called(ctx, providerMessageID)
	if msg, ok := args.Get(0).(*model.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkSent mocks the MarkSent method
func (m *MessageRepoMock) MarkSent(ctx context.Context, id, providerMessageID string, cost *float64) error {
	args := m.Called(ctx, id, providerMessageID, cost)
	return args.Error(0)
}

// MarkDelivered mocks the MarkDelivered method
func (m *MessageRepoMock) MarkDelivered(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MarkRead mocks the MarkRead method
func (m *MessageRepoMock) MarkRead(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MarkFailed mocks the MarkFailed method
func (m *MessageRepoMock) MarkFailed(ctx context.Context, id, errorCode, errorMessage string) error {
	args := m.Called(ctx, id, errorCode, errorMessage)
	return args.Error(0)
}

// Stats mocks the Stats method
func (m *MessageRepoMock) Stats(ctx context.Context, since time.Time) ([]model.StatsRow, error) {
	args := m.Called(ctx, since)
	if rows, ok := args.Get(0).([]model.StatsRow); ok {
		return rows, args.Error(1)
	}
	return nil, args.Error(1)
}

// Close mocks the Close method
func (m *MessageRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ScheduleRepo Mock ---

// ScheduleRepoMock mocks the ScheduleRepo interface
type ScheduleRepoMock struct {
	mock.Mock
}

// CreateIfAbsent mocks the CreateIfAbsent method
func (m *ScheduleRepoMock) CreateIfAbsent(ctx context.Context, schedule *model.Schedule) (bool, error) {
	args := m.Called(ctx, schedule)
	return args.Bool(0), args.Error(1)
}

// FindByCorrelation mocks the FindByCorrelation method
func (m *ScheduleRepoMock) FindByCorrelation(ctx context.Context, correlationRef string) ([]model.Schedule, error) {
	args := m.Called(ctx, correlationRef)
	if schedules, ok := args.Get(0).([]model.Schedule); ok {
		return schedules, args.Error(1)
	}
	return nil, args.Error(1)
}

// FindDue mocks the FindDue method
func (m *ScheduleRepoMock) FindDue(ctx context.Context, now time.Time, limit int) ([]model.Schedule, error) {
	args := m.Called(ctx, now, limit)
	if schedules, ok := args.Get(0).([]model.Schedule); ok {
		return schedules, args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkSent mocks the MarkSent method
func (m *ScheduleRepoMock) MarkSent(ctx context.Context, id, messageID string) error {
	args := m.Called(ctx, id, messageID)
	return args.Error(0)
}

// MarkSkipped mocks the MarkSkipped method
func (m *ScheduleRepoMock) MarkSkipped(ctx context.Context, id, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

// MarkFailed mocks the MarkFailed method
func (m *ScheduleRepoMock) MarkFailed(ctx context.Context, id, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

// Close mocks the Close method
func (m *ScheduleRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- OptInRepo Mock ---

// OptInRepoMock mocks the OptInRepo interface
type OptInRepoMock struct {
	mock.Mock
}

// Upsert mocks the Upsert method
func (m *OptInRepoMock) Upsert(ctx context.Context, optIn *model.OptIn) error {
	args := m.Called(ctx, optIn)
	return args.Error(0)
}

// FindByPhone mocks the FindByPhone method
func (m *OptInRepoMock) FindByPhone(ctx context.Context, phone string) (*model.OptIn, error) {
	args := m.Called(ctx, phone)
	if optIn, ok := args.Get(0).(*model.OptIn); ok {
		return optIn, args.Error(1)
	}
	return nil, args.Error(1)
}

// HasConsent mocks the HasConsent method
func (m *OptInRepoMock) HasConsent(ctx context.Context, phone string) (bool, error) {
	args := m.Called(ctx, phone)
	return args.Bool(0), args.Error(1)
}

// Close mocks the Close method
func (m *OptInRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- TemplateRepo Mock ---

// TemplateRepoMock mocks the TemplateRepo interface
type TemplateRepoMock struct {
	mock.Mock
}

// Upsert mocks the Upsert method
func (m *TemplateRepoMock) Upsert(ctx context.Context, template *model.Template) error {
	args := m.Called(ctx, template)
	return args.Error(0)
}

// FindByName mocks the FindByName method
func (m *TemplateRepoMock) FindByName(ctx context.Context, name string) (*model.Template, error) {
	args := m.Called(ctx, name)
	if template, ok := args.Get(0).(*model.Template); ok {
		return template, args.Error(1)
	}
	return nil, args.Error(1)
}

// FindApproved mocks the FindApproved method
func (m *TemplateRepoMock) FindApproved(ctx context.Context, name string) (*model.Template, error) {
	args := m.Called(ctx, name)
	if template, ok := args.Get(0).(*model.Template); ok {
		return template, args.Error(1)
	}
	return nil, args.Error(1)
}

// Close mocks the Close method
func (m *TemplateRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
