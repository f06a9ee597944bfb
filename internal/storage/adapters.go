package storage

import (
	"context"
	"time"

	"github.com/andreiandoo/epas-sub045/internal/model"
)

// MessageRepoAdapter adapts the PostgresRepo to the MessageRepo interface
type MessageRepoAdapter struct {
	postgres *PostgresRepo
}

// NewMessageRepoAdapter creates a new message repository adapter
func NewMessageRepoAdapter(postgres *PostgresRepo) MessageRepo {
	return &MessageRepoAdapter{postgres: postgres}
}

func (a *MessageRepoAdapter) Create(ctx context.Context, message *model.Message) error {
	return a.postgres.CreateMessage(ctx, message)
}

func (a *MessageRepoAdapter) FindByCorrelation(ctx context.Context, correlationRef, templateName string) (*model.Message, error) {
	return a.postgres.FindMessageByCorrelation(ctx, correlationRef, templateName)
}

func (a *MessageRepoAdapter) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	return a.postgres.FindMessageByProviderID(ctx, providerMessageID)
}

func (a *MessageRepoAdapter) MarkSent(ctx context.Context, id, providerMessageID string, cost *float64) error {
	return a.postgres.MarkMessageSent(ctx, id, providerMessageID, cost)
}

func (a *MessageRepoAdapter) MarkDelivered(ctx context.Context, id string) error {
	return a.postgres.MarkMessageDelivered(ctx, id)
}

func (a *MessageRepoAdapter) MarkRead(ctx context.Context, id string) error {
	return a.postgres.MarkMessageRead(ctx, id)
}

func (a *MessageRepoAdapter) MarkFailed(ctx context.Context, id, errorCode, errorMessage string) error {
	return a.postgres.MarkMessageFailed(ctx, id, errorCode, errorMessage)
}

func (a *MessageRepoAdapter) Stats(ctx context.Context, since time.Time) ([]model.StatsRow, error) {
	return a.postgres.MessageStats(ctx, since)
}

func (a *MessageRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// ScheduleRepoAdapter adapts the PostgresRepo to the ScheduleRepo interface
type ScheduleRepoAdapter struct {
	postgres *PostgresRepo
}

// NewScheduleRepoAdapter creates a new schedule repository adapter
func NewScheduleRepoAdapter(postgres *PostgresRepo) ScheduleRepo {
	return &ScheduleRepoAdapter{postgres: postgres}
}

func (a *ScheduleRepoAdapter) CreateIfAbsent(ctx context.Context, schedule *model.Schedule) (bool, error) {
	return a.postgres.CreateScheduleIfAbsent(ctx, schedule)
}

func (a *ScheduleRepoAdapter) FindByCorrelation(ctx context.Context, correlationRef string) ([]model.Schedule, error) {
	return a.postgres.FindSchedulesByCorrelation(ctx, correlationRef)
}

func (a *ScheduleRepoAdapter) FindDue(ctx context.Context, now time.Time, limit int) ([]model.Schedule, error) {
	return a.postgres.FindDueSchedules(ctx, now, limit)
}

func (a *ScheduleRepoAdapter) MarkSent(ctx context.Context, id, messageID string) error {
	return a.postgres.MarkScheduleSent(ctx, id, messageID)
}

func (a *ScheduleRepoAdapter) MarkSkipped(ctx context.Context, id, reason string) error {
	return a.postgres.MarkScheduleSkipped(ctx, id, reason)
}

func (a *ScheduleRepoAdapter) MarkFailed(ctx context.Context, id, reason string) error {
	return a.postgres.MarkScheduleFailed(ctx, id, reason)
}

func (a *ScheduleRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// OptInRepoAdapter adapts the PostgresRepo to the OptInRepo interface
type OptInRepoAdapter struct {
	postgres *PostgresRepo
}

// NewOptInRepoAdapter creates a new opt-in repository adapter
func NewOptInRepoAdapter(postgres *PostgresRepo) OptInRepo {
	return &OptInRepoAdapter{postgres: postgres}
}

func (a *OptInRepoAdapter) Upsert(ctx context.Context, optIn *model.OptIn) error {
	return a.postgres.UpsertOptIn(ctx, optIn)
}

func (a *OptInRepoAdapter) FindByPhone(ctx context.Context, phone string) (*model.OptIn, error) {
	return a.postgres.FindOptInByPhone(ctx, phone)
}

func (a *OptInRepoAdapter) HasConsent(ctx context.Context, phone string) (bool, error) {
	return a.postgres.HasOptInConsent(ctx, phone)
}

func (a *OptInRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// TemplateRepoAdapter adapts the PostgresRepo to the TemplateRepo interface
type TemplateRepoAdapter struct {
	postgres *PostgresRepo
}

// NewTemplateRepoAdapter creates a new template repository adapter
func NewTemplateRepoAdapter(postgres *PostgresRepo) TemplateRepo {
	return &TemplateRepoAdapter{postgres: postgres}
}

func (a *TemplateRepoAdapter) Upsert(ctx context.Context, template *model.Template) error {
	return a.postgres.UpsertTemplate(ctx, template)
}

func (a *TemplateRepoAdapter) FindByName(ctx context.Context, name string) (*model.Template, error) {
	return a.postgres.FindTemplateByName(ctx, name)
}

func (a *TemplateRepoAdapter) FindApproved(ctx context.Context, name string) (*model.Template, error) {
	return a.postgres.FindApprovedTemplate(ctx, name)
}

func (a *TemplateRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}
