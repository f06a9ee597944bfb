package storage

import (
	"context"
	"time"

	"github.com/andreiandoo/epas-sub045/internal/model"
)

// MessageRepo defines outbound message storage operations. All status
// transitions are conditional updates that fail with ErrConflict when the
// row is no longer in an eligible status.
type MessageRepo interface {
	Create(ctx context.Context, message *model.Message) error
	FindByCorrelation(ctx context.Context, correlationRef, templateName string) (*model.Message, error)
	FindByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Message, error)
	MarkSent(ctx context.Context, id, providerMessageID string, cost *float64) error
	MarkDelivered(ctx context.Context, id string) error
	MarkRead(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errorCode, errorMessage string) error
	Stats(ctx context.Context, since time.Time) ([]model.StatsRow, error)
	Close(ctx context.Context) error
}

// ScheduleRepo defines reminder schedule storage operations.
type ScheduleRepo interface {
	CreateIfAbsent(ctx context.Context, schedule *model.Schedule) (bool, error)
	FindByCorrelation(ctx context.Context, correlationRef string) ([]model.Schedule, error)
	FindDue(ctx context.Context, now time.Time, limit int) ([]model.Schedule, error)
	MarkSent(ctx context.Context, id, messageID string) error
	MarkSkipped(ctx context.Context, id, reason string) error
	MarkFailed(ctx context.Context, id, reason string) error
	Close(ctx context.Context) error
}

// OptInRepo defines consent storage operations. Phones are stored normalized.
type OptInRepo interface {
	Upsert(ctx context.Context, optIn *model.OptIn) error
	FindByPhone(ctx context.Context, phone string) (*model.OptIn, error)
	HasConsent(ctx context.Context, phone string) (bool, error)
	Close(ctx context.Context) error
}

// TemplateRepo defines template storage operations.
type TemplateRepo interface {
	Upsert(ctx context.Context, template *model.Template) error
	FindByName(ctx context.Context, name string) (*model.Template, error)
	FindApproved(ctx context.Context, name string) (*model.Template, error)
	Close(ctx context.Context) error
}
