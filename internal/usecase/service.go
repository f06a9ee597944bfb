package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/andreiandoo/epas-sub045/internal/bsp"
	"github.com/andreiandoo/epas-sub045/internal/storage"
	"github.com/andreiandoo/epas-sub045/pkg/logger"
)

// CredentialsSource resolves the BSP credentials for a tenant at call time.
type CredentialsSource interface {
	Credentials(ctx context.Context, tenantID string) (bsp.Credentials, error)
}

// CostRecorder is notified exactly once per successful provider send so the
// surrounding platform can account for the delivery cost.
type CostRecorder interface {
	RecordCost(ctx context.Context, tenantID, messageID string, cost float64) error
}

// OrderStatusChecker answers whether the business object behind a
// correlation reference was cancelled since the reminder was registered.
type OrderStatusChecker interface {
	IsCancelled(ctx context.Context, tenantID, correlationRef string) (bool, error)
}

// TimezoneSource resolves the wall-clock timezone reminder inputs are
// interpreted in.
type TimezoneSource interface {
	Timezone(ctx context.Context, tenantID string) (*time.Location, error)
}

// MessagingConfig carries the tunables of the send pipeline.
type MessagingConfig struct {
	DefaultCountryPrefix string        // prepended to national phone numbers
	AdapterTimeout       time.Duration // upper bound for one BSP call
	BulkBatchSize        int           // recipients between throttle pauses
	BulkBatchDelay       time.Duration // pause after each bulk batch
}

// MessagingService implements the send, scheduling, webhook and consent
// operations on top of the repositories and the provider registry.
type MessagingService struct {
	messageRepo  storage.MessageRepo
	scheduleRepo storage.ScheduleRepo
	optInRepo    storage.OptInRepo
	templateRepo storage.TemplateRepo
	adapters     *bsp.Registry
	credentials  CredentialsSource
	costs        CostRecorder
	orders       OrderStatusChecker
	timezones    TimezoneSource
	worker       IDispatchWorker
	cfg          MessagingConfig
}

// NewMessagingService creates the service. The dispatch worker may be nil,
// in which case due schedules are processed on the calling goroutine.
func NewMessagingService(
	messageRepo storage.MessageRepo,
	scheduleRepo storage.ScheduleRepo,
	optInRepo storage.OptInRepo,
	templateRepo storage.TemplateRepo,
	adapters *bsp.Registry,
	credentials CredentialsSource,
	costs CostRecorder,
	orders OrderStatusChecker,
	timezones TimezoneSource,
	cfg MessagingConfig,
) *MessagingService {
	if cfg.DefaultCountryPrefix == "" {
		cfg.DefaultCountryPrefix = "+40"
	}
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = 15 * time.Second
	}
	if cfg.BulkBatchSize <= 0 {
		cfg.BulkBatchSize = 10
	}
	if cfg.BulkBatchDelay <= 0 {
		cfg.BulkBatchDelay = 100 * time.Millisecond
	}
	return &MessagingService{
		messageRepo:  messageRepo,
		scheduleRepo: scheduleRepo,
		optInRepo:    optInRepo,
		templateRepo: templateRepo,
		adapters:     adapters,
		credentials:  credentials,
		costs:        costs,
		orders:       orders,
		timezones:    timezones,
		cfg:          cfg,
	}
}

// SetDispatchWorker attaches the worker pool used by schedule sweeps.
func (s *MessagingService) SetDispatchWorker(worker IDispatchWorker) {
	s.worker = worker
}

// --- Default collaborator implementations ---

// LogCostRecorder reports delivery costs to the log only. Production
// deployments replace it with a billing integration.
type LogCostRecorder struct{}

func (LogCostRecorder) RecordCost(ctx context.Context, tenantID, messageID string, cost float64) error {
	logger.FromContext(ctx).Info("Recording message cost",
		zap.String("tenant_id", tenantID),
		zap.String("message_id", messageID),
		zap.Float64("cost", cost))
	return nil
}

// NoopOrderStatusChecker treats every order as still active.
type NoopOrderStatusChecker struct{}

func (NoopOrderStatusChecker) IsCancelled(context.Context, string, string) (bool, error) {
	return false, nil
}

// StaticTimezoneSource resolves every tenant to one fixed location.
type StaticTimezoneSource struct {
	Location *time.Location
}

// NewStaticTimezoneSource loads the named timezone, falling back to UTC.
func NewStaticTimezoneSource(name string) StaticTimezoneSource {
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Log.Warn("Unknown timezone, falling back to UTC", zap.String("timezone", name), zap.Error(err))
		loc = time.UTC
	}
	return StaticTimezoneSource{Location: loc}
}

func (s StaticTimezoneSource) Timezone(context.Context, string) (*time.Location, error) {
	return s.Location, nil
}

// StaticCredentialsSource serves one fixed credential set for all tenants.
type StaticCredentialsSource struct {
	Creds bsp.Credentials
}

func (s StaticCredentialsSource) Credentials(context.Context, string) (bsp.Credentials, error) {
	return s.Creds, nil
}
