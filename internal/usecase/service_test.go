package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/andreiandoo/epas-sub045/internal/bsp"
	storagemock "github.com/andreiandoo/epas-sub045/internal/storage/mock"
	"github.com/andreiandoo/epas-sub045/internal/tenant"
	"github.com/andreiandoo/epas-sub045/pkg/logger"
)

const testTenantID = "tenant-1"

func testContext() context.Context {
	return tenant.WithTenantID(context.Background(), testTenantID)
}

func contextWithoutTenant() context.Context {
	return context.Background()
}

// recordingCostRecorder counts cost notifications for exactly-once checks.
type recordingCostRecorder struct {
	mu    sync.Mutex
	calls []float64
}

func (r *recordingCostRecorder) RecordCost(_ context.Context, _, _ string, cost float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cost)
	return nil
}

func (r *recordingCostRecorder) Costs() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.calls))
	copy(out, r.calls)
	return out
}

// stubOrderChecker reports a fixed cancellation answer.
type stubOrderChecker struct {
	cancelled bool
}

func (s stubOrderChecker) IsCancelled(context.Context, string, string) (bool, error) {
	return s.cancelled, nil
}

type serviceMocks struct {
	messageRepo  *storagemock.MessageRepoMock
	scheduleRepo *storagemock.ScheduleRepoMock
	optInRepo    *storagemock.OptInRepoMock
	templateRepo *storagemock.TemplateRepoMock
	adapter      *bsp.MockAdapter
	costs        *recordingCostRecorder
	orders       *stubOrderChecker
}

func newTestService(t *testing.T) (*MessagingService, *serviceMocks) {
	logger.Log = zaptest.NewLogger(t).Named("test")

	mocks := &serviceMocks{
		messageRepo:  new(storagemock.MessageRepoMock),
		scheduleRepo: new(storagemock.ScheduleRepoMock),
		optInRepo:    new(storagemock.OptInRepoMock),
		templateRepo: new(storagemock.TemplateRepoMock),
		adapter:      bsp.NewMockAdapter(),
		costs:        &recordingCostRecorder{},
		orders:       &stubOrderChecker{},
	}

	registry := bsp.NewRegistry("mock")
	registry.Register(mocks.adapter)

	service := NewMessagingService(
		mocks.messageRepo,
		mocks.scheduleRepo,
		mocks.optInRepo,
		mocks.templateRepo,
		registry,
		StaticCredentialsSource{Creds: bsp.Credentials{bsp.CredProvider: "mock"}},
		mocks.costs,
		mocks.orders,
		NewStaticTimezoneSource("Europe/Bucharest"),
		MessagingConfig{
			DefaultCountryPrefix: "+40",
			AdapterTimeout:       5 * time.Second,
			BulkBatchSize:        2,
			BulkBatchDelay:       time.Millisecond,
		},
	)
	return service, mocks
}
