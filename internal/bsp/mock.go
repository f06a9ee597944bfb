package bsp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
)

// MockAdapter is an in-process provider used in development and tests. It
// accepts every send, assigns a fake provider ID and a fixed cost, and can
// be told to fail specific phone numbers.
type MockAdapter struct {
	mu       sync.Mutex
	sent     []SendTemplateRequest
	failFor  map[string]string // phone -> error code
	sendCost float64
}

// NewMockAdapter creates a mock provider with a fixed per-message cost.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		failFor:  make(map[string]string),
		sendCost: 0.05,
	}
}

// Name returns the registry key of the adapter.
func (a *MockAdapter) Name() string {
	return "mock"
}

// FailPhone makes subsequent sends to the phone fail with the given code.
func (a *MockAdapter) FailPhone(phone, errorCode string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failFor[phone] = errorCode
}

// Sent returns a copy of every request accepted so far.
func (a *MockAdapter) Sent() []SendTemplateRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]SendTemplateRequest, len(a.sent))
	copy(out, a.sent)
	return out
}

// Authenticate accepts any non-empty credential set.
func (a *MockAdapter) Authenticate(_ context.Context, creds Credentials) error {
	if len(creds) == 0 {
		return fmt.Errorf("%w: mock adapter requires credentials", apperrors.ErrUnauthorized)
	}
	return nil
}

// SendTemplate records the request and fabricates a provider response.
func (a *MockAdapter) SendTemplate(_ context.Context, _ Credentials, req SendTemplateRequest) (*SendResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if code, ok := a.failFor[req.To]; ok {
		return &SendResult{
			Success:      false,
			ErrorCode:    code,
			ErrorMessage: "mock provider rejected the message",
		}, nil
	}

	a.sent = append(a.sent, req)
	cost := a.sendCost
	return &SendResult{
		Success:           true,
		ProviderMessageID: "mock-" + uuid.NewString(),
		Cost:              &cost,
	}, nil
}

// mockWebhookPayload is the callback shape the mock provider emits.
type mockWebhookPayload struct {
	MessageID    string `json:"message_id"`
	Status       string `json:"status"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ParseWebhook decodes the mock callback format.
func (a *MockAdapter) ParseWebhook(payload []byte) (*StatusEvent, error) {
	var body mockWebhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: unparseable mock callback: %w", apperrors.ErrBadRequest, err)
	}
	if body.MessageID == "" || body.Status == "" {
		return nil, fmt.Errorf("%w: mock callback requires message_id and status", apperrors.ErrBadRequest)
	}
	return &StatusEvent{
		ProviderMessageID: body.MessageID,
		Status:            body.Status,
		ErrorCode:         body.ErrorCode,
		ErrorMessage:      body.ErrorMessage,
	}, nil
}
