// Package bsp contains the pluggable WhatsApp business solution provider
// adapters. An adapter translates between the neutral send/status model and
// one provider's wire format. Adapters hold no per-tenant state: credentials
// are resolved by the caller and passed into every operation.
package bsp

import (
	"context"

	"github.com/andreiandoo/epas-sub045/internal/model"
)

// Credential map keys understood by the shipped adapters.
const (
	CredProvider   = "provider"
	CredAccountSID = "account_sid"
	CredAuthToken  = "auth_token"
	CredFromNumber = "from_number"
)

// Credentials carries provider-specific secrets for one tenant.
type Credentials map[string]string

// Provider returns the adapter key the credentials are bound to, or empty
// when the caller should fall back to the configured default.
func (c Credentials) Provider() string {
	return c[CredProvider]
}

// SendTemplateRequest is one outbound template send.
type SendTemplateRequest struct {
	To           string          // normalized international phone
	TemplateName string          // registered template name
	ProviderRef  string          // provider-side template identifier, when registered
	Variables    model.Variables // ordered placeholder bindings
}

// SendResult is the provider's synchronous answer to a send call.
type SendResult struct {
	Success           bool
	ProviderMessageID string
	Cost              *float64
	ErrorCode         string
	ErrorMessage      string
}

// StatusEvent is one parsed provider status callback, already mapped onto
// the neutral message statuses.
type StatusEvent struct {
	ProviderMessageID string
	Status            string // one of the model.MessageStatus* values
	ErrorCode         string
	ErrorMessage      string
}

// Adapter is the capability surface every provider integration implements.
type Adapter interface {
	// Name returns the registry key of the adapter.
	Name() string
	// Authenticate verifies the credentials against the provider.
	Authenticate(ctx context.Context, creds Credentials) error
	// SendTemplate dispatches one template message. A nil error with
	// Success=false means the provider rejected the message.
	SendTemplate(ctx context.Context, creds Credentials, req SendTemplateRequest) (*SendResult, error)
	// ParseWebhook decodes a raw status callback body. A nil event with nil
	// error means the payload carries nothing this engine tracks.
	ParseWebhook(payload []byte) (*StatusEvent, error)
}
