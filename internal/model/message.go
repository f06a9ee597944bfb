package model

import (
	"time"

	"gorm.io/datatypes"
)

// Message types carried on the wa_messages rows.
const (
	MessageTypeOrderConfirmation = "order_confirmation"
	MessageTypeReminder          = "reminder"
	MessageTypePromo             = "promo"
)

// Message lifecycle statuses. Rank order is queued < sent < delivered < read;
// failed is terminal and reachable from queued or sent only.
const (
	MessageStatusQueued    = "queued"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusFailed    = "failed"
)

// ErrorClassException marks failures raised locally (transport error, panic,
// timeout) rather than reported by the provider.
const ErrorClassException = "EXCEPTION"

var messageStatusRank = map[string]int{
	MessageStatusQueued:    0,
	MessageStatusSent:      1,
	MessageStatusDelivered: 2,
	MessageStatusRead:      3,
}

// MessageStatusRank returns the monotonic rank of a delivery status.
// Failed and unknown statuses rank as -1 and never participate in ordering.
func MessageStatusRank(status string) int {
	if r, ok := messageStatusRank[status]; ok {
		return r
	}
	return -1
}

// CanTransitionMessage reports whether a message may move from one status to
// another. Delivery progress is strictly monotonic and failed is terminal.
func CanTransitionMessage(from, to string) bool {
	switch to {
	case MessageStatusSent:
		return from == MessageStatusQueued
	case MessageStatusDelivered:
		return from == MessageStatusSent
	case MessageStatusRead:
		return from == MessageStatusSent || from == MessageStatusDelivered
	case MessageStatusFailed:
		return from == MessageStatusQueued || from == MessageStatusSent
	default:
		return false
	}
}

// Message represents one outbound WhatsApp template message.
type Message struct {
	ID                string         `json:"id" gorm:"column:id;primaryKey"`
	TenantID          string         `json:"tenant_id" gorm:"column:tenant_id;index;uniqueIndex:idx_messages_correlation,priority:1"`
	MessageType       string         `json:"message_type" gorm:"column:message_type;index"`
	ToPhone           string         `json:"to_phone" gorm:"column:to_phone;index"`
	TemplateName      string         `json:"template_name" gorm:"column:template_name;uniqueIndex:idx_messages_correlation,priority:3"`
	Variables         datatypes.JSON `json:"variables,omitempty" gorm:"type:jsonb;column:variables"`
	Status            string         `json:"status" gorm:"column:status;index"`
	ProviderMessageID string         `json:"provider_message_id,omitempty" gorm:"column:provider_message_id;index"`
	Cost              *float64       `json:"cost,omitempty" gorm:"column:cost"`
	ErrorCode         string         `json:"error_code,omitempty" gorm:"column:error_code"`
	ErrorMessage      string         `json:"error_message,omitempty" gorm:"column:error_message"`
	CorrelationRef    string         `json:"correlation_ref" gorm:"column:correlation_ref;uniqueIndex:idx_messages_correlation,priority:2"`
	SentAt            *time.Time     `json:"sent_at,omitempty" gorm:"column:sent_at"`
	DeliveredAt       *time.Time     `json:"delivered_at,omitempty" gorm:"column:delivered_at"`
	ReadAt            *time.Time     `json:"read_at,omitempty" gorm:"column:read_at"`
	FailedAt          *time.Time     `json:"failed_at,omitempty" gorm:"column:failed_at"`
	CreatedAt         time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Message) TableName() string {
	return "wa_messages"
}

// IsTerminal reports whether the message can no longer change status.
func (m *Message) IsTerminal() bool {
	return m.Status == MessageStatusRead || m.Status == MessageStatusFailed
}
