package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Outcomes of a single send attempt as reported to the caller.
const (
	SendOutcomeSent        = "sent"
	SendOutcomeAlreadySent = "already_sent"
	SendOutcomeQueued      = "queued"
	SendOutcomeSkipped     = "skipped"
	SendOutcomeFailed      = "failed"
	SendOutcomeDryRun      = "dry_run"
)

// SendRequest is the input for a transactional send.
type SendRequest struct {
	CorrelationRef string    `json:"correlation_ref" validate:"required"`
	TemplateName   string    `json:"template_name" validate:"required"`
	Phone          string    `json:"phone" validate:"required"`
	CountryPrefix  string    `json:"country_prefix,omitempty"`
	MessageType    string    `json:"message_type,omitempty" validate:"omitempty,oneof=order_confirmation reminder promo"`
	Variables      Variables `json:"variables,omitempty"`
}

// SendResult describes what happened to one send attempt.
type SendResult struct {
	Outcome           string `json:"outcome"`
	MessageID         string `json:"message_id,omitempty"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Reason            string `json:"reason,omitempty"`
	ErrorCode         string `json:"error_code,omitempty"`
}

// ReminderEvent is the input for registering reminder schedules against an
// upcoming event. EventStartAt accepts RFC 3339 or a zone-less wall-clock
// time ("2006-01-02 15:04:05") interpreted in the tenant timezone.
type ReminderEvent struct {
	CorrelationRef string    `json:"correlation_ref" validate:"required"`
	EventStartAt   string    `json:"event_start_at" validate:"required"`
	Phone          string    `json:"phone" validate:"required"`
	CountryPrefix  string    `json:"country_prefix,omitempty"`
	TemplateName   string    `json:"template_name,omitempty"`
	Variables      Variables `json:"variables,omitempty"`
}

// ParseEventStart resolves the event start into an absolute instant.
func (e ReminderEvent) ParseEventStart(loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, e.EventStartAt); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", e.EventStartAt, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable event start %q: %w", e.EventStartAt, err)
	}
	return t, nil
}

// SchedulePayload is the send material frozen into a schedule row at
// registration time.
type SchedulePayload struct {
	Phone        string    `json:"phone"`
	TemplateName string    `json:"template_name"`
	Variables    Variables `json:"variables,omitempty"`
}

// JSON serializes the payload for jsonb storage.
func (p SchedulePayload) JSON() datatypes.JSON {
	bytes, err := json.Marshal(p)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(bytes)
}

// SchedulePayloadFromJSON decodes a stored schedule payload.
func SchedulePayloadFromJSON(data datatypes.JSON) (SchedulePayload, error) {
	var p SchedulePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return SchedulePayload{}, fmt.Errorf("failed to decode schedule payload: %w", err)
	}
	return p, nil
}

// ScheduleResult reports one reminder slot after registration.
type ScheduleResult struct {
	ScheduleID  string    `json:"schedule_id"`
	MessageType string    `json:"message_type"`
	RunAt       time.Time `json:"run_at"`
	Created     bool      `json:"created"`
}

// BulkRecipient is one target of a bulk campaign send.
type BulkRecipient struct {
	Phone     string    `json:"phone" validate:"required"`
	Variables Variables `json:"variables,omitempty"`
}

// BulkRequest is the input for a bulk campaign send.
type BulkRequest struct {
	CampaignID   string          `json:"campaign_id" validate:"required"`
	TemplateName string          `json:"template_name" validate:"required"`
	Recipients   []BulkRecipient `json:"recipients" validate:"required,min=1,dive"`
	Variables    Variables       `json:"variables,omitempty"` // shared, prepended to per-recipient variables
	DryRun       bool            `json:"dry_run,omitempty"`
}

// BulkRecipientResult reports one recipient of a bulk send.
type BulkRecipientResult struct {
	Phone     string `json:"phone"`
	Outcome   string `json:"outcome"`
	MessageID string `json:"message_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// BulkResult aggregates a bulk campaign run.
type BulkResult struct {
	CampaignID string                `json:"campaign_id"`
	DryRun     bool                  `json:"dry_run"`
	Sent       int                   `json:"sent"`
	Skipped    int                   `json:"skipped"`
	Failed     int                   `json:"failed"`
	Results    []BulkRecipientResult `json:"results"`
}

// SweepResult aggregates one pass over due schedules.
type SweepResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// WebhookResult reports how a provider status callback was applied.
type WebhookResult struct {
	Processed bool   `json:"processed"`
	MessageID string `json:"message_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// OptInRequest is the input for recording a consent decision.
type OptInRequest struct {
	Phone         string `json:"phone" validate:"required"`
	CountryPrefix string `json:"country_prefix,omitempty"`
	Source        string `json:"source,omitempty"`
}

// StatsRow is one (type, status) bucket of the messaging stats.
type StatsRow struct {
	MessageType string  `json:"message_type"`
	Status      string  `json:"status"`
	Count       int64   `json:"count"`
	Cost        float64 `json:"cost"`
}

// StatsResult summarizes recent messaging activity for a tenant.
type StatsResult struct {
	Days      int        `json:"days"`
	Total     int64      `json:"total"`
	TotalCost float64    `json:"total_cost"`
	Rows      []StatsRow `json:"rows"`
}
