package model

import (
	"time"

	"gorm.io/datatypes"
)

// Schedule message types, one per reminder offset.
const (
	ScheduleTypeReminderD7 = "reminder_d7"
	ScheduleTypeReminderD3 = "reminder_d3"
	ScheduleTypeReminderD1 = "reminder_d1"
)

// Schedule lifecycle statuses. Scheduled rows are claimed by the sweep and
// move to exactly one of sent, skipped or failed.
const (
	ScheduleStatusScheduled = "scheduled"
	ScheduleStatusSent      = "sent"
	ScheduleStatusSkipped   = "skipped"
	ScheduleStatusFailed    = "failed"
)

// Skip reasons recorded when a due schedule is not dispatched.
const (
	SkipReasonOptedOut       = "opted_out"
	SkipReasonOrderCancelled = "order_cancelled"
)

// ReminderOffset pairs a schedule message type with its lead time before the
// event start.
type ReminderOffset struct {
	MessageType string
	Lead        time.Duration
}

// ReminderOffsets is the fixed reminder ladder: 7, 3 and 1 days before the
// event, evaluated in that order.
var ReminderOffsets = []ReminderOffset{
	{MessageType: ScheduleTypeReminderD7, Lead: 7 * 24 * time.Hour},
	{MessageType: ScheduleTypeReminderD3, Lead: 3 * 24 * time.Hour},
	{MessageType: ScheduleTypeReminderD1, Lead: 24 * time.Hour},
}

// Schedule represents one deferred reminder send.
type Schedule struct {
	ID             string         `json:"id" gorm:"column:id;primaryKey"`
	TenantID       string         `json:"tenant_id" gorm:"column:tenant_id;index;uniqueIndex:idx_schedules_correlation,priority:1"`
	MessageType    string         `json:"message_type" gorm:"column:message_type;uniqueIndex:idx_schedules_correlation,priority:3"`
	CorrelationRef string         `json:"correlation_ref" gorm:"column:correlation_ref;uniqueIndex:idx_schedules_correlation,priority:2"`
	RunAt          time.Time      `json:"run_at" gorm:"column:run_at;index"`
	Payload        datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb;column:payload"`
	Status         string         `json:"status" gorm:"column:status;index"`
	MessageID      string         `json:"message_id,omitempty" gorm:"column:message_id"`
	Reason         string         `json:"reason,omitempty" gorm:"column:reason"`
	RanAt          *time.Time     `json:"ran_at,omitempty" gorm:"column:ran_at"`
	CreatedAt      time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Schedule) TableName() string {
	return "wa_schedules"
}
