package model

import (
	"time"

	"gorm.io/datatypes"
)

// Template approval states mirroring the BSP review lifecycle. Only approved
// templates may be sent.
const (
	TemplateStatusPending  = "pending"
	TemplateStatusApproved = "approved"
	TemplateStatusRejected = "rejected"
)

// Template is a registered WhatsApp message template. ProviderRef carries the
// BSP-side identifier (e.g. a Twilio content SID).
type Template struct {
	ID          string         `json:"id" gorm:"column:id;primaryKey"`
	TenantID    string         `json:"tenant_id" gorm:"column:tenant_id;uniqueIndex:idx_templates_name,priority:1"`
	Name        string         `json:"name" gorm:"column:name;uniqueIndex:idx_templates_name,priority:2"`
	Language    string         `json:"language,omitempty" gorm:"column:language"`
	Body        string         `json:"body,omitempty" gorm:"column:body"`
	Status      string         `json:"status" gorm:"column:status;index"`
	ProviderRef string         `json:"provider_ref,omitempty" gorm:"column:provider_ref"`
	Metadata    datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb;column:metadata"`
	CreatedAt   time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Template) TableName() string {
	return "wa_templates"
}

// IsApproved reports whether the template may be used for sends.
func (t *Template) IsApproved() bool {
	return t.Status == TemplateStatusApproved
}
