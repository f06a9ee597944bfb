package model

import "time"

// Consent states tracked per phone number. Unknown numbers are treated as
// not consented by the send pipeline.
const (
	OptInStatusOptedIn  = "opt_in"
	OptInStatusOptedOut = "opt_out"
	OptInStatusUnknown  = "unknown"
)

// OptIn records the latest consent decision for a phone number within a
// tenant. Phone is stored in normalized international form.
type OptIn struct {
	ID          string     `json:"id" gorm:"column:id;primaryKey"`
	TenantID    string     `json:"tenant_id" gorm:"column:tenant_id;uniqueIndex:idx_optins_phone,priority:1"`
	Phone       string     `json:"phone" gorm:"column:phone;uniqueIndex:idx_optins_phone,priority:2"`
	Status      string     `json:"status" gorm:"column:status"`
	Source      string     `json:"source,omitempty" gorm:"column:source"`
	ConsentedAt *time.Time `json:"consented_at,omitempty" gorm:"column:consented_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty" gorm:"column:revoked_at"`
	CreatedAt   time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (OptIn) TableName() string {
	return "wa_opt_ins"
}

// HasConsent reports whether this record authorizes sending.
func (o *OptIn) HasConsent() bool {
	return o.Status == OptInStatusOptedIn
}
