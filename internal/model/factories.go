package model

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/andreiandoo/epas-sub045/pkg/utils"
)

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

func fakePhone() string {
	return fmt.Sprintf("+407%08d", gofakeit.Number(0, 99999999))
}

func fakeVariables() Variables {
	return Variables{
		{Name: "name", Value: gofakeit.Name()},
		{Name: "event", Value: gofakeit.Sentence(3)},
	}
}

// NewMessage creates a Message with default fake data. An optional override
// is merged field by field where set.
func NewMessage(overrideDefaults ...*Message) *Message {
	base := &Message{
		ID:             uuid.NewString(),
		TenantID:       "tenant_" + gofakeit.LetterN(10),
		MessageType:    MessageTypeOrderConfirmation,
		ToPhone:        fakePhone(),
		TemplateName:   "order_confirmation",
		Variables:      fakeVariables().JSON(),
		Status:         MessageStatusQueued,
		CorrelationRef: "order-" + gofakeit.LetterN(8),
		CreatedAt:      utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Minute),
		UpdatedAt:      utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		override := overrideDefaults[0]
		if override.ID != "" {
			base.ID = override.ID
		}
		if override.TenantID != "" {
			base.TenantID = override.TenantID
		}
		if override.MessageType != "" {
			base.MessageType = override.MessageType
		}
		if override.ToPhone != "" {
			base.ToPhone = override.ToPhone
		}
		if override.TemplateName != "" {
			base.TemplateName = override.TemplateName
		}
		if override.Variables != nil {
			base.Variables = override.Variables
		}
		if override.Status != "" {
			base.Status = override.Status
		}
		if override.ProviderMessageID != "" {
			base.ProviderMessageID = override.ProviderMessageID
		}
		if override.Cost != nil {
			base.Cost = override.Cost
		}
		if override.CorrelationRef != "" {
			base.CorrelationRef = override.CorrelationRef
		}
	}
	return base
}

// NewSchedule creates a Schedule with default fake data.
func NewSchedule(overrideDefaults ...*Schedule) *Schedule {
	payload := SchedulePayload{
		Phone:        fakePhone(),
		TemplateName: "event_reminder",
		Variables:    fakeVariables(),
	}
	base := &Schedule{
		ID:             uuid.NewString(),
		TenantID:       "tenant_" + gofakeit.LetterN(10),
		MessageType:    ScheduleTypeReminderD1,
		CorrelationRef: "order-" + gofakeit.LetterN(8),
		RunAt:          utils.Now().Add(time.Duration(gofakeit.Number(1, 72)) * time.Hour),
		Payload:        payload.JSON(),
		Status:         ScheduleStatusScheduled,
		CreatedAt:      utils.Now(),
		UpdatedAt:      utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		override := overrideDefaults[0]
		if override.ID != "" {
			base.ID = override.ID
		}
		if override.TenantID != "" {
			base.TenantID = override.TenantID
		}
		if override.MessageType != "" {
			base.MessageType = override.MessageType
		}
		if override.CorrelationRef != "" {
			base.CorrelationRef = override.CorrelationRef
		}
		if !override.RunAt.IsZero() {
			base.RunAt = override.RunAt
		}
		if override.Payload != nil {
			base.Payload = override.Payload
		}
		if override.Status != "" {
			base.Status = override.Status
		}
	}
	return base
}

// NewOptIn creates an OptIn with default fake data.
func NewOptIn(overrideDefaults ...*OptIn) *OptIn {
	now := utils.Now()
	base := &OptIn{
		ID:          uuid.NewString(),
		TenantID:    "tenant_" + gofakeit.LetterN(10),
		Phone:       fakePhone(),
		Status:      OptInStatusOptedIn,
		Source:      "checkout",
		ConsentedAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		override := overrideDefaults[0]
		if override.ID != "" {
			base.ID = override.ID
		}
		if override.TenantID != "" {
			base.TenantID = override.TenantID
		}
		if override.Phone != "" {
			base.Phone = override.Phone
		}
		if override.Status != "" {
			base.Status = override.Status
		}
		if override.Source != "" {
			base.Source = override.Source
		}
	}
	return base
}

// NewTemplate creates a Template with default fake data.
func NewTemplate(overrideDefaults ...*Template) *Template {
	base := &Template{
		ID:          uuid.NewString(),
		TenantID:    "tenant_" + gofakeit.LetterN(10),
		Name:        gofakeit.RandomString([]string{"order_confirmation", "event_reminder", "promo_generic"}),
		Language:    "ro",
		Body:        gofakeit.Sentence(8),
		Status:      TemplateStatusApproved,
		ProviderRef: "HX" + gofakeit.LetterN(32),
		CreatedAt:   utils.Now(),
		UpdatedAt:   utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		override := overrideDefaults[0]
		if override.ID != "" {
			base.ID = override.ID
		}
		if override.TenantID != "" {
			base.TenantID = override.TenantID
		}
		if override.Name != "" {
			base.Name = override.Name
		}
		if override.Status != "" {
			base.Status = override.Status
		}
		if override.ProviderRef != "" {
			base.ProviderRef = override.ProviderRef
		}
	}
	return base
}
