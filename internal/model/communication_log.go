package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// CommunicationLog is the audit record for a single outbound (or inbound,
// e.g. an opt-out reply) communication. Rows are never deleted; views that
// need to hide a row soft-filter on IsHidden instead.
type CommunicationLog struct {
	ID                string            `json:"id" gorm:"column:id;primaryKey"`
	OrderID           string            `json:"order_id" gorm:"column:order_id;index"`
	OrganizationID    string            `json:"organization_id" gorm:"column:organization_id;index"`
	SenderID          *string           `json:"sender_id,omitempty" gorm:"column:sender_id;index"` // nil for system-generated sends
	CommunicationType CommunicationType `json:"communication_type" gorm:"column:communication_type;index"`
	RecipientEmail    string            `json:"recipient_email,omitempty" gorm:"column:recipient_email;index"`
	RecipientPhone    string            `json:"recipient_phone,omitempty" gorm:"column:recipient_phone;index"`
	Subject           *string           `json:"subject,omitempty" gorm:"column:subject"` // email only
	Content           string            `json:"content,omitempty" gorm:"column:content"`
	DeliveryStatus    DeliveryStatus    `json:"delivery_status" gorm:"column:delivery_status;index"`
	Direction         string            `json:"direction" gorm:"column:direction;default:OUT"`
	SentAt            time.Time         `json:"sent_at" gorm:"column:sent_at;index"`
	DeliveredAt       *time.Time        `json:"delivered_at,omitempty" gorm:"column:delivered_at"`
	ReadAt            *time.Time        `json:"read_at,omitempty" gorm:"column:read_at"`
	FailureReason     *string           `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	ExternalMessageID *string           `json:"external_message_id,omitempty" gorm:"column:external_message_id;uniqueIndex"` // provider correlation key
	ProviderMetadata  datatypes.JSON    `json:"provider_metadata,omitempty" gorm:"type:jsonb;column:provider_metadata"`
	IsHidden          bool              `json:"is_hidden,omitempty" gorm:"column:is_hidden;default:false"`
	CreatedAt         time.Time         `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (CommunicationLog) TableName(namer schema.Namer) string {
	return namer.TableName("communication_logs")
}

// Recipient returns the populated recipient field for the log's type.
func (c *CommunicationLog) Recipient() string {
	if c.RecipientPhone != "" {
		return c.RecipientPhone
	}
	return c.RecipientEmail
}

// StatusUpdatableFields returns the column names the webhook reconciliation
// path may touch. Everything else is immutable after creation.
func StatusUpdatableFields() []string {
	return []string{
		"delivery_status", "delivered_at", "read_at", "failure_reason",
		"provider_metadata", "updated_at",
	}
}

// SortableFields maps the search API's sortBy values onto columns. Anything
// outside this map is rejected at validation time, which also keeps user
// input out of the ORDER BY clause.
var SortableFields = map[string]string{
	"sentAt":            "sent_at",
	"deliveredAt":       "delivered_at",
	"readAt":            "read_at",
	"communicationType": "communication_type",
	"deliveryStatus":    "delivery_status",
}
