package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// NotificationPreference records a recipient's channel consent. An inbound
// opt-out keyword (STOP and friends) flips the matching channel off; this is
// a property of the recipient, not of any single message.
type NotificationPreference struct {
	ID             int64     `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	OrganizationID string    `json:"organization_id" gorm:"column:organization_id;index"`
	UserID         string    `json:"user_id,omitempty" gorm:"column:user_id;index"`
	Email          string    `json:"email,omitempty" gorm:"column:email;index"`
	Phone          string    `json:"phone,omitempty" gorm:"column:phone;index"`
	EmailEnabled   bool      `json:"email_enabled" gorm:"column:email_enabled;default:true"`
	SMSEnabled     bool      `json:"sms_enabled" gorm:"column:sms_enabled;default:true"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (NotificationPreference) TableName(namer schema.Namer) string {
	return namer.TableName("notification_preferences")
}
