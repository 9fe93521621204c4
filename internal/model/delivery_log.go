package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// NotificationDeliveryLog ties a webhook-observed external id to its latest
// normalized status. It exists separately from CommunicationLog because a
// provider callback can arrive before the originating send-confirmation
// write completes, and because some notifications are tracked outside the
// conversational message center. One row per external id; status updates
// overwrite in place while DeliveryStatusEvent keeps the full trail.
type NotificationDeliveryLog struct {
	ID            int64          `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	ExternalID    string         `json:"external_id" gorm:"column:external_id;uniqueIndex"`
	Status        DeliveryStatus `json:"status" gorm:"column:status"`
	FailureReason *string        `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	Payload       datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb;column:payload"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (NotificationDeliveryLog) TableName(namer schema.Namer) string {
	return namer.TableName("notification_delivery_logs")
}

// DeliveryLogUpdatableFields returns the columns overwritten when a newer
// event arrives for an already-tracked external id.
func DeliveryLogUpdatableFields() []string {
	return []string{"status", "failure_reason", "payload", "updated_at"}
}

// DeliveryStatusEvent is the append-only audit trail of status transitions.
// Every observed provider event lands here, including stale out-of-order
// ones, so a last-write-wins overwrite in the delivery log is recoverable.
type DeliveryStatusEvent struct {
	ID         int64          `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	ExternalID string         `json:"external_id" gorm:"column:external_id;index"`
	FromStatus DeliveryStatus `json:"from_status" gorm:"column:from_status"`
	ToStatus   DeliveryStatus `json:"to_status" gorm:"column:to_status"`
	Provider   string         `json:"provider" gorm:"column:provider"`
	Event      string         `json:"event" gorm:"column:event"`
	OccurredAt time.Time      `json:"occurred_at" gorm:"column:occurred_at"`
	CreatedAt  time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (DeliveryStatusEvent) TableName(namer schema.Namer) string {
	return namer.TableName("delivery_status_events")
}
