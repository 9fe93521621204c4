package model

import (
	"time"

	"gorm.io/datatypes"
)

// ProviderEvent is the canonical internal form of one provider webhook
// event. The normalizer produces these; nothing past the normalizer ever
// sees provider-specific field names.
type ProviderEvent struct {
	Provider   string
	Event      string
	ExternalID string
	Status     DeliveryStatus
	Recipient  string
	ErrorCode  string
	ErrorText  string
	OccurredAt time.Time
	RawPayload datatypes.JSON
}

// FailureDetail returns the formatted failure reason for failure statuses,
// or empty for everything else.
func (e *ProviderEvent) FailureDetail() string {
	if !e.Status.IsFailure() {
		return ""
	}
	return FormatFailureReason(e.ErrorCode, e.ErrorText)
}

// InboundMessage is the canonical form of one inbound message webhook
// (e.g. an SMS STOP reply).
type InboundMessage struct {
	Provider   string
	ExternalID string
	From       string
	To         string
	Body       string
	ReceivedAt time.Time
	RawPayload datatypes.JSON
}

// IsOptOut reports whether the inbound body is an opt-out keyword.
func (m *InboundMessage) IsOptOut() bool {
	return IsOptOutKeyword(m.Body)
}
