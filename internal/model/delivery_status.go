package model

import (
	"fmt"
	"strings"
)

// CommunicationType identifies the channel a communication went out on.
type CommunicationType string

const (
	TypeEmail   CommunicationType = "email"
	TypeSMS     CommunicationType = "sms"
	TypeMessage CommunicationType = "message"
)

// Direction of a communication relative to this system.
const (
	DirectionOutbound = "OUT"
	DirectionInbound  = "IN"
)

// DeliveryStatus is the canonical, provider-independent delivery state.
type DeliveryStatus string

const (
	StatusQueued       DeliveryStatus = "queued"
	StatusSent         DeliveryStatus = "sent"
	StatusDelivered    DeliveryStatus = "delivered"
	StatusBounced      DeliveryStatus = "bounced"
	StatusFailed       DeliveryStatus = "failed"
	StatusDeferred     DeliveryStatus = "deferred"
	StatusOpened       DeliveryStatus = "opened"
	StatusClicked      DeliveryStatus = "clicked"
	StatusSpamReport   DeliveryStatus = "spam_report"
	StatusUnsubscribed DeliveryStatus = "unsubscribed"
	StatusUndelivered  DeliveryStatus = "undelivered"
	StatusOptedOut     DeliveryStatus = "opted_out"
)

// Provider names used as the first key of the event mapping.
const (
	ProviderSendGrid = "sendgrid"
	ProviderTwilio   = "twilio"
)

// AllStatuses lists every canonical delivery status.
func AllStatuses() []DeliveryStatus {
	return []DeliveryStatus{
		StatusQueued, StatusSent, StatusDelivered, StatusBounced, StatusFailed,
		StatusDeferred, StatusOpened, StatusClicked, StatusSpamReport,
		StatusUnsubscribed, StatusUndelivered, StatusOptedOut,
	}
}

// IsValidStatus reports whether s is a known canonical status.
func IsValidStatus(s DeliveryStatus) bool {
	switch s {
	case StatusQueued, StatusSent, StatusDelivered, StatusBounced, StatusFailed,
		StatusDeferred, StatusOpened, StatusClicked, StatusSpamReport,
		StatusUnsubscribed, StatusUndelivered, StatusOptedOut:
		return true
	}
	return false
}

// IsSuccess reports whether the status counts toward the delivery success
// rate: the message reached the recipient (and possibly engaged them).
func (s DeliveryStatus) IsSuccess() bool {
	switch s {
	case StatusDelivered, StatusOpened, StatusClicked:
		return true
	}
	return false
}

// IsFailure reports whether the status represents a delivery failure for
// which a failure reason should be recorded.
func (s DeliveryStatus) IsFailure() bool {
	switch s {
	case StatusBounced, StatusFailed, StatusUndelivered:
		return true
	}
	return false
}

// sendgridEvents maps SendGrid webhook event names to canonical statuses.
var sendgridEvents = map[string]DeliveryStatus{
	"delivered":   StatusDelivered,
	"bounce":      StatusBounced,
	"dropped":     StatusFailed,
	"deferred":    StatusDeferred,
	"open":        StatusOpened,
	"click":       StatusClicked,
	"spamreport":  StatusSpamReport,
	"unsubscribe": StatusUnsubscribed,
}

// twilioEvents maps Twilio message-status values to canonical statuses.
// Inbound "received" is treated as a successful inbound receipt.
var twilioEvents = map[string]DeliveryStatus{
	"queued":      StatusQueued,
	"sent":        StatusSent,
	"delivered":   StatusDelivered,
	"undelivered": StatusFailed,
	"failed":      StatusFailed,
	"received":    StatusDelivered,
}

// MapProviderEvent converts a provider-specific event string into the
// canonical delivery status. Unrecognized events return an error; callers
// must log and leave the record in its current status rather than crash.
// Transitions are not monotonic-enforced: providers may skip or repeat
// states, so the store only records the most recent observation.
func MapProviderEvent(provider, event string) (DeliveryStatus, error) {
	var table map[string]DeliveryStatus
	switch strings.ToLower(provider) {
	case ProviderSendGrid:
		table = sendgridEvents
	case ProviderTwilio:
		table = twilioEvents
	default:
		return "", fmt.Errorf("unknown provider %q", provider)
	}

	status, ok := table[strings.ToLower(event)]
	if !ok {
		return "", fmt.Errorf("unrecognized %s event %q", provider, event)
	}
	return status, nil
}

// optOutKeywords are the inbound message bodies that disable a recipient's
// channel preference. Matched case-insensitively against the trimmed body.
var optOutKeywords = map[string]struct{}{
	"STOP":        {},
	"UNSUBSCRIBE": {},
	"CANCEL":      {},
	"END":         {},
	"QUIT":        {},
}

// IsOptOutKeyword reports whether an inbound message body is an opt-out
// request. Exact match after trimming whitespace and upper-casing.
func IsOptOutKeyword(body string) bool {
	_, ok := optOutKeywords[strings.ToUpper(strings.TrimSpace(body))]
	return ok
}

// FormatFailureReason builds the stored failure reason string. When both a
// code and a message are present the format is "Error {code}: {message}".
func FormatFailureReason(code, message string) string {
	switch {
	case code != "" && message != "":
		return fmt.Sprintf("Error %s: %s", code, message)
	case code != "":
		return fmt.Sprintf("Error %s", code)
	default:
		return message
	}
}
