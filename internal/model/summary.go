package model

import "time"

// MaxSummaryRangeDays bounds the delivery summary date range.
const MaxSummaryRangeDays = 365

// DeliveryStatusSummary aggregates counts over a date range. Not persisted.
// Invariant: the status and type count maps each sum to TotalCommunications.
type DeliveryStatusSummary struct {
	OrganizationID      string                      `json:"organizationId,omitempty"`
	From                time.Time                   `json:"from"`
	To                  time.Time                   `json:"to"`
	TotalCommunications int64                       `json:"totalCommunications"`
	StatusCounts        map[DeliveryStatus]int64    `json:"statusCounts"`
	TypeCounts          map[CommunicationType]int64 `json:"typeCounts"`
	DeliverySuccessRate float64                     `json:"deliverySuccessRate"`
}

// ComputeSuccessRate derives the success rate from the status counts:
// (delivered + opened + clicked) / total * 100, bounded to [0, 100] and
// defined as 0 for an empty summary.
func (s *DeliveryStatusSummary) ComputeSuccessRate() {
	if s.TotalCommunications == 0 {
		s.DeliverySuccessRate = 0
		return
	}
	var succeeded int64
	for status, count := range s.StatusCounts {
		if status.IsSuccess() {
			succeeded += count
		}
	}
	rate := float64(succeeded) / float64(s.TotalCommunications) * 100
	if rate < 0 {
		rate = 0
	}
	if rate > 100 {
		rate = 100
	}
	s.DeliverySuccessRate = rate
}
