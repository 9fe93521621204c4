// Package export renders audit query results into CSV, Excel, and PDF.
// Renderers are pure: query results in, bytes out. Routing between the
// synchronous and job-backed paths lives in the usecase layer.
package export

import (
	"time"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
)

// Columns returns the export header row. The leading three columns are
// fixed; Content is appended only when the caller asked for message bodies.
func Columns(includeContent bool) []string {
	columns := []string{
		"ID", "Order ID", "Communication Type", "Recipient", "Subject",
		"Delivery Status", "Sent At", "Delivered At", "Failure Reason",
	}
	if includeContent {
		columns = append(columns, "Content")
	}
	return columns
}

// Row flattens one audit entry into export cells, matching Columns.
func Row(log model.CommunicationLog, includeContent bool) []string {
	row := []string{
		log.ID,
		log.OrderID,
		string(log.CommunicationType),
		log.Recipient(),
		derefString(log.Subject),
		string(log.DeliveryStatus),
		formatTime(&log.SentAt),
		formatTime(log.DeliveredAt),
		derefString(log.FailureReason),
	}
	if includeContent {
		row = append(row, log.Content)
	}
	return row
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
