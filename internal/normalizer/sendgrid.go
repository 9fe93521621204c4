package normalizer

import (
	"encoding/json"

	"gorm.io/datatypes"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/utils"
)

// sendgridEvent is the wire shape of one SendGrid event webhook entry.
// SendGrid posts a JSON array of these, batching events across recipients.
type sendgridEvent struct {
	Email       string `json:"email"`
	Timestamp   int64  `json:"timestamp"` // unix seconds
	Event       string `json:"event"`
	SGMessageID string `json:"sg_message_id"`
	Reason      string `json:"reason,omitempty"`
	Status      string `json:"status,omitempty"` // SMTP status code on bounces
	Type        string `json:"type,omitempty"`
	URL         string `json:"url,omitempty"` // click events
}

// NormalizeSendGridBatch parses a SendGrid event webhook body into canonical
// provider events. A body that is not a JSON array fails the whole request;
// individual events that cannot be mapped are returned as skips and the rest
// of the batch proceeds.
func NormalizeSendGridBatch(payload []byte) ([]model.ProviderEvent, []SkippedEvent, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, nil, batchError(err)
	}

	events := make([]model.ProviderEvent, 0, len(raw))
	var skipped []SkippedEvent

	for i, item := range raw {
		var evt sendgridEvent
		if err := json.Unmarshal(item, &evt); err != nil {
			skipped = append(skipped, skip(i, "malformed event object: %v", err))
			continue
		}
		if evt.SGMessageID == "" {
			skipped = append(skipped, skip(i, "missing sg_message_id, cannot correlate"))
			continue
		}
		if evt.Event == "" {
			skipped = append(skipped, skip(i, "missing event name"))
			continue
		}

		status, err := model.MapProviderEvent(model.ProviderSendGrid, evt.Event)
		if err != nil {
			skipped = append(skipped, skip(i, "%v", err))
			continue
		}

		events = append(events, model.ProviderEvent{
			Provider:   model.ProviderSendGrid,
			Event:      evt.Event,
			ExternalID: evt.SGMessageID,
			Status:     status,
			Recipient:  evt.Email,
			ErrorCode:  evt.Status,
			ErrorText:  evt.Reason,
			OccurredAt: utils.UnixToTime(evt.Timestamp),
			RawPayload: datatypes.JSON(item),
		})
	}

	return events, skipped, nil
}
