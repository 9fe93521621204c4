package normalizer

import (
	"net/url"

	"gorm.io/datatypes"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/utils"
)

// Twilio posts form-encoded callbacks, one event per request.
// Status callback fields: MessageSid, MessageStatus, ErrorCode, ErrorMessage.
// Inbound message fields: MessageSid, From, To, Body.

// NormalizeTwilioStatus parses a Twilio status callback form into one
// canonical provider event. Missing correlation fields or an unrecognized
// status yield a skip; the caller still acknowledges the provider.
func NormalizeTwilioStatus(form url.Values) (*model.ProviderEvent, *SkippedEvent) {
	messageSid := form.Get("MessageSid")
	if messageSid == "" {
		messageSid = form.Get("SmsSid") // older callbacks use SmsSid
	}
	if messageSid == "" {
		s := skip(0, "missing MessageSid, cannot correlate")
		return nil, &s
	}

	messageStatus := form.Get("MessageStatus")
	if messageStatus == "" {
		messageStatus = form.Get("SmsStatus")
	}
	if messageStatus == "" {
		s := skip(0, "missing MessageStatus")
		return nil, &s
	}

	status, err := model.MapProviderEvent(model.ProviderTwilio, messageStatus)
	if err != nil {
		s := skip(0, "%v", err)
		return nil, &s
	}

	return &model.ProviderEvent{
		Provider:   model.ProviderTwilio,
		Event:      messageStatus,
		ExternalID: messageSid,
		Status:     status,
		Recipient:  form.Get("To"),
		ErrorCode:  form.Get("ErrorCode"),
		ErrorText:  form.Get("ErrorMessage"),
		OccurredAt: utils.Now(),
		RawPayload: datatypes.JSON(utils.MustMarshalJSON(flattenForm(form))),
	}, nil
}

// NormalizeTwilioInbound parses an inbound message webhook (e.g. a STOP
// reply). Missing correlation fields yield a skip rather than an error: the
// provider contract requires acknowledging inbound webhooks unconditionally
// to prevent retry storms, so the handler records zero mutations and moves on.
func NormalizeTwilioInbound(form url.Values) (*model.InboundMessage, *SkippedEvent) {
	messageSid := form.Get("MessageSid")
	if messageSid == "" {
		messageSid = form.Get("SmsSid")
	}
	if messageSid == "" {
		s := skip(0, "missing MessageSid on inbound message")
		return nil, &s
	}

	from := form.Get("From")
	if from == "" {
		s := skip(0, "missing From on inbound message")
		return nil, &s
	}

	return &model.InboundMessage{
		Provider:   model.ProviderTwilio,
		ExternalID: messageSid,
		From:       from,
		To:         form.Get("To"),
		Body:       form.Get("Body"),
		ReceivedAt: utils.Now(),
		RawPayload: datatypes.JSON(utils.MustMarshalJSON(flattenForm(form))),
	}, nil
}

// flattenForm keeps the first value per key, which is how Twilio sends them.
func flattenForm(form url.Values) map[string]string {
	flat := make(map[string]string, len(form))
	for key := range form {
		flat[key] = form.Get(key)
	}
	return flat
}
