package normalizer

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
)

func TestNormalizeTwilioStatus_Delivered(t *testing.T) {
	form := url.Values{}
	form.Set("MessageSid", "SM1234567890abcdef")
	form.Set("MessageStatus", "delivered")
	form.Set("To", "+15551230001")

	event, skipped := NormalizeTwilioStatus(form)
	require.Nil(t, skipped)
	assert.Equal(t, "SM1234567890abcdef", event.ExternalID)
	assert.Equal(t, model.StatusDelivered, event.Status)
	assert.Equal(t, "+15551230001", event.Recipient)
}

func TestNormalizeTwilioStatus_FailureDetail(t *testing.T) {
	form := url.Values{}
	form.Set("MessageSid", "SMfail")
	form.Set("MessageStatus", "undelivered")
	form.Set("ErrorCode", "30003")
	form.Set("ErrorMessage", "Unreachable destination handset")

	event, skipped := NormalizeTwilioStatus(form)
	require.Nil(t, skipped)
	assert.Equal(t, model.StatusFailed, event.Status)
	assert.Equal(t, "Error 30003: Unreachable destination handset", event.FailureDetail())
}

func TestNormalizeTwilioStatus_LegacyFieldNames(t *testing.T) {
	form := url.Values{}
	form.Set("SmsSid", "SMlegacy")
	form.Set("SmsStatus", "sent")

	event, skipped := NormalizeTwilioStatus(form)
	require.Nil(t, skipped)
	assert.Equal(t, "SMlegacy", event.ExternalID)
	assert.Equal(t, model.StatusSent, event.Status)
}

func TestNormalizeTwilioStatus_MissingCorrelation(t *testing.T) {
	form := url.Values{}
	form.Set("MessageStatus", "delivered")

	event, skipped := NormalizeTwilioStatus(form)
	assert.Nil(t, event)
	require.NotNil(t, skipped)
	assert.Contains(t, skipped.Reason, "MessageSid")
}

func TestNormalizeTwilioStatus_UnrecognizedStatus(t *testing.T) {
	form := url.Values{}
	form.Set("MessageSid", "SMweird")
	form.Set("MessageStatus", "teleported")

	event, skipped := NormalizeTwilioStatus(form)
	assert.Nil(t, event)
	assert.NotNil(t, skipped)
}

func TestNormalizeTwilioInbound_StopReply(t *testing.T) {
	form := url.Values{}
	form.Set("MessageSid", "SMinbound")
	form.Set("From", "+15551230002")
	form.Set("To", "+15550009999")
	form.Set("Body", "STOP")

	msg, skipped := NormalizeTwilioInbound(form)
	require.Nil(t, skipped)
	assert.Equal(t, "+15551230002", msg.From)
	assert.True(t, msg.IsOptOut())
}

func TestNormalizeTwilioInbound_MissingFields(t *testing.T) {
	form := url.Values{}
	form.Set("From", "+15551230002")
	form.Set("Body", "STOP")

	msg, skipped := NormalizeTwilioInbound(form)
	assert.Nil(t, msg)
	require.NotNil(t, skipped, "missing MessageSid means zero mutations, not an error response")

	form = url.Values{}
	form.Set("MessageSid", "SMinbound")
	form.Set("Body", "hello")

	msg, skipped = NormalizeTwilioInbound(form)
	assert.Nil(t, msg)
	assert.NotNil(t, skipped)
}
