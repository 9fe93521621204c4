package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapProviderEvent_SendGrid(t *testing.T) {
	cases := []struct {
		event    string
		expected DeliveryStatus
	}{
		{"delivered", StatusDelivered},
		{"bounce", StatusBounced},
		{"dropped", StatusFailed},
		{"deferred", StatusDeferred},
		{"open", StatusOpened},
		{"click", StatusClicked},
		{"spamreport", StatusSpamReport},
		{"unsubscribe", StatusUnsubscribed},
	}

	for _, tc := range cases {
		t.Run(tc.event, func(t *testing.T) {
			status, err := MapProviderEvent(ProviderSendGrid, tc.event)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, status)
		})
	}
}

func TestMapProviderEvent_Twilio(t *testing.T) {
	cases := []struct {
		event    string
		expected DeliveryStatus
	}{
		{"queued", StatusQueued},
		{"sent", StatusSent},
		{"delivered", StatusDelivered},
		{"undelivered", StatusFailed},
		{"failed", StatusFailed},
		{"received", StatusDelivered},
	}

	for _, tc := range cases {
		t.Run(tc.event, func(t *testing.T) {
			status, err := MapProviderEvent(ProviderTwilio, tc.event)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, status)
		})
	}
}

func TestMapProviderEvent_CaseInsensitive(t *testing.T) {
	status, err := MapProviderEvent("SendGrid", "Delivered")
	assert.NoError(t, err)
	assert.Equal(t, StatusDelivered, status)
}

func TestMapProviderEvent_UnrecognizedEvent(t *testing.T) {
	_, err := MapProviderEvent(ProviderSendGrid, "processed_weirdly")
	assert.Error(t, err)

	_, err = MapProviderEvent("mailgun", "delivered")
	assert.Error(t, err)
}

func TestIsOptOutKeyword(t *testing.T) {
	for _, body := range []string{"STOP", "stop", "Stop", " stop ", "UNSUBSCRIBE", "cancel", "END", "quit"} {
		assert.True(t, IsOptOutKeyword(body), "expected %q to be an opt-out keyword", body)
	}
	for _, body := range []string{"", "please stop", "STOPP", "stop it", "halt"} {
		assert.False(t, IsOptOutKeyword(body), "expected %q not to be an opt-out keyword", body)
	}
}

func TestFormatFailureReason(t *testing.T) {
	assert.Equal(t, "Error 30003: Unreachable destination handset", FormatFailureReason("30003", "Unreachable destination handset"))
	assert.Equal(t, "Error 30003", FormatFailureReason("30003", ""))
	assert.Equal(t, "Invalid", FormatFailureReason("", "Invalid"))
	assert.Equal(t, "", FormatFailureReason("", ""))
}

func TestDeliveryStatus_Classification(t *testing.T) {
	assert.True(t, StatusDelivered.IsSuccess())
	assert.True(t, StatusOpened.IsSuccess())
	assert.True(t, StatusClicked.IsSuccess())
	assert.False(t, StatusBounced.IsSuccess())

	assert.True(t, StatusBounced.IsFailure())
	assert.True(t, StatusFailed.IsFailure())
	assert.True(t, StatusUndelivered.IsFailure())
	assert.False(t, StatusDelivered.IsFailure())
	assert.False(t, StatusDeferred.IsFailure())
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range AllStatuses() {
		assert.True(t, IsValidStatus(s))
	}
	assert.False(t, IsValidStatus(DeliveryStatus("exploded")))
}
