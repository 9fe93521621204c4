package httpapi

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/normalizer"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/usecase"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/logger"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/utils"
)

// twimlEmptyResponse acknowledges a Twilio callback without replying.
const twimlEmptyResponse = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// WebhookHandler receives provider delivery callbacks. The contract with
// both providers is the same: a syntactically valid request is always
// acknowledged with 2xx, even when individual events inside it are
// unusable. A non-2xx answer makes the provider retry the whole batch,
// which would replay events we already applied.
type WebhookHandler struct {
	ingestService *usecase.IngestService
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(ingestService *usecase.IngestService) *WebhookHandler {
	return &WebhookHandler{ingestService: ingestService}
}

// ingestAck is the body returned to providers after processing a batch.
type ingestAck struct {
	Received int `json:"received"`
	Applied  int `json:"applied"`
	Skipped  int `json:"skipped"`
}

// SendGrid handles POST /webhooks/sendgrid: a JSON array of delivery events.
func (h *WebhookHandler) SendGrid(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return badRequest(c, "unreadable request body")
	}

	batch, skipped, err := normalizer.NormalizeSendGridBatch(payload)
	if err != nil {
		// Only a body that is not a JSON array earns a client error.
		return badRequest(c, "expected a JSON array of events")
	}

	result := h.ingestService.ProcessProviderEvents(c.Request().Context(), model.ProviderSendGrid, batch, skipped)
	return c.JSON(http.StatusOK, ingestAck{Received: result.Received, Applied: result.Applied, Skipped: result.Skipped})
}

// TwilioStatus handles POST /webhooks/twilio: one form-encoded status
// callback per request. Twilio expects an XML body back on its channel.
func (h *WebhookHandler) TwilioStatus(c echo.Context) error {
	form, err := c.FormParams()
	if err != nil {
		return badRequest(c, "unreadable form body")
	}

	event, skip := normalizer.NormalizeTwilioStatus(form)
	var batch []model.ProviderEvent
	var skipped []normalizer.SkippedEvent
	if skip != nil {
		skipped = append(skipped, *skip)
	} else {
		batch = append(batch, *event)
	}

	h.ingestService.ProcessProviderEvents(c.Request().Context(), model.ProviderTwilio, batch, skipped)
	return c.Blob(http.StatusOK, echo.MIMEApplicationXML, []byte(twimlEmptyResponse))
}

// TwilioInbound handles POST /webhooks/twilio/inbound: subscriber replies,
// including opt-out keywords. Twilio expects a TwiML document back.
func (h *WebhookHandler) TwilioInbound(c echo.Context) error {
	form, err := c.FormParams()
	if err != nil {
		return badRequest(c, "unreadable form body")
	}

	msg, skip := normalizer.NormalizeTwilioInbound(form)
	if skip != nil {
		logger.FromContext(c.Request().Context()).Warn("Dropped inbound message",
			zap.String("reason", skip.Reason))
		return c.Blob(http.StatusOK, echo.MIMEApplicationXML, []byte(twimlEmptyResponse))
	}

	if err := h.ingestService.ProcessInboundMessage(c.Request().Context(), msg); err != nil {
		// Inbound webhooks are acknowledged unconditionally; the raw payload
		// is already logged for replay.
		logger.FromContext(c.Request().Context()).Error("Failed to record inbound message",
			zap.String("external_id", msg.ExternalID), zap.Error(err))
	}

	return c.Blob(http.StatusOK, echo.MIMEApplicationXML, []byte(twimlEmptyResponse))
}

// Health handles GET /webhooks/health for provider-side monitors.
func (h *WebhookHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"endpoints": []string{
			"/webhooks/sendgrid",
			"/webhooks/twilio",
			"/webhooks/twilio/inbound",
		},
		"timestamp": utils.FormatISO8601(utils.Now()),
	})
}
