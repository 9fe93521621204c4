package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/apperrors"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/events"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/normalizer"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/observer"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/storage"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/validator"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/logger"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/utils"
)

// IngestService records communications and reconciles provider webhook
// events against the audit store. Webhook processing is tolerant by
// construction: a bad event is skipped and counted, never bubbled up into a
// non-2xx provider response.
type IngestService struct {
	logRepo      storage.CommunicationLogRepo
	deliveryRepo storage.DeliveryLogRepo
	prefWorker   IPreferenceWorker
	publisher    events.Publisher
}

// NewIngestService creates a new ingestion service.
func NewIngestService(
	logRepo storage.CommunicationLogRepo,
	deliveryRepo storage.DeliveryLogRepo,
	prefWorker IPreferenceWorker,
	publisher events.Publisher,
) *IngestService {
	return &IngestService{
		logRepo:      logRepo,
		deliveryRepo: deliveryRepo,
		prefWorker:   prefWorker,
		publisher:    publisher,
	}
}

// RecordRequest is the write contract for logging an outbound communication
// at send time.
type RecordRequest struct {
	OrderID           string                  `json:"orderId" validate:"required,uuid4"`
	OrganizationID    string                  `json:"organizationId" validate:"required,uuid4"`
	SenderID          *string                 `json:"senderId,omitempty" validate:"omitempty,uuid4"`
	CommunicationType model.CommunicationType `json:"communicationType" validate:"required,oneof=email sms message"`
	RecipientEmail    string                  `json:"recipientEmail,omitempty" validate:"omitempty,email"`
	RecipientPhone    string                  `json:"recipientPhone,omitempty" validate:"omitempty,e164"`
	Subject           *string                 `json:"subject,omitempty"`
	Content           string                  `json:"content" validate:"required"`
	ExternalMessageID *string                 `json:"externalMessageId,omitempty"`
	SentAt            time.Time               `json:"sentAt,omitempty"`
}

// RecordCommunication persists a new audit entry for a just-sent message.
// Entries start in "sent"; provider webhooks move them from there.
func (s *IngestService) RecordCommunication(ctx context.Context, req RecordRequest) (*model.CommunicationLog, error) {
	if err := validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}
	if req.RecipientEmail == "" && req.RecipientPhone == "" {
		return nil, fmt.Errorf("%w: a recipient email or phone is required", apperrors.ErrValidation)
	}
	// Exactly one recipient field, matching the communication type.
	if req.RecipientEmail != "" && req.RecipientPhone != "" {
		return nil, fmt.Errorf("%w: only one of recipient email or phone may be set", apperrors.ErrValidation)
	}
	if req.CommunicationType == model.TypeEmail && req.RecipientEmail == "" {
		return nil, fmt.Errorf("%w: email communications require a recipient email", apperrors.ErrValidation)
	}
	if req.CommunicationType == model.TypeSMS && req.RecipientPhone == "" {
		return nil, fmt.Errorf("%w: sms communications require a recipient phone", apperrors.ErrValidation)
	}

	sentAt := req.SentAt
	if sentAt.IsZero() {
		sentAt = utils.Now()
	}

	entry := model.CommunicationLog{
		ID:                uuid.New().String(),
		OrderID:           req.OrderID,
		OrganizationID:    req.OrganizationID,
		SenderID:          req.SenderID,
		CommunicationType: req.CommunicationType,
		RecipientEmail:    req.RecipientEmail,
		RecipientPhone:    req.RecipientPhone,
		Subject:           req.Subject,
		Content:           req.Content,
		DeliveryStatus:    model.StatusSent,
		Direction:         model.DirectionOutbound,
		SentAt:            sentAt,
		ExternalMessageID: req.ExternalMessageID,
	}

	if err := s.logRepo.Save(ctx, entry); err != nil {
		logger.FromContext(ctx).Error("Failed to save communication log",
			zap.String("order_id", req.OrderID), zap.Error(err))
		return nil, err
	}

	return &entry, nil
}

// IngestResult summarizes one processed webhook batch.
type IngestResult struct {
	Received int
	Applied  int
	Skipped  int
}

// ProcessProviderEvents reconciles a batch of normalized provider events.
// Each event is applied independently; a failure on one never blocks the
// rest. The returned result is informational only: webhook handlers ack the
// provider regardless.
func (s *IngestService) ProcessProviderEvents(ctx context.Context, provider string, batch []model.ProviderEvent, skipped []normalizer.SkippedEvent) IngestResult {
	start := time.Now()
	log := logger.FromContext(ctx).With(zap.String("provider", provider))

	result := IngestResult{Received: len(batch) + len(skipped)}

	for _, skippedEvent := range skipped {
		observer.IncWebhookEventSkipped(provider, "malformed")
		log.Warn("Skipped webhook event", zap.Int("index", skippedEvent.Index), zap.String("reason", skippedEvent.Reason))
	}
	result.Skipped = len(skipped)

	for i := range batch {
		if s.applyEvent(ctx, log, &batch[i]) {
			result.Applied++
		} else {
			result.Skipped++
		}
	}

	observer.ObserveWebhookBatchDuration(provider, time.Since(start))
	log.Info("Processed webhook batch",
		zap.Int("received", result.Received),
		zap.Int("applied", result.Applied),
		zap.Int("skipped", result.Skipped),
	)
	return result
}

// applyEvent reconciles a single event: records the transition trail,
// updates the delivery log, and updates the matching communication log when
// one exists. Events for messages this service never recorded are absorbed
// silently; providers report on more traffic than the portal originates.
func (s *IngestService) applyEvent(ctx context.Context, log *zap.Logger, event *model.ProviderEvent) bool {
	observer.IncWebhookEventReceived(event.Provider, event.Event)

	// Prior status feeds the transition trail. NotFound means first sighting.
	fromStatus := model.DeliveryStatus("")
	if prior, err := s.deliveryRepo.FindByExternalID(ctx, event.ExternalID); err == nil {
		fromStatus = prior.Status
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		log.Warn("Failed to read prior delivery status",
			zap.String("external_id", event.ExternalID), zap.Error(err))
	}

	var failureReason *string
	if detail := event.FailureDetail(); detail != "" {
		failureReason = &detail
	}

	if err := s.deliveryRepo.Upsert(ctx, model.NotificationDeliveryLog{
		ExternalID:    event.ExternalID,
		Status:        event.Status,
		FailureReason: failureReason,
		Payload:       event.RawPayload,
	}); err != nil {
		log.Error("Failed to upsert delivery log",
			zap.String("external_id", event.ExternalID), zap.Error(err))
		observer.IncWebhookEventSkipped(event.Provider, "storage_error")
		return false
	}

	if err := s.deliveryRepo.AppendTransition(ctx, model.DeliveryStatusEvent{
		ExternalID: event.ExternalID,
		FromStatus: fromStatus,
		ToStatus:   event.Status,
		Provider:   event.Provider,
		Event:      event.Event,
		OccurredAt: event.OccurredAt,
	}); err != nil {
		// Trail write failures don't invalidate the applied status.
		log.Warn("Failed to append status transition",
			zap.String("external_id", event.ExternalID), zap.Error(err))
	}

	// Unsubscribes and spam reports are consent signals, not just delivery
	// states: disable the recipient's email channel, same as an SMS STOP.
	if (event.Status == model.StatusUnsubscribed || event.Status == model.StatusSpamReport) && event.Recipient != "" {
		taskCtx := logger.WithLogger(context.WithoutCancel(ctx), logger.FromContext(ctx))
		if err := s.prefWorker.SubmitTask(PreferenceTaskData{
			Ctx:       taskCtx,
			Channel:   model.TypeEmail,
			Recipient: event.Recipient,
			Enabled:   false,
		}); err != nil {
			log.Error("Failed to queue email opt-out",
				zap.String("external_id", event.ExternalID), zap.Error(err))
		} else {
			log.Info("Queued email opt-out", zap.String("event", event.Event))
		}
	}

	updated, err := s.logRepo.UpdateDeliveryStatus(ctx, event.ExternalID, event.Status, event.FailureDetail(), event.RawPayload)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Debug("No communication log for webhook event",
				zap.String("external_id", event.ExternalID), zap.String("event", event.Event))
			observer.IncWebhookEventSkipped(event.Provider, "orphan")
			// The delivery log row above still captured the status.
			return true
		}
		log.Error("Failed to update communication delivery status",
			zap.String("external_id", event.ExternalID), zap.Error(err))
		observer.IncWebhookEventSkipped(event.Provider, "storage_error")
		return false
	}

	observer.IncWebhookEventApplied(event.Provider, event.Event)

	s.publisher.PublishStatusTransition(ctx, events.StatusEvent{
		ExternalID:        event.ExternalID,
		OrganizationID:    updated.OrganizationID,
		OrderID:           updated.OrderID,
		CommunicationType: updated.CommunicationType,
		Status:            event.Status,
		Provider:          event.Provider,
		OccurredAt:        event.OccurredAt,
	})

	return true
}

// ProcessInboundMessage records an inbound message (e.g. an SMS reply) and,
// when the body is an opt-out keyword, queues the consent change. The
// preference write is asynchronous; the provider ack never waits on it.
func (s *IngestService) ProcessInboundMessage(ctx context.Context, msg *model.InboundMessage) error {
	log := logger.FromContext(ctx).With(
		zap.String("provider", msg.Provider),
		zap.String("external_id", msg.ExternalID),
	)

	externalID := msg.ExternalID
	entry := model.CommunicationLog{
		ID:                uuid.New().String(),
		CommunicationType: model.TypeSMS,
		RecipientPhone:    msg.From,
		Content:           msg.Body,
		DeliveryStatus:    model.StatusDelivered,
		Direction:         model.DirectionInbound,
		SentAt:            msg.ReceivedAt,
		ExternalMessageID: &externalID,
		ProviderMetadata:  msg.RawPayload,
	}

	if err := s.logRepo.Save(ctx, entry); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			// Provider retry of a callback we already recorded.
			log.Debug("Inbound message already recorded")
			return nil
		}
		log.Error("Failed to record inbound message", zap.Error(err))
		return err
	}

	if msg.IsOptOut() {
		taskCtx := logger.WithLogger(context.WithoutCancel(ctx), logger.FromContext(ctx))
		if err := s.prefWorker.SubmitTask(PreferenceTaskData{
			Ctx:       taskCtx,
			Channel:   model.TypeSMS,
			Recipient: msg.From,
			Enabled:   false,
		}); err != nil {
			log.Error("Failed to queue opt-out", zap.Error(err))
			return err
		}
		log.Info("Queued SMS opt-out")
	}

	return nil
}
