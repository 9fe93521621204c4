// Package events publishes delivery-status transitions to NATS JetStream so
// the portal's realtime notification center can react without polling the
// audit store. Publishing is best-effort: a broker outage never delays or
// fails a provider webhook response.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/logger"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/utils"
)

// StatusEvent is the published wire shape of one status transition.
type StatusEvent struct {
	ExternalID        string                  `json:"external_id"`
	OrganizationID    string                  `json:"organization_id,omitempty"`
	OrderID           string                  `json:"order_id,omitempty"`
	CommunicationType model.CommunicationType `json:"communication_type,omitempty"`
	Status            model.DeliveryStatus    `json:"status"`
	Provider          string                  `json:"provider"`
	OccurredAt        time.Time               `json:"occurred_at"`
}

// Publisher emits status transitions. The nil-safe no-op implementation is
// used when events are disabled in config.
type Publisher interface {
	PublishStatusTransition(ctx context.Context, event StatusEvent)
	Close()
}

// NoopPublisher drops everything. Used when events.enabled is false.
type NoopPublisher struct{}

// PublishStatusTransition does nothing.
func (NoopPublisher) PublishStatusTransition(context.Context, StatusEvent) {}

// Close does nothing.
func (NoopPublisher) Close() {}

// JetStreamPublisher publishes transitions to a JetStream stream, one
// subject per organization.
type JetStreamPublisher struct {
	nc            *nats.Conn
	js            nats.JetStreamContext
	subjectPrefix string
}

// Ensure JetStreamPublisher implements Publisher
var _ Publisher = (*JetStreamPublisher)(nil)

// NewJetStreamPublisher connects to NATS and ensures the stream exists.
func NewJetStreamPublisher(url, stream, subjectPrefix string) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, s *nats.Subscription, err error) {
			logger.Log.Error("NATS error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// Ensure the stream exists; tolerate it already being there.
	_, err = js.StreamInfo(stream)
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			nc.Close()
			return nil, fmt.Errorf("failed to get stream info for '%s': %w", stream, err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     stream,
			Subjects: []string{subjectPrefix + ".>"},
			Storage:  nats.FileStorage,
			MaxAge:   7 * 24 * time.Hour,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to add stream '%s': %w", stream, err)
		}
		logger.Log.Info("Created status events stream", zap.String("name", stream))
	}

	return &JetStreamPublisher{nc: nc, js: js, subjectPrefix: subjectPrefix}, nil
}

// PublishStatusTransition publishes one transition asynchronously. Failures
// are logged, never returned: the webhook path cannot afford to wait on or
// fail because of the broker.
func (p *JetStreamPublisher) PublishStatusTransition(ctx context.Context, event StatusEvent) {
	subject := p.subjectPrefix + ".unscoped"
	if event.OrganizationID != "" {
		subject = fmt.Sprintf("%s.%s", p.subjectPrefix, event.OrganizationID)
	}

	data := utils.MustMarshalJSON(event)
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		logger.FromContext(ctx).Warn("Failed to publish status transition",
			zap.String("subject", subject),
			zap.String("external_id", event.ExternalID),
			zap.Error(err),
		)
	}
}

// Close drains the connection, giving in-flight async publishes a moment.
func (p *JetStreamPublisher) Close() {
	if p.nc == nil {
		return
	}
	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(2 * time.Second):
	}
	if err := p.nc.Drain(); err != nil {
		logger.Log.Warn("Failed to drain NATS connection", zap.Error(err))
	}
}
