package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/apperrors"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/events"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
	storagemock "gitlab.com/stitchfab/api/comm-audit-service/internal/storage/mock"
)

// MockPreferenceWorker mocks the IPreferenceWorker interface
type MockPreferenceWorker struct {
	mock.Mock
}

func (m *MockPreferenceWorker) SubmitTask(taskData PreferenceTaskData) error {
	args := m.Called(taskData)
	return args.Error(0)
}

func (m *MockPreferenceWorker) Stop() {
	m.Called()
}

// MockPublisher mocks the events.Publisher interface
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishStatusTransition(ctx context.Context, event events.StatusEvent) {
	m.Called(ctx, event)
}

func (m *MockPublisher) Close() {
	m.Called()
}

func newIngestFixture() (*IngestService, *storagemock.CommunicationLogRepoMock, *storagemock.DeliveryLogRepoMock, *MockPreferenceWorker, *MockPublisher) {
	logRepo := new(storagemock.CommunicationLogRepoMock)
	deliveryRepo := new(storagemock.DeliveryLogRepoMock)
	worker := new(MockPreferenceWorker)
	publisher := new(MockPublisher)
	service := NewIngestService(logRepo, deliveryRepo, worker, publisher)
	return service, logRepo, deliveryRepo, worker, publisher
}

// --- RecordCommunication Tests --- //

func TestRecordCommunication_Success(t *testing.T) {
	service, logRepo, _, _, _ := newIngestFixture()

	logRepo.On("Save", mock.Anything, mock.MatchedBy(func(entry model.CommunicationLog) bool {
		return entry.ID != "" &&
			entry.DeliveryStatus == model.StatusSent &&
			entry.Direction == model.DirectionOutbound
	})).Return(nil)

	entry, err := service.RecordCommunication(context.Background(), RecordRequest{
		OrderID:           "3f2a1b0c-9d8e-4f6a-8b2c-1d2e3f4a5b6c",
		OrganizationID:    testOrgID,
		CommunicationType: model.TypeEmail,
		RecipientEmail:    "client@example.com",
		Content:           "Your proof is attached.",
	})

	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, entry.DeliveryStatus)
	assert.False(t, entry.SentAt.IsZero())
	logRepo.AssertExpectations(t)
}

func TestRecordCommunication_MissingRecipientRejected(t *testing.T) {
	service, logRepo, _, _, _ := newIngestFixture()

	_, err := service.RecordCommunication(context.Background(), RecordRequest{
		OrderID:           "3f2a1b0c-9d8e-4f6a-8b2c-1d2e3f4a5b6c",
		OrganizationID:    testOrgID,
		CommunicationType: model.TypeEmail,
		Content:           "body",
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
	logRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRecordCommunication_BothRecipientsRejected(t *testing.T) {
	service, logRepo, _, _, _ := newIngestFixture()

	_, err := service.RecordCommunication(context.Background(), RecordRequest{
		OrderID:           "3f2a1b0c-9d8e-4f6a-8b2c-1d2e3f4a5b6c",
		OrganizationID:    testOrgID,
		CommunicationType: model.TypeEmail,
		RecipientEmail:    "client@example.com",
		RecipientPhone:    "+15551230001",
		Content:           "body",
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
	logRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRecordCommunication_RecipientTypeMismatchRejected(t *testing.T) {
	service, logRepo, _, _, _ := newIngestFixture()

	// An email entry with only a phone recipient.
	_, err := service.RecordCommunication(context.Background(), RecordRequest{
		OrderID:           "3f2a1b0c-9d8e-4f6a-8b2c-1d2e3f4a5b6c",
		OrganizationID:    testOrgID,
		CommunicationType: model.TypeEmail,
		RecipientPhone:    "+15551230001",
		Content:           "body",
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))

	// And an SMS entry with only an email recipient.
	_, err = service.RecordCommunication(context.Background(), RecordRequest{
		OrderID:           "3f2a1b0c-9d8e-4f6a-8b2c-1d2e3f4a5b6c",
		OrganizationID:    testOrgID,
		CommunicationType: model.TypeSMS,
		RecipientEmail:    "client@example.com",
		Content:           "body",
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
	logRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRecordCommunication_InvalidTypeRejected(t *testing.T) {
	service, _, _, _, _ := newIngestFixture()

	_, err := service.RecordCommunication(context.Background(), RecordRequest{
		OrderID:           "3f2a1b0c-9d8e-4f6a-8b2c-1d2e3f4a5b6c",
		OrganizationID:    testOrgID,
		CommunicationType: "fax",
		RecipientEmail:    "client@example.com",
		Content:           "body",
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

// --- ProcessProviderEvents Tests --- //

func sampleEvent() model.ProviderEvent {
	return model.ProviderEvent{
		Provider:   model.ProviderSendGrid,
		Event:      "delivered",
		ExternalID: "sg-msg-001",
		Status:     model.StatusDelivered,
		Recipient:  "client@example.com",
		OccurredAt: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}
}

func TestProcessProviderEvents_AppliesEvent(t *testing.T) {
	service, logRepo, deliveryRepo, _, publisher := newIngestFixture()

	event := sampleEvent()
	updated := &model.CommunicationLog{
		ID:             "log-1",
		OrganizationID: testOrgID,
		OrderID:        "order-1",
		DeliveryStatus: model.StatusDelivered,
	}

	deliveryRepo.On("FindByExternalID", mock.Anything, event.ExternalID).
		Return(&model.NotificationDeliveryLog{Status: model.StatusSent}, nil)
	deliveryRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(entry model.NotificationDeliveryLog) bool {
		return entry.ExternalID == event.ExternalID && entry.Status == model.StatusDelivered
	})).Return(nil)
	deliveryRepo.On("AppendTransition", mock.Anything, mock.MatchedBy(func(transition model.DeliveryStatusEvent) bool {
		return transition.FromStatus == model.StatusSent && transition.ToStatus == model.StatusDelivered
	})).Return(nil)
	logRepo.On("UpdateDeliveryStatus", mock.Anything, event.ExternalID, model.StatusDelivered, "", mock.Anything).
		Return(updated, nil)
	publisher.On("PublishStatusTransition", mock.Anything, mock.MatchedBy(func(statusEvent events.StatusEvent) bool {
		return statusEvent.ExternalID == event.ExternalID && statusEvent.OrganizationID == testOrgID
	})).Return()

	result := service.ProcessProviderEvents(context.Background(), model.ProviderSendGrid, []model.ProviderEvent{event}, nil)

	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 0, result.Skipped)
	deliveryRepo.AssertExpectations(t)
	logRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestProcessProviderEvents_OrphanAbsorbedSilently(t *testing.T) {
	service, logRepo, deliveryRepo, _, publisher := newIngestFixture()

	event := sampleEvent()

	deliveryRepo.On("FindByExternalID", mock.Anything, event.ExternalID).
		Return(nil, fmt.Errorf("%w: delivery log", apperrors.ErrNotFound))
	deliveryRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	deliveryRepo.On("AppendTransition", mock.Anything, mock.Anything).Return(nil)
	logRepo.On("UpdateDeliveryStatus", mock.Anything, event.ExternalID, model.StatusDelivered, "", mock.Anything).
		Return(nil, fmt.Errorf("%w: communication log", apperrors.ErrNotFound))

	result := service.ProcessProviderEvents(context.Background(), model.ProviderSendGrid, []model.ProviderEvent{event}, nil)

	// The delivery log still captured the status; the batch succeeds.
	assert.Equal(t, 1, result.Applied)
	publisher.AssertNotCalled(t, "PublishStatusTransition", mock.Anything, mock.Anything)
}

func TestProcessProviderEvents_StorageErrorCountsAsSkip(t *testing.T) {
	service, logRepo, deliveryRepo, _, _ := newIngestFixture()

	event := sampleEvent()

	deliveryRepo.On("FindByExternalID", mock.Anything, event.ExternalID).
		Return(nil, fmt.Errorf("%w: delivery log", apperrors.ErrNotFound))
	deliveryRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	deliveryRepo.On("AppendTransition", mock.Anything, mock.Anything).Return(nil)
	logRepo.On("UpdateDeliveryStatus", mock.Anything, event.ExternalID, model.StatusDelivered, "", mock.Anything).
		Return(nil, fmt.Errorf("%w: connection reset", apperrors.ErrDatabase))

	result := service.ProcessProviderEvents(context.Background(), model.ProviderSendGrid, []model.ProviderEvent{event}, nil)

	assert.Equal(t, 0, result.Applied)
	assert.Equal(t, 1, result.Skipped)
}

func TestProcessProviderEvents_FailureReasonPropagated(t *testing.T) {
	service, logRepo, deliveryRepo, _, publisher := newIngestFixture()

	event := model.ProviderEvent{
		Provider:   model.ProviderTwilio,
		Event:      "undelivered",
		ExternalID: "SM123",
		Status:     model.StatusFailed,
		ErrorCode:  "30003",
		ErrorText:  "Unreachable destination handset",
		OccurredAt: time.Now().UTC(),
	}

	deliveryRepo.On("FindByExternalID", mock.Anything, "SM123").
		Return(nil, fmt.Errorf("%w: delivery log", apperrors.ErrNotFound))
	deliveryRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(entry model.NotificationDeliveryLog) bool {
		return entry.FailureReason != nil && *entry.FailureReason == "Error 30003: Unreachable destination handset"
	})).Return(nil)
	deliveryRepo.On("AppendTransition", mock.Anything, mock.Anything).Return(nil)
	logRepo.On("UpdateDeliveryStatus", mock.Anything, "SM123", model.StatusFailed,
		"Error 30003: Unreachable destination handset", mock.Anything).
		Return(&model.CommunicationLog{ID: "log-2"}, nil)
	publisher.On("PublishStatusTransition", mock.Anything, mock.Anything).Return()

	result := service.ProcessProviderEvents(context.Background(), model.ProviderTwilio, []model.ProviderEvent{event}, nil)

	assert.Equal(t, 1, result.Applied)
	deliveryRepo.AssertExpectations(t)
	logRepo.AssertExpectations(t)
}

func TestProcessProviderEvents_UnsubscribeQueuesEmailOptOut(t *testing.T) {
	service, logRepo, deliveryRepo, worker, publisher := newIngestFixture()

	event := model.ProviderEvent{
		Provider:   model.ProviderSendGrid,
		Event:      "unsubscribe",
		ExternalID: "sg-msg-002",
		Status:     model.StatusUnsubscribed,
		Recipient:  "client@example.com",
		OccurredAt: time.Now().UTC(),
	}

	deliveryRepo.On("FindByExternalID", mock.Anything, event.ExternalID).
		Return(nil, fmt.Errorf("%w: delivery log", apperrors.ErrNotFound))
	deliveryRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	deliveryRepo.On("AppendTransition", mock.Anything, mock.Anything).Return(nil)
	worker.On("SubmitTask", mock.MatchedBy(func(task PreferenceTaskData) bool {
		return task.Channel == model.TypeEmail &&
			task.Recipient == "client@example.com" &&
			!task.Enabled
	})).Return(nil)
	logRepo.On("UpdateDeliveryStatus", mock.Anything, event.ExternalID, model.StatusUnsubscribed, "", mock.Anything).
		Return(&model.CommunicationLog{ID: "log-3", OrganizationID: testOrgID}, nil)
	publisher.On("PublishStatusTransition", mock.Anything, mock.Anything).Return()

	result := service.ProcessProviderEvents(context.Background(), model.ProviderSendGrid, []model.ProviderEvent{event}, nil)

	assert.Equal(t, 1, result.Applied)
	worker.AssertExpectations(t)
}

// --- ProcessInboundMessage Tests --- //

func TestProcessInboundMessage_RecordsEntry(t *testing.T) {
	service, logRepo, _, worker, _ := newIngestFixture()

	logRepo.On("Save", mock.Anything, mock.MatchedBy(func(entry model.CommunicationLog) bool {
		return entry.Direction == model.DirectionInbound &&
			entry.CommunicationType == model.TypeSMS &&
			entry.RecipientPhone == "+15551230001"
	})).Return(nil)

	err := service.ProcessInboundMessage(context.Background(), &model.InboundMessage{
		Provider:   model.ProviderTwilio,
		ExternalID: "SM456",
		From:       "+15551230001",
		Body:       "Thanks, looks great!",
		ReceivedAt: time.Now().UTC(),
	})

	require.NoError(t, err)
	worker.AssertNotCalled(t, "SubmitTask", mock.Anything)
}

func TestProcessInboundMessage_OptOutQueuesConsentChange(t *testing.T) {
	service, logRepo, _, worker, _ := newIngestFixture()

	logRepo.On("Save", mock.Anything, mock.Anything).Return(nil)
	worker.On("SubmitTask", mock.MatchedBy(func(task PreferenceTaskData) bool {
		return task.Channel == model.TypeSMS &&
			task.Recipient == "+15551230001" &&
			!task.Enabled
	})).Return(nil)

	err := service.ProcessInboundMessage(context.Background(), &model.InboundMessage{
		Provider:   model.ProviderTwilio,
		ExternalID: "SM789",
		From:       "+15551230001",
		Body:       " stop ",
		ReceivedAt: time.Now().UTC(),
	})

	require.NoError(t, err)
	worker.AssertExpectations(t)
}

func TestProcessInboundMessage_DuplicateAbsorbed(t *testing.T) {
	service, logRepo, _, _, _ := newIngestFixture()

	logRepo.On("Save", mock.Anything, mock.Anything).
		Return(fmt.Errorf("%w: external_message_id", apperrors.ErrDuplicate))

	err := service.ProcessInboundMessage(context.Background(), &model.InboundMessage{
		Provider:   model.ProviderTwilio,
		ExternalID: "SM456",
		From:       "+15551230001",
		Body:       "STOP",
		ReceivedAt: time.Now().UTC(),
	})

	require.NoError(t, err)
}
