package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
)

// --- CommunicationLogRepo Mock ---

// CommunicationLogRepoMock mocks the CommunicationLogRepo interface
type CommunicationLogRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *CommunicationLogRepoMock) Save(ctx context.Context, log model.CommunicationLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *CommunicationLogRepoMock) FindByID(ctx context.Context, id string) (*model.CommunicationLog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CommunicationLog), args.Error(1)
}

// FindByExternalID mocks the FindByExternalID method
func (m *CommunicationLogRepoMock) FindByExternalID(ctx context.Context, externalID string) (*model.CommunicationLog, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CommunicationLog), args.Error(1)
}

// UpdateDeliveryStatus mocks the UpdateDeliveryStatus method
func (m *CommunicationLogRepoMock) UpdateDeliveryStatus(ctx context.Context, externalID string, status model.DeliveryStatus, failureReason string, rawPayload []byte) (*model.CommunicationLog, error) {
	args := m.Called(ctx, externalID, status, failureReason, rawPayload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CommunicationLog), args.Error(1)
}

// Search mocks the Search method
func (m *CommunicationLogRepoMock) Search(ctx context.Context, criteria model.SearchCriteria) ([]model.CommunicationLog, int64, error) {
	args := m.Called(ctx, criteria)
	var logs []model.CommunicationLog
	if args.Get(0) != nil {
		logs = args.Get(0).([]model.CommunicationLog)
	}
	return logs, args.Get(1).(int64), args.Error(2)
}

// Count mocks the Count method
func (m *CommunicationLogRepoMock) Count(ctx context.Context, criteria model.SearchCriteria) (int64, error) {
	args := m.Called(ctx, criteria)
	return args.Get(0).(int64), args.Error(1)
}

// Summary mocks the Summary method
func (m *CommunicationLogRepoMock) Summary(ctx context.Context, organizationID string, from, to time.Time) (*model.DeliveryStatusSummary, error) {
	args := m.Called(ctx, organizationID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeliveryStatusSummary), args.Error(1)
}

func (m *CommunicationLogRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- DeliveryLogRepo Mock ---

// DeliveryLogRepoMock mocks the DeliveryLogRepo interface
type DeliveryLogRepoMock struct {
	mock.Mock
}

// Upsert mocks the Upsert method
func (m *DeliveryLogRepoMock) Upsert(ctx context.Context, entry model.NotificationDeliveryLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// FindByExternalID mocks the FindByExternalID method
func (m *DeliveryLogRepoMock) FindByExternalID(ctx context.Context, externalID string) (*model.NotificationDeliveryLog, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.NotificationDeliveryLog), args.Error(1)
}

// AppendTransition mocks the AppendTransition method
func (m *DeliveryLogRepoMock) AppendTransition(ctx context.Context, event model.DeliveryStatusEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *DeliveryLogRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- PreferenceRepo Mock ---

// PreferenceRepoMock mocks the PreferenceRepo interface
type PreferenceRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *PreferenceRepoMock) Save(ctx context.Context, pref model.NotificationPreference) error {
	args := m.Called(ctx, pref)
	return args.Error(0)
}

// FindByPhone mocks the FindByPhone method
func (m *PreferenceRepoMock) FindByPhone(ctx context.Context, phone string) (*model.NotificationPreference, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.NotificationPreference), args.Error(1)
}

// FindByEmail mocks the FindByEmail method
func (m *PreferenceRepoMock) FindByEmail(ctx context.Context, email string) (*model.NotificationPreference, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.NotificationPreference), args.Error(1)
}

// SetSMSEnabled mocks the SetSMSEnabled method
func (m *PreferenceRepoMock) SetSMSEnabled(ctx context.Context, phone string, enabled bool) error {
	args := m.Called(ctx, phone, enabled)
	return args.Error(0)
}

// SetEmailEnabled mocks the SetEmailEnabled method
func (m *PreferenceRepoMock) SetEmailEnabled(ctx context.Context, email string, enabled bool) error {
	args := m.Called(ctx, email, enabled)
	return args.Error(0)
}

func (m *PreferenceRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ExportJobRepo Mock ---

// ExportJobRepoMock mocks the ExportJobRepo interface
type ExportJobRepoMock struct {
	mock.Mock
}

// Create mocks the Create method
func (m *ExportJobRepoMock) Create(ctx context.Context, job model.ExportJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *ExportJobRepoMock) FindByID(ctx context.Context, id string) (*model.ExportJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExportJob), args.Error(1)
}

// MarkCompleted mocks the MarkCompleted method
func (m *ExportJobRepoMock) MarkCompleted(ctx context.Context, id string, file model.ExportFile, recordCount int64, expiresAt time.Time) error {
	args := m.Called(ctx, id, file, recordCount, expiresAt)
	return args.Error(0)
}

// MarkFailed mocks the MarkFailed method
func (m *ExportJobRepoMock) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	args := m.Called(ctx, id, errorMessage)
	return args.Error(0)
}

// DeleteExpired mocks the DeleteExpired method
func (m *ExportJobRepoMock) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ExportJobRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
