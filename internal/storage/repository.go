package storage

import (
	"context"
	"time"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
)

// CommunicationLogRepo defines audit-log storage operations.
type CommunicationLogRepo interface {
	Save(ctx context.Context, log model.CommunicationLog) error
	FindByID(ctx context.Context, id string) (*model.CommunicationLog, error)
	FindByExternalID(ctx context.Context, externalID string) (*model.CommunicationLog, error)
	UpdateDeliveryStatus(ctx context.Context, externalID string, status model.DeliveryStatus, failureReason string, rawPayload []byte) (*model.CommunicationLog, error)
	Search(ctx context.Context, criteria model.SearchCriteria) ([]model.CommunicationLog, int64, error)
	Count(ctx context.Context, criteria model.SearchCriteria) (int64, error)
	Summary(ctx context.Context, organizationID string, from, to time.Time) (*model.DeliveryStatusSummary, error)
	Close(ctx context.Context) error
}

// DeliveryLogRepo defines storage for the external-id keyed delivery log
// and its append-only transition trail.
type DeliveryLogRepo interface {
	Upsert(ctx context.Context, entry model.NotificationDeliveryLog) error
	FindByExternalID(ctx context.Context, externalID string) (*model.NotificationDeliveryLog, error)
	AppendTransition(ctx context.Context, event model.DeliveryStatusEvent) error
	Close(ctx context.Context) error
}

// PreferenceRepo defines notification-preference storage operations.
type PreferenceRepo interface {
	Save(ctx context.Context, pref model.NotificationPreference) error
	FindByPhone(ctx context.Context, phone string) (*model.NotificationPreference, error)
	FindByEmail(ctx context.Context, email string) (*model.NotificationPreference, error)
	SetSMSEnabled(ctx context.Context, phone string, enabled bool) error
	SetEmailEnabled(ctx context.Context, email string, enabled bool) error
	Close(ctx context.Context) error
}

// ExportJobRepo defines export-job storage operations.
type ExportJobRepo interface {
	Create(ctx context.Context, job model.ExportJob) error
	FindByID(ctx context.Context, id string) (*model.ExportJob, error)
	MarkCompleted(ctx context.Context, id string, file model.ExportFile, recordCount int64, expiresAt time.Time) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Close(ctx context.Context) error
}
