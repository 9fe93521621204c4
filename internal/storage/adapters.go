package storage

import (
	"context"
	"time"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
)

// CommunicationLogRepoAdapter adapts the PostgresRepo to the CommunicationLogRepo interface
type CommunicationLogRepoAdapter struct {
	postgres *PostgresRepo
}

// NewCommunicationLogRepoAdapter creates a new communication log repository adapter
func NewCommunicationLogRepoAdapter(postgres *PostgresRepo) CommunicationLogRepo {
	return &CommunicationLogRepoAdapter{postgres: postgres}
}

// Save stores a new audit entry
func (a *CommunicationLogRepoAdapter) Save(ctx context.Context, log model.CommunicationLog) error {
	return a.postgres.SaveCommunicationLog(ctx, log)
}

// FindByID finds an audit entry by primary key
func (a *CommunicationLogRepoAdapter) FindByID(ctx context.Context, id string) (*model.CommunicationLog, error) {
	return a.postgres.FindCommunicationLogByID(ctx, id)
}

// FindByExternalID finds an audit entry by provider message id
func (a *CommunicationLogRepoAdapter) FindByExternalID(ctx context.Context, externalID string) (*model.CommunicationLog, error) {
	return a.postgres.FindCommunicationLogByExternalID(ctx, externalID)
}

// UpdateDeliveryStatus applies a webhook-observed status by external id
func (a *CommunicationLogRepoAdapter) UpdateDeliveryStatus(ctx context.Context, externalID string, status model.DeliveryStatus, failureReason string, rawPayload []byte) (*model.CommunicationLog, error) {
	return a.postgres.UpdateCommunicationDeliveryStatus(ctx, externalID, status, failureReason, rawPayload)
}

// Search runs a filtered paginated query
func (a *CommunicationLogRepoAdapter) Search(ctx context.Context, criteria model.SearchCriteria) ([]model.CommunicationLog, int64, error) {
	return a.postgres.SearchCommunicationLogs(ctx, criteria)
}

// Count returns the number of matching rows, ignoring pagination
func (a *CommunicationLogRepoAdapter) Count(ctx context.Context, criteria model.SearchCriteria) (int64, error) {
	return a.postgres.CountCommunicationLogs(ctx, criteria)
}

// Summary aggregates counts by status and type over a date range
func (a *CommunicationLogRepoAdapter) Summary(ctx context.Context, organizationID string, from, to time.Time) (*model.DeliveryStatusSummary, error) {
	return a.postgres.CommunicationSummary(ctx, organizationID, from, to)
}

func (a *CommunicationLogRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// DeliveryLogRepoAdapter adapts the PostgresRepo to the DeliveryLogRepo interface
type DeliveryLogRepoAdapter struct {
	postgres *PostgresRepo
}

// NewDeliveryLogRepoAdapter creates a new delivery log repository adapter
func NewDeliveryLogRepoAdapter(postgres *PostgresRepo) DeliveryLogRepo {
	return &DeliveryLogRepoAdapter{postgres: postgres}
}

// Upsert records the latest status for an external id
func (a *DeliveryLogRepoAdapter) Upsert(ctx context.Context, entry model.NotificationDeliveryLog) error {
	return a.postgres.UpsertDeliveryLog(ctx, entry)
}

// FindByExternalID finds the latest status for an external id
func (a *DeliveryLogRepoAdapter) FindByExternalID(ctx context.Context, externalID string) (*model.NotificationDeliveryLog, error) {
	return a.postgres.FindDeliveryLogByExternalID(ctx, externalID)
}

// AppendTransition appends to the status transition trail
func (a *DeliveryLogRepoAdapter) AppendTransition(ctx context.Context, event model.DeliveryStatusEvent) error {
	return a.postgres.AppendDeliveryTransition(ctx, event)
}

func (a *DeliveryLogRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// PreferenceRepoAdapter adapts the PostgresRepo to the PreferenceRepo interface
type PreferenceRepoAdapter struct {
	postgres *PostgresRepo
}

// NewPreferenceRepoAdapter creates a new preference repository adapter
func NewPreferenceRepoAdapter(postgres *PostgresRepo) PreferenceRepo {
	return &PreferenceRepoAdapter{postgres: postgres}
}

// Save creates a new preference record
func (a *PreferenceRepoAdapter) Save(ctx context.Context, pref model.NotificationPreference) error {
	return a.postgres.SavePreference(ctx, pref)
}

// FindByPhone finds the preference record for a phone number
func (a *PreferenceRepoAdapter) FindByPhone(ctx context.Context, phone string) (*model.NotificationPreference, error) {
	return a.postgres.FindPreferenceByPhone(ctx, phone)
}

// FindByEmail finds the preference record for an email address
func (a *PreferenceRepoAdapter) FindByEmail(ctx context.Context, email string) (*model.NotificationPreference, error) {
	return a.postgres.FindPreferenceByEmail(ctx, email)
}

// SetSMSEnabled flips SMS consent for a phone number
func (a *PreferenceRepoAdapter) SetSMSEnabled(ctx context.Context, phone string, enabled bool) error {
	return a.postgres.SetPreferenceSMSEnabled(ctx, phone, enabled)
}

// SetEmailEnabled flips email consent for an address
func (a *PreferenceRepoAdapter) SetEmailEnabled(ctx context.Context, email string, enabled bool) error {
	return a.postgres.SetPreferenceEmailEnabled(ctx, email, enabled)
}

func (a *PreferenceRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// ExportJobRepoAdapter adapts the PostgresRepo to the ExportJobRepo interface
type ExportJobRepoAdapter struct {
	postgres *PostgresRepo
}

// NewExportJobRepoAdapter creates a new export job repository adapter
func NewExportJobRepoAdapter(postgres *PostgresRepo) ExportJobRepo {
	return &ExportJobRepoAdapter{postgres: postgres}
}

// Create persists a new processing job
func (a *ExportJobRepoAdapter) Create(ctx context.Context, job model.ExportJob) error {
	return a.postgres.CreateExportJob(ctx, job)
}

// FindByID fetches a job by id
func (a *ExportJobRepoAdapter) FindByID(ctx context.Context, id string) (*model.ExportJob, error) {
	return a.postgres.FindExportJobByID(ctx, id)
}

// MarkCompleted transitions a job to completed with its rendered file
func (a *ExportJobRepoAdapter) MarkCompleted(ctx context.Context, id string, file model.ExportFile, recordCount int64, expiresAt time.Time) error {
	return a.postgres.MarkExportJobCompleted(ctx, id, file, recordCount, expiresAt)
}

// MarkFailed transitions a job to failed with an error message
func (a *ExportJobRepoAdapter) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	return a.postgres.MarkExportJobFailed(ctx, id, errorMessage)
}

// DeleteExpired drops file payloads past their retention window
func (a *ExportJobRepoAdapter) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return a.postgres.DeleteExpiredExportJobs(ctx, now)
}

func (a *ExportJobRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}
