package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/apperrors"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/observer"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/logger"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/utils"
)

// CreateExportJob persists a new job in processing state.
func (r *PostgresRepo) CreateExportJob(ctx context.Context, job model.ExportJob) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Create(&job)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "CreateExportJob", operation)
	observer.ObserveDbOperationDuration("insert", "export_job", job.OrganizationID, time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to create export job",
			zap.String("job_id", job.ID), zap.Error(err))
		return err
	}

	return nil
}

// FindExportJobByID fetches a job, including the rendered file when present.
func (r *PostgresRepo) FindExportJobByID(ctx context.Context, id string) (*model.ExportJob, error) {
	var job model.ExportJob

	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ?", id).First(&job)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: export job %s", apperrors.ErrNotFound, id))
			}
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindExportJobByID", operation)
	observer.ObserveDbOperationDuration("find", "export_job", job.OrganizationID, time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkExportJobCompleted transitions a processing job to completed and
// attaches the rendered file. The status guard keeps the transition
// single-shot even if two workers raced on the same job.
func (r *PostgresRepo) MarkExportJobCompleted(ctx context.Context, id string, file model.ExportFile, recordCount int64, expiresAt time.Time) error {
	now := utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.ExportJob{}).
			Where("id = ? AND status = ?", id, model.ExportStatusProcessing).
			Updates(map[string]interface{}{
				"status":               model.ExportStatusCompleted,
				"file_data":            file.Data,
				"file_name":            file.FileName,
				"content_type":         file.ContentType,
				"record_count":         recordCount,
				"estimated_size_bytes": int64(len(file.Data)),
				"download_url":         fmt.Sprintf("/api/v1/communication-export/download/%s", id),
				"completed_at":         now,
				"expires_at":           expiresAt,
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: export job %s not in processing state", apperrors.ErrNotFound, id))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "MarkExportJobCompleted", operation)
	observer.ObserveDbOperationDuration("update", "export_job", "", time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to mark export job completed",
			zap.String("job_id", id), zap.Error(err))
		return err
	}

	return nil
}

// MarkExportJobFailed transitions a processing job to failed with a message.
func (r *PostgresRepo) MarkExportJobFailed(ctx context.Context, id string, errorMessage string) error {
	now := utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.ExportJob{}).
			Where("id = ? AND status = ?", id, model.ExportStatusProcessing).
			Updates(map[string]interface{}{
				"status":        model.ExportStatusFailed,
				"error_message": errorMessage,
				"completed_at":  now,
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: export job %s not in processing state", apperrors.ErrNotFound, id))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "MarkExportJobFailed", operation)
	observer.ObserveDbOperationDuration("update", "export_job", "", time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to mark export job failed",
			zap.String("job_id", id), zap.Error(err))
		return err
	}

	return nil
}

// DeleteExpiredExportJobs drops the file payload from jobs past retention.
// The job row itself stays for bookkeeping; only the bytes go away.
func (r *PostgresRepo) DeleteExpiredExportJobs(ctx context.Context, now time.Time) (int64, error) {
	var rowsAffected int64

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.ExportJob{}).
			Where("expires_at IS NOT NULL AND expires_at < ? AND file_data IS NOT NULL", now).
			Updates(map[string]interface{}{"file_data": nil, "download_url": ""})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		rowsAffected = result.RowsAffected
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "DeleteExpiredExportJobs", operation)
	observer.ObserveDbOperationDuration("delete", "export_job", "", time.Since(startTime), err)

	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
