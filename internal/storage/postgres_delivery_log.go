package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/apperrors"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/observer"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/logger"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/utils"
)

// UpsertDeliveryLog records the latest observed status for an external id.
// ON CONFLICT overwrites in place, which makes provider webhook retries
// idempotent: replaying the same event lands on the same row and status.
func (r *PostgresRepo) UpsertDeliveryLog(ctx context.Context, entry model.NotificationDeliveryLog) error {
	entry.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns(model.DeliveryLogUpdatableFields()),
		}).Create(&entry)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	policy := newRetryPolicy(ctx, webhookRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "UpsertDeliveryLog", operation)
	observer.ObserveDbOperationDuration("upsert", "delivery_log", "", time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to upsert delivery log",
			zap.String("external_id", entry.ExternalID), zap.Error(err))
		return err
	}

	return nil
}

// FindDeliveryLogByExternalID fetches the latest status for an external id.
func (r *PostgresRepo) FindDeliveryLogByExternalID(ctx context.Context, externalID string) (*model.NotificationDeliveryLog, error) {
	var entry model.NotificationDeliveryLog

	operation := func() error {
		result := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&entry)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: delivery log for external id %s", apperrors.ErrNotFound, externalID))
			}
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindDeliveryLogByExternalID", operation)
	observer.ObserveDbOperationDuration("find", "delivery_log", "", time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// AppendDeliveryTransition appends one row to the status transition trail.
// The trail is append-only; a stale out-of-order event still lands here even
// when the last-write-wins overwrite in the delivery log discards nothing.
func (r *PostgresRepo) AppendDeliveryTransition(ctx context.Context, event model.DeliveryStatusEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = utils.Now()
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Create(&event)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	policy := newRetryPolicy(ctx, webhookRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "AppendDeliveryTransition", operation)
	observer.ObserveDbOperationDuration("insert", "delivery_status_event", "", time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to append delivery transition",
			zap.String("external_id", event.ExternalID), zap.Error(err))
		return err
	}

	return nil
}
