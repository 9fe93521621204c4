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

// FindPreferenceByPhone fetches the notification preference for a phone number.
func (r *PostgresRepo) FindPreferenceByPhone(ctx context.Context, phone string) (*model.NotificationPreference, error) {
	return r.findPreference(ctx, "phone = ?", phone)
}

// FindPreferenceByEmail fetches the notification preference for an email address.
func (r *PostgresRepo) FindPreferenceByEmail(ctx context.Context, email string) (*model.NotificationPreference, error) {
	return r.findPreference(ctx, "email = ?", email)
}

func (r *PostgresRepo) findPreference(ctx context.Context, cond string, arg string) (*model.NotificationPreference, error) {
	var pref model.NotificationPreference

	operation := func() error {
		result := r.db.WithContext(ctx).Where(cond, arg).First(&pref)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: notification preference for %s", apperrors.ErrNotFound, arg))
			}
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindPreference", operation)
	observer.ObserveDbOperationDuration("find", "notification_preference", pref.OrganizationID, time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return &pref, nil
}

// SavePreference creates a new preference record. Used when an opt-out
// arrives for a recipient with no existing row: the opt-out must stick even
// if the portal never wrote a preference for them.
func (r *PostgresRepo) SavePreference(ctx context.Context, pref model.NotificationPreference) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Create(&pref)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "SavePreference", operation)
	observer.ObserveDbOperationDuration("save", "notification_preference", pref.OrganizationID, time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to save notification preference",
			zap.String("phone", pref.Phone), zap.String("email", pref.Email), zap.Error(err))
		return err
	}

	return nil
}

// SetPreferenceSMSEnabled flips the SMS consent flag for a phone number.
// Runs off the webhook path (queued), so it gets the normal commit policy.
func (r *PostgresRepo) SetPreferenceSMSEnabled(ctx context.Context, phone string, enabled bool) error {
	return r.setPreferenceFlag(ctx, "phone = ?", phone, "sms_enabled", enabled)
}

// SetPreferenceEmailEnabled flips the email consent flag for an address.
func (r *PostgresRepo) SetPreferenceEmailEnabled(ctx context.Context, email string, enabled bool) error {
	return r.setPreferenceFlag(ctx, "email = ?", email, "email_enabled", enabled)
}

func (r *PostgresRepo) setPreferenceFlag(ctx context.Context, cond string, arg string, column string, enabled bool) error {
	var rowsAffected int64

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.NotificationPreference{}).
			Where(cond, arg).
			Updates(map[string]interface{}{column: enabled, "updated_at": utils.Now()})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		rowsAffected = result.RowsAffected
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "SetPreferenceFlag", operation)
	observer.ObserveDbOperationDuration("update", "notification_preference", "", time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to update notification preference",
			zap.String("column", column), zap.Bool("enabled", enabled), zap.Error(err))
		return err
	}

	if rowsAffected == 0 {
		// No preference record for this recipient; nothing to disable.
		return fmt.Errorf("%w: notification preference for %s", apperrors.ErrNotFound, arg)
	}

	return nil
}
