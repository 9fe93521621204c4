package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/apperrors"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/observer"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/logger"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/utils"
)

// SaveCommunicationLog stores a new audit entry. Entries are append-only:
// nothing here updates on conflict, a duplicate id or external id surfaces
// as ErrDuplicate.
func (r *PostgresRepo) SaveCommunicationLog(ctx context.Context, log model.CommunicationLog) error {
	if log.SentAt.IsZero() {
		log.SentAt = utils.Now()
	}
	log.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Create(&log)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveCommunicationLog Commit", operation)
	observer.ObserveDbOperationDuration("insert", "communication_log", log.OrganizationID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save communication log after retries",
			zap.String("log_id", log.ID), zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// FindCommunicationLogByID fetches one audit entry by primary key.
func (r *PostgresRepo) FindCommunicationLogByID(ctx context.Context, id string) (*model.CommunicationLog, error) {
	var log model.CommunicationLog

	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ?", id).First(&log)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: communication log %s", apperrors.ErrNotFound, id))
			}
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindCommunicationLogByID", operation)
	observer.ObserveDbOperationDuration("find", "communication_log", log.OrganizationID, time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return &log, nil
}

// FindCommunicationLogByExternalID fetches one audit entry by the provider's
// message id, the only correlation key webhooks carry.
func (r *PostgresRepo) FindCommunicationLogByExternalID(ctx context.Context, externalID string) (*model.CommunicationLog, error) {
	var log model.CommunicationLog

	operation := func() error {
		result := r.db.WithContext(ctx).Where("external_message_id = ?", externalID).First(&log)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: external id %s", apperrors.ErrNotFound, externalID))
			}
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindCommunicationLogByExternalID", operation)
	observer.ObserveDbOperationDuration("find", "communication_log", log.OrganizationID, time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return &log, nil
}

// UpdateCommunicationDeliveryStatus locates the record by external id and
// applies the new status. Not-found is returned as apperrors.ErrNotFound so
// the ingest layer can absorb it: providers retry liberally and their
// callbacks can outrun our own send-confirmation write. Last write wins;
// out-of-order provider events are tolerated, not reordered.
func (r *PostgresRepo) UpdateCommunicationDeliveryStatus(ctx context.Context, externalID string, status model.DeliveryStatus, failureReason string, rawPayload []byte) (*model.CommunicationLog, error) {
	var updated model.CommunicationLog

	operation := func() error {
		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if rec := recover(); rec != nil {
				tx.Rollback()
				panic(rec)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					logger.FromContext(ctx).Error("Failed to rollback transaction after error",
						zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		var existing model.CommunicationLog
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("external_message_id = ?", externalID).
			First(&existing)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				txErr = fmt.Errorf("%w: no communication log for external id %s", apperrors.ErrNotFound, externalID)
				return backoff.Permanent(txErr)
			}
			txErr = fmt.Errorf("%w: failed to lock communication log row: %w", apperrors.ErrDatabase, result.Error)
			return txErr
		}

		now := utils.Now()
		existing.DeliveryStatus = status
		existing.UpdatedAt = now

		if status.IsSuccess() && existing.DeliveredAt == nil {
			existing.DeliveredAt = &now
		}
		if (status == model.StatusOpened || status == model.StatusClicked) && existing.ReadAt == nil {
			existing.ReadAt = &now
		}
		if status.IsFailure() && failureReason != "" {
			existing.FailureReason = &failureReason
		}
		if len(rawPayload) > 0 {
			existing.ProviderMetadata = datatypes.JSON(rawPayload)
		}

		updateResult := tx.Model(&model.CommunicationLog{}).
			Where("id = ?", existing.ID).
			Select(model.StatusUpdatableFields()).
			Updates(&existing)
		if updateResult.Error != nil {
			txErr = checkConstraintViolation(updateResult.Error)
			return txErr
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = fmt.Errorf("%w: failed to commit status update: %w", apperrors.ErrDatabase, commitErr)
			return txErr
		}

		updated = existing
		return nil
	}

	// Webhook handlers must answer inside the provider's deadline.
	policy := newRetryPolicy(ctx, webhookRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "UpdateCommunicationDeliveryStatus", operation)
	observer.ObserveDbOperationDuration("update", "communication_log", updated.OrganizationID, time.Since(startTime), err)

	if err != nil {
		if !apperrors.IsNotFoundError(err) {
			logger.FromContext(ctx).Error("Failed to update delivery status",
				zap.String("external_id", externalID),
				zap.String("status", string(status)),
				zap.Error(err))
		}
		return nil, err
	}

	return &updated, nil
}

// escapeLikeTerm neutralizes LIKE wildcards in user-supplied search terms.
// The term itself is always bound as a parameter, never interpolated.
func escapeLikeTerm(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	term = strings.ReplaceAll(term, `%`, `\%`)
	term = strings.ReplaceAll(term, `_`, `\_`)
	return term
}

// applySearchFilters translates criteria into WHERE clauses. Shared by
// Search, Count and the export path so the three can never disagree.
func applySearchFilters(query *gorm.DB, criteria model.SearchCriteria) *gorm.DB {
	if criteria.OrganizationID != "" {
		query = query.Where("organization_id = ?", criteria.OrganizationID)
	}
	if criteria.OrderID != "" {
		query = query.Where("order_id = ?", criteria.OrderID)
	}
	if len(criteria.CommunicationTypes) > 0 {
		query = query.Where("communication_type IN ?", criteria.CommunicationTypes)
	}
	if len(criteria.DeliveryStatuses) > 0 {
		query = query.Where("delivery_status IN ?", criteria.DeliveryStatuses)
	}
	if criteria.SenderID != "" {
		query = query.Where("sender_id = ?", criteria.SenderID)
	}
	if criteria.Recipient != "" {
		query = query.Where("recipient_email = ? OR recipient_phone = ?", criteria.Recipient, criteria.Recipient)
	}
	if criteria.DateFrom != nil {
		query = query.Where("sent_at >= ?", *criteria.DateFrom)
	}
	if criteria.DateTo != nil {
		query = query.Where("sent_at <= ?", *criteria.DateTo)
	}
	if criteria.SearchTerm != "" {
		pattern := "%" + escapeLikeTerm(criteria.SearchTerm) + "%"
		query = query.Where("subject ILIKE ? OR content ILIKE ?", pattern, pattern)
	}
	if !criteria.IncludeHidden {
		query = query.Where("is_hidden = ?", false)
	}
	return query
}

// SearchCommunicationLogs runs a filtered, paginated query. Results are
// ordered by the requested sort field with id ascending as the tie-break,
// so repeated queries over unchanged data paginate deterministically.
func (r *PostgresRepo) SearchCommunicationLogs(ctx context.Context, criteria model.SearchCriteria) ([]model.CommunicationLog, int64, error) {
	if criteria.MatchesNothing() {
		// Malformed GUID filters match nothing by contract.
		return []model.CommunicationLog{}, 0, nil
	}

	sortColumn, ok := model.SortableFields[criteria.SortBy]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unsortable field %q", apperrors.ErrValidation, criteria.SortBy)
	}
	direction := "DESC"
	if criteria.SortDirection == "asc" {
		direction = "ASC"
	}

	var (
		logs  []model.CommunicationLog
		total int64
	)

	operation := func() error {
		countQuery := applySearchFilters(r.db.WithContext(ctx).Model(&model.CommunicationLog{}), criteria)
		if err := countQuery.Count(&total).Error; err != nil {
			return checkConstraintViolation(err)
		}

		offset := (criteria.Page - 1) * criteria.PageSize
		fetchQuery := applySearchFilters(r.db.WithContext(ctx).Model(&model.CommunicationLog{}), criteria).
			Order(fmt.Sprintf("%s %s, id ASC", sortColumn, direction)).
			Offset(offset).
			Limit(criteria.PageSize)

		if err := fetchQuery.Find(&logs).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "SearchCommunicationLogs", operation)
	observer.ObserveDbOperationDuration("search", "communication_log", criteria.OrganizationID, time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to search communication logs", zap.Error(err))
		return nil, 0, err
	}

	if logs == nil {
		logs = []model.CommunicationLog{}
	}
	return logs, total, nil
}

// CountCommunicationLogs returns the number of rows matching the criteria,
// ignoring pagination. The export engine uses this to pick sync vs async.
func (r *PostgresRepo) CountCommunicationLogs(ctx context.Context, criteria model.SearchCriteria) (int64, error) {
	if criteria.MatchesNothing() {
		return 0, nil
	}

	var total int64
	operation := func() error {
		query := applySearchFilters(r.db.WithContext(ctx).Model(&model.CommunicationLog{}), criteria)
		if err := query.Count(&total).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "CountCommunicationLogs", operation)
	observer.ObserveDbOperationDuration("count", "communication_log", criteria.OrganizationID, time.Since(startTime), err)

	if err != nil {
		return 0, err
	}
	return total, nil
}

type summaryRow struct {
	DeliveryStatus    model.DeliveryStatus    `gorm:"column:delivery_status"`
	CommunicationType model.CommunicationType `gorm:"column:communication_type"`
	Total             int64                   `gorm:"column:total"`
}

// CommunicationSummary aggregates counts by status and type over a date
// range, optionally scoped to one organization. One grouped query feeds
// both maps so their totals cannot diverge.
func (r *PostgresRepo) CommunicationSummary(ctx context.Context, organizationID string, from, to time.Time) (*model.DeliveryStatusSummary, error) {
	var rows []summaryRow

	operation := func() error {
		query := r.db.WithContext(ctx).Model(&model.CommunicationLog{}).
			Select("delivery_status, communication_type, COUNT(*) AS total").
			Where("sent_at >= ? AND sent_at <= ?", from, to).
			Where("is_hidden = ?", false)
		if organizationID != "" {
			query = query.Where("organization_id = ?", organizationID)
		}
		if err := query.Group("delivery_status, communication_type").Scan(&rows).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "CommunicationSummary", operation)
	observer.ObserveDbOperationDuration("summary", "communication_log", organizationID, time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to aggregate communication summary", zap.Error(err))
		return nil, err
	}

	summary := &model.DeliveryStatusSummary{
		OrganizationID: organizationID,
		From:           from,
		To:             to,
		StatusCounts:   make(map[model.DeliveryStatus]int64),
		TypeCounts:     make(map[model.CommunicationType]int64),
	}
	for _, row := range rows {
		summary.StatusCounts[row.DeliveryStatus] += row.Total
		summary.TypeCounts[row.CommunicationType] += row.Total
		summary.TotalCommunications += row.Total
	}
	summary.ComputeSuccessRate()

	return summary, nil
}
