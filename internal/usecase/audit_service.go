package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/apperrors"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/observer"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/storage"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/tenant"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/logger"
)

// AuditService answers search and summary queries over the communication
// log with tenant isolation enforced before any storage access.
type AuditService struct {
	logRepo storage.CommunicationLogRepo
}

// NewAuditService creates a new audit query service.
func NewAuditService(logRepo storage.CommunicationLogRepo) *AuditService {
	return &AuditService{logRepo: logRepo}
}

// scopeToCaller forces the organization filter for non-staff callers. The
// request's own organizationId is ignored for them: whatever a client sends,
// an organization-scoped user only ever sees their own records. Staff may
// filter by any organization or none.
func scopeToCaller(ctx context.Context, organizationID *string) error {
	if tenant.IsStaff(ctx) {
		return nil
	}
	own, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: caller has no organization scope", apperrors.ErrUnauthorized)
	}
	*organizationID = own
	return nil
}

// Search runs a validated, tenant-scoped, paginated query.
func (s *AuditService) Search(ctx context.Context, criteria model.SearchCriteria) (*model.SearchResult, error) {
	criteria.ApplyDefaults()

	if err := scopeToCaller(ctx, &criteria.OrganizationID); err != nil {
		observer.IncSearchRequest("unauthorized")
		return nil, err
	}

	if err := criteria.Validate(); err != nil {
		observer.IncSearchRequest("invalid")
		return nil, err
	}

	logs, total, err := s.logRepo.Search(ctx, criteria)
	if err != nil {
		observer.IncSearchRequest("error")
		return nil, err
	}
	observer.IncSearchRequest("success")

	if !criteria.IncludeContent {
		// Message bodies are withheld from list views both to trim
		// payloads and to limit exposure of message contents.
		for i := range logs {
			logs[i].Content = ""
		}
	}

	return &model.SearchResult{
		Logs:        logs,
		TotalCount:  total,
		Page:        criteria.Page,
		PageSize:    criteria.PageSize,
		HasNextPage: int64(criteria.Page*criteria.PageSize) < total,
	}, nil
}

// DeliverySummary aggregates counts by status and type over a date range.
// Non-staff callers are always scoped to their own organization; staff may
// pass an empty organizationID for a cross-organization view.
func (s *AuditService) DeliverySummary(ctx context.Context, organizationID string, from, to time.Time) (*model.DeliveryStatusSummary, error) {
	if err := scopeToCaller(ctx, &organizationID); err != nil {
		return nil, err
	}

	if from.IsZero() || to.IsZero() {
		return nil, fmt.Errorf("%w: from and to are required", apperrors.ErrValidation)
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: from must not be after to", apperrors.ErrValidation)
	}
	if to.Sub(from) > model.MaxSummaryRangeDays*24*time.Hour {
		return nil, fmt.Errorf("%w: date range must not exceed %d days", apperrors.ErrValidation, model.MaxSummaryRangeDays)
	}

	summary, err := s.logRepo.Summary(ctx, organizationID, from, to)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to compute delivery summary",
			zap.String("organization_id", organizationID), zap.Error(err))
		return nil, err
	}

	return summary, nil
}
