package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/apperrors"
)

// Pagination bounds for the audit search API.
const (
	DefaultPage     = 1
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// SearchCriteria is the filter set accepted by the audit query engine. All
// fields are optional; zero values mean "no filter".
type SearchCriteria struct {
	OrganizationID     string              `json:"organizationId,omitempty"`
	OrderID            string              `json:"orderId,omitempty"`
	CommunicationTypes []CommunicationType `json:"communicationTypes,omitempty"`
	DeliveryStatuses   []DeliveryStatus    `json:"deliveryStatuses,omitempty"`
	SenderID           string              `json:"senderId,omitempty"`
	Recipient          string              `json:"recipient,omitempty"`
	DateFrom           *time.Time          `json:"dateFrom,omitempty"`
	DateTo             *time.Time          `json:"dateTo,omitempty"`
	SearchTerm         string              `json:"searchTerm,omitempty"`
	IncludeContent     bool                `json:"includeContent,omitempty"`
	IncludeHidden      bool                `json:"includeHidden,omitempty"`
	Page               int                 `json:"page,omitempty"`
	PageSize           int                 `json:"pageSize,omitempty"`
	SortBy             string              `json:"sortBy,omitempty"`
	SortDirection      string              `json:"sortDirection,omitempty"`
}

// ApplyDefaults fills unset pagination and sorting fields. It does not
// validate; callers decide between strict rejection (the search API) and
// clamping (the export path).
func (c *SearchCriteria) ApplyDefaults() {
	if c.Page == 0 {
		c.Page = DefaultPage
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.SortBy == "" {
		c.SortBy = "sentAt"
	}
	if c.SortDirection == "" {
		c.SortDirection = "desc"
	}
}

// Validate enforces the strict boundary rules: pagination bounds, known
// sort fields, known type/status values, and dateFrom <= dateTo. The date
// ordering rule is applied uniformly across search, summary, and export
// rather than silently returning an empty result set.
func (c *SearchCriteria) Validate() error {
	if c.Page < 1 {
		return fmt.Errorf("%w: page must be >= 1, got %d", apperrors.ErrValidation, c.Page)
	}
	if c.PageSize < 1 || c.PageSize > MaxPageSize {
		return fmt.Errorf("%w: pageSize must be between 1 and %d, got %d", apperrors.ErrValidation, MaxPageSize, c.PageSize)
	}
	if _, ok := SortableFields[c.SortBy]; !ok {
		return fmt.Errorf("%w: sortBy must be one of sentAt, deliveredAt, readAt, communicationType, deliveryStatus", apperrors.ErrValidation)
	}
	if c.SortDirection != "asc" && c.SortDirection != "desc" {
		return fmt.Errorf("%w: sortDirection must be asc or desc", apperrors.ErrValidation)
	}
	for _, t := range c.CommunicationTypes {
		switch t {
		case TypeEmail, TypeSMS, TypeMessage:
		default:
			return fmt.Errorf("%w: unknown communication type %q", apperrors.ErrValidation, t)
		}
	}
	for _, s := range c.DeliveryStatuses {
		if !IsValidStatus(s) {
			return fmt.Errorf("%w: unknown delivery status %q", apperrors.ErrValidation, s)
		}
	}
	if c.DateFrom != nil && c.DateTo != nil && c.DateFrom.After(*c.DateTo) {
		return fmt.Errorf("%w: dateFrom must not be after dateTo", apperrors.ErrValidation)
	}
	return nil
}

// ClampPageSize caps the page size instead of rejecting it. Used by the
// export path, where the effective record limit comes from maxRecords.
func (c *SearchCriteria) ClampPageSize() {
	if c.PageSize > MaxPageSize {
		c.PageSize = MaxPageSize
	}
	if c.PageSize < 1 {
		c.PageSize = DefaultPageSize
	}
	if c.Page < 1 {
		c.Page = DefaultPage
	}
}

// MatchesNothing reports whether any GUID-shaped filter field is populated
// but not a parseable UUID. Malformed client input on these fields yields an
// empty-but-valid result instead of an error, so the query layer short-
// circuits to zero rows.
func (c *SearchCriteria) MatchesNothing() bool {
	for _, id := range []string{c.OrganizationID, c.OrderID, c.SenderID} {
		if id == "" {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			return true
		}
	}
	return false
}

// SearchResult is one page of audit search output.
type SearchResult struct {
	Logs        []CommunicationLog `json:"logs"`
	TotalCount  int64              `json:"totalCount"`
	Page        int                `json:"page"`
	PageSize    int                `json:"pageSize"`
	HasNextPage bool               `json:"hasNextPage"`
}
