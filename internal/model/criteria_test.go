package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/apperrors"
)

func validCriteria() SearchCriteria {
	c := SearchCriteria{}
	c.ApplyDefaults()
	return c
}

func TestSearchCriteria_ApplyDefaults(t *testing.T) {
	c := SearchCriteria{}
	c.ApplyDefaults()

	assert.Equal(t, DefaultPage, c.Page)
	assert.Equal(t, DefaultPageSize, c.PageSize)
	assert.Equal(t, "sentAt", c.SortBy)
	assert.Equal(t, "desc", c.SortDirection)
	assert.NoError(t, c.Validate())
}

func TestSearchCriteria_Validate_Pagination(t *testing.T) {
	c := validCriteria()
	c.Page = 0
	assert.ErrorIs(t, c.Validate(), apperrors.ErrValidation)

	c = validCriteria()
	c.Page = -5
	assert.ErrorIs(t, c.Validate(), apperrors.ErrValidation)

	c = validCriteria()
	c.PageSize = 101
	assert.ErrorIs(t, c.Validate(), apperrors.ErrValidation)

	c = validCriteria()
	c.PageSize = 2147483647
	assert.ErrorIs(t, c.Validate(), apperrors.ErrValidation)

	c = validCriteria()
	c.PageSize = 100
	assert.NoError(t, c.Validate())
}

func TestSearchCriteria_Validate_DateRange(t *testing.T) {
	now := time.Now().UTC()
	yesterday := now.Add(-24 * time.Hour)

	c := validCriteria()
	c.DateFrom = &now
	c.DateTo = &yesterday
	assert.ErrorIs(t, c.Validate(), apperrors.ErrValidation)

	c = validCriteria()
	c.DateFrom = &yesterday
	c.DateTo = &now
	assert.NoError(t, c.Validate())
}

func TestSearchCriteria_Validate_SortFields(t *testing.T) {
	c := validCriteria()
	c.SortBy = "content" // not sortable, would expose injection surface
	assert.ErrorIs(t, c.Validate(), apperrors.ErrValidation)

	for field := range SortableFields {
		c = validCriteria()
		c.SortBy = field
		assert.NoError(t, c.Validate())
	}

	c = validCriteria()
	c.SortDirection = "sideways"
	assert.ErrorIs(t, c.Validate(), apperrors.ErrValidation)
}

func TestSearchCriteria_Validate_TypeAndStatusSets(t *testing.T) {
	c := validCriteria()
	c.CommunicationTypes = []CommunicationType{TypeEmail, TypeSMS}
	c.DeliveryStatuses = []DeliveryStatus{StatusDelivered, StatusBounced}
	assert.NoError(t, c.Validate())

	c.CommunicationTypes = append(c.CommunicationTypes, CommunicationType("fax"))
	assert.ErrorIs(t, c.Validate(), apperrors.ErrValidation)

	c = validCriteria()
	c.DeliveryStatuses = []DeliveryStatus{"teleported"}
	assert.ErrorIs(t, c.Validate(), apperrors.ErrValidation)
}

func TestSearchCriteria_ClampPageSize(t *testing.T) {
	c := SearchCriteria{Page: 0, PageSize: 2147483647}
	c.ClampPageSize()
	assert.Equal(t, MaxPageSize, c.PageSize)
	assert.Equal(t, DefaultPage, c.Page)

	c = SearchCriteria{Page: 3, PageSize: -1}
	c.ClampPageSize()
	assert.Equal(t, DefaultPageSize, c.PageSize)
	assert.Equal(t, 3, c.Page)
}

func TestSearchCriteria_MatchesNothing(t *testing.T) {
	c := validCriteria()
	assert.False(t, c.MatchesNothing(), "empty filters match everything")

	c.OrganizationID = uuid.NewString()
	assert.False(t, c.MatchesNothing())

	c.OrderID = "not-a-guid"
	assert.True(t, c.MatchesNothing(), "malformed GUID filter should match nothing instead of erroring")

	c = validCriteria()
	c.SenderID = "12345"
	assert.True(t, c.MatchesNothing())
}
