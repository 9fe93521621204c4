package httpapi

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/usecase"
)

// AuditHandler serves audit search, summary and record endpoints.
type AuditHandler struct {
	auditService  *usecase.AuditService
	ingestService *usecase.IngestService
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(auditService *usecase.AuditService, ingestService *usecase.IngestService) *AuditHandler {
	return &AuditHandler{auditService: auditService, ingestService: ingestService}
}

// SearchRequest is the search endpoint's body: the filter criteria plus an
// optional inline delivery summary over the same window.
type SearchRequest struct {
	model.SearchCriteria
	IncludeStatusSummary bool `json:"includeStatusSummary,omitempty"`
}

// SearchResponse augments the result page with the optional summary.
type SearchResponse struct {
	*model.SearchResult
	StatusSummary *model.DeliveryStatusSummary `json:"statusSummary,omitempty"`
}

// Search handles POST /api/v1/communication-audit/search.
func (h *AuditHandler) Search(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}

	ctx := c.Request().Context()
	result, err := h.auditService.Search(ctx, req.SearchCriteria)
	if err != nil {
		return writeError(c, err)
	}

	response := SearchResponse{SearchResult: result}
	if req.IncludeStatusSummary {
		from, to := summaryWindow(req.DateFrom, req.DateTo)
		summary, err := h.auditService.DeliverySummary(ctx, req.OrganizationID, from, to)
		if err != nil {
			return writeError(c, err)
		}
		response.StatusSummary = summary
	}

	return ok(c, response)
}

// summaryWindow defaults an open-ended range to the trailing 30 days.
func summaryWindow(from, to *time.Time) (time.Time, time.Time) {
	end := time.Now().UTC()
	if to != nil {
		end = *to
	}
	start := end.Add(-30 * 24 * time.Hour)
	if from != nil {
		start = *from
	}
	return start, end
}

// DeliverySummary handles GET /api/v1/communication-audit/delivery-summary.
func (h *AuditHandler) DeliverySummary(c echo.Context) error {
	organizationID := c.QueryParam("organizationId")

	from, err := parseTimeParam(c.QueryParam("from"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	to, err := parseTimeParam(c.QueryParam("to"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	fromTime, toTime := summaryWindow(from, to)
	summary, err := h.auditService.DeliverySummary(c.Request().Context(), organizationID, fromTime, toTime)
	if err != nil {
		return writeError(c, err)
	}

	return ok(c, summary)
}

// parseTimeParam accepts RFC3339 timestamps or bare dates.
func parseTimeParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t, nil
	}
	return nil, fmt.Errorf("invalid time value %q, expected RFC3339 or YYYY-MM-DD", value)
}

// Record handles POST /api/v1/communication-audit/logs: portal services log
// an outbound communication at send time.
func (h *AuditHandler) Record(c echo.Context) error {
	var req usecase.RecordRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}

	entry, err := h.ingestService.RecordCommunication(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}

	return created(c, entry)
}
