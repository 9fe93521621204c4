package httpapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/usecase"
)

// ExportHandler serves export, export-job and compliance-report endpoints.
type ExportHandler struct {
	exportService *usecase.ExportService
}

// NewExportHandler creates a new export handler.
func NewExportHandler(exportService *usecase.ExportService) *ExportHandler {
	return &ExportHandler{exportService: exportService}
}

// exportBody is the request body of the export endpoint: search criteria,
// an optional record bound, and an optional callback to be notified when an
// async job finishes.
type exportBody struct {
	model.SearchCriteria
	MaxRecords  int    `json:"maxRecords,omitempty"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// Export handles POST /api/v1/communication-export/:format. Small result
// sets come back as file bytes in the response; larger ones get a 202 with
// a job descriptor the caller polls.
func (h *ExportHandler) Export(c echo.Context) error {
	var body exportBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "malformed request body")
	}

	outcome, err := h.exportService.Export(c.Request().Context(), usecase.ExportRequest{
		Criteria:    body.SearchCriteria,
		Format:      model.ExportFormat(c.Param("format")),
		MaxRecords:  body.MaxRecords,
		CallbackURL: body.CallbackURL,
	})
	if err != nil {
		return writeError(c, err)
	}

	if outcome.Inline != nil {
		return sendFile(c, outcome.Inline)
	}
	return accepted(c, "export queued, poll the status endpoint", outcome.Job)
}

// Status handles GET /api/v1/communication-export/status/:jobId.
func (h *ExportHandler) Status(c echo.Context) error {
	job, err := h.exportService.GetExportStatus(c.Request().Context(), c.Param("jobId"))
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, job)
}

// Download handles GET /api/v1/communication-export/download/:jobId.
func (h *ExportHandler) Download(c echo.Context) error {
	file, err := h.exportService.GetExportFile(c.Request().Context(), c.Param("jobId"))
	if err != nil {
		return writeError(c, err)
	}
	return sendFile(c, file)
}

// CompliancePDF handles POST /api/v1/communication-reports/reports/compliance-pdf.
func (h *ExportHandler) CompliancePDF(c echo.Context) error {
	var req usecase.ComplianceReportRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}

	file, err := h.exportService.ComplianceReport(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return sendFile(c, file)
}

func sendFile(c echo.Context, file *model.ExportFile) error {
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, file.FileName))
	return c.Blob(http.StatusOK, file.ContentType, file.Data)
}
