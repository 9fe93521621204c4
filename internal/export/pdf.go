package export

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/go-pdf/fpdf"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/apperrors"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
)

// ComplianceOptions control the optional sections of the compliance report.
type ComplianceOptions struct {
	Title                  string
	IncludeFailureAnalysis bool
	IncludeCharts          bool
}

const defaultComplianceTitle = "Communication Compliance Report"

// RenderPDF serializes audit entries into a landscape PDF table. Content is
// never rendered into plain table PDFs; bodies belong in CSV/Excel exports
// where cells can hold arbitrary text.
func RenderPDF(logs []model.CommunicationLog) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Communication Audit Export", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 10, "Communication Audit Export")
	pdf.Ln(12)

	writeTable(pdf, logs)

	return flushPDF(pdf)
}

// RenderCompliancePDF produces the compliance report variant: a summary
// block, optional failure analysis, optional status chart, and the entry
// table.
func RenderCompliancePDF(logs []model.CommunicationLog, summary *model.DeliveryStatusSummary, opts ComplianceOptions) ([]byte, error) {
	title := opts.Title
	if title == "" {
		title = defaultComplianceTitle
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(title, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, title)
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(10)

	if summary != nil {
		writeSummarySection(pdf, summary)
		if opts.IncludeFailureAnalysis {
			writeFailureAnalysis(pdf, summary)
		}
		if opts.IncludeCharts {
			writeStatusChart(pdf, summary)
		}
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, "Communications")
	pdf.Ln(9)
	writeTable(pdf, logs)

	return flushPDF(pdf)
}

func flushPDF(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: serializing PDF: %w", apperrors.ErrRender, err)
	}
	return buf.Bytes(), nil
}

var pdfColumnWidths = []float64{38, 38, 25, 42, 45, 25, 32, 32} // no Failure Reason; it wraps poorly

func writeTable(pdf *fpdf.Fpdf, logs []model.CommunicationLog) {
	headers := []string{"ID", "Order ID", "Type", "Recipient", "Subject", "Status", "Sent At", "Delivered At"}

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(pdfColumnWidths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 7)
	for _, log := range logs {
		cells := []string{
			log.ID,
			log.OrderID,
			string(log.CommunicationType),
			log.Recipient(),
			truncate(derefString(log.Subject), 40),
			string(log.DeliveryStatus),
			formatTime(&log.SentAt),
			formatTime(log.DeliveredAt),
		}
		for i, c := range cells {
			pdf.CellFormat(pdfColumnWidths[i], 6, truncate(c, 42), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func writeSummarySection(pdf *fpdf.Fpdf, summary *model.DeliveryStatusSummary) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, "Delivery Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s",
		summary.From.UTC().Format("2006-01-02"), summary.To.UTC().Format("2006-01-02")))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Total communications: %d", summary.TotalCommunications))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Delivery success rate: %.1f%%", summary.DeliverySuccessRate))
	pdf.Ln(10)
}

func writeFailureAnalysis(pdf *fpdf.Fpdf, summary *model.DeliveryStatusSummary) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, "Failure Analysis")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 9)
	var failures int64
	for _, status := range sortedStatuses(summary.StatusCounts) {
		if !status.IsFailure() {
			continue
		}
		count := summary.StatusCounts[status]
		failures += count
		pdf.Cell(0, 6, fmt.Sprintf("%s: %d", status, count))
		pdf.Ln(6)
	}
	if failures == 0 {
		pdf.Cell(0, 6, "No delivery failures in the selected period.")
		pdf.Ln(6)
	}
	pdf.Ln(4)
}

// writeStatusChart draws a simple horizontal bar chart of status counts.
func writeStatusChart(pdf *fpdf.Fpdf, summary *model.DeliveryStatusSummary) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, "Status Distribution")
	pdf.Ln(9)

	var max int64
	for _, count := range summary.StatusCounts {
		if count > max {
			max = count
		}
	}
	if max == 0 {
		pdf.SetFont("Helvetica", "", 9)
		pdf.Cell(0, 6, "No data.")
		pdf.Ln(8)
		return
	}

	const maxBarWidth = 120.0
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetFillColor(90, 120, 200)
	for _, status := range sortedStatuses(summary.StatusCounts) {
		count := summary.StatusCounts[status]
		pdf.CellFormat(35, 5, string(status), "", 0, "R", false, 0, "")
		barWidth := maxBarWidth * float64(count) / float64(max)
		x, y := pdf.GetXY()
		pdf.Rect(x+2, y+0.5, barWidth, 4, "F")
		pdf.SetXY(x+2+barWidth+2, y)
		pdf.CellFormat(20, 5, fmt.Sprintf("%d", count), "", 0, "L", false, 0, "")
		pdf.Ln(6)
	}
	pdf.Ln(4)
}

func sortedStatuses(counts map[model.DeliveryStatus]int64) []model.DeliveryStatus {
	statuses := make([]model.DeliveryStatus, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	return statuses
}

// truncate shortens s to at most max runes. Slicing bytes would split
// multi-byte characters and emit invalid UTF-8 into cells.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
