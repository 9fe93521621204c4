package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
)

func sampleLogs() []model.CommunicationLog {
	subject := "Your proof is ready"
	reason := "Error 550: mailbox unavailable"
	sentAt := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	deliveredAt := sentAt.Add(2 * time.Minute)

	return []model.CommunicationLog{
		{
			ID:                "log-0001",
			OrderID:           "order-1001",
			CommunicationType: model.TypeEmail,
			RecipientEmail:    "client@example.com",
			Subject:           &subject,
			Content:           "Hi, your embroidery proof is attached.",
			DeliveryStatus:    model.StatusDelivered,
			SentAt:            sentAt,
			DeliveredAt:       &deliveredAt,
		},
		{
			ID:                "log-0002",
			OrderID:           "order-1002",
			CommunicationType: model.TypeSMS,
			RecipientPhone:    "+15551230001",
			Content:           "Your order shipped, \"track\" it online",
			DeliveryStatus:    model.StatusFailed,
			SentAt:            sentAt,
			FailureReason:     &reason,
		},
	}
}

func generatedLogs(n int) []model.CommunicationLog {
	gofakeit.Seed(42)
	rangeStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	logs := make([]model.CommunicationLog, n)
	for i := range logs {
		logs[i] = model.CommunicationLog{
			ID:                gofakeit.UUID(),
			OrderID:           gofakeit.UUID(),
			CommunicationType: model.TypeEmail,
			RecipientEmail:    gofakeit.Email(),
			Content:           gofakeit.Sentence(8),
			DeliveryStatus:    model.StatusDelivered,
			SentAt:            gofakeit.DateRange(rangeStart, rangeEnd).UTC(),
		}
	}
	return logs
}

func TestRenderCSV_HeaderAndRows(t *testing.T) {
	data, err := RenderCSV(sampleLogs(), false)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{
		"ID", "Order ID", "Communication Type", "Recipient", "Subject",
		"Delivery Status", "Sent At", "Delivered At", "Failure Reason",
	}, records[0])

	assert.Equal(t, "log-0001", records[1][0])
	assert.Equal(t, "order-1001", records[1][1])
	assert.Equal(t, "email", records[1][2])
	assert.Equal(t, "client@example.com", records[1][3])
	assert.Equal(t, "delivered", records[1][5])

	assert.Equal(t, "+15551230001", records[2][3])
	assert.Contains(t, records[2][8], "550")
}

func TestRenderCSV_IncludeContent(t *testing.T) {
	data, err := RenderCSV(sampleLogs(), true)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "Content", records[0][len(records[0])-1])
	// Quotes inside the body survive the round trip
	assert.Contains(t, records[2][len(records[2])-1], `"track"`)

	withoutContent, err := RenderCSV(sampleLogs(), false)
	require.NoError(t, err)
	assert.NotContains(t, string(withoutContent), "embroidery proof")
}

func TestRenderCSV_Empty(t *testing.T) {
	data, err := RenderCSV(nil, false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "ID,Order ID,Communication Type"))
}

func TestRenderCSV_LargeBatch(t *testing.T) {
	data, err := RenderCSV(generatedLogs(250), false)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 251)
}

func TestRenderExcel_RoundTrip(t *testing.T) {
	data, err := RenderExcel(sampleLogs(), true)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(excelSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "log-0001", rows[1][0])
	assert.Equal(t, "sms", rows[2][2])
}

func TestRenderPDF_ProducesDocument(t *testing.T) {
	data, err := RenderPDF(sampleLogs())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestRenderCompliancePDF_AllSections(t *testing.T) {
	summary := &model.DeliveryStatusSummary{
		From:                time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:                  time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		TotalCommunications: 2,
		StatusCounts: map[model.DeliveryStatus]int64{
			model.StatusDelivered: 1,
			model.StatusFailed:    1,
		},
		TypeCounts: map[model.CommunicationType]int64{
			model.TypeEmail: 1,
			model.TypeSMS:   1,
		},
	}
	summary.ComputeSuccessRate()

	data, err := RenderCompliancePDF(sampleLogs(), summary, ComplianceOptions{
		Title:                  "March Compliance Review",
		IncludeFailureAnalysis: true,
		IncludeCharts:          true,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestRenderCompliancePDF_Defaults(t *testing.T) {
	data, err := RenderCompliancePDF(nil, nil, ComplianceOptions{})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestTruncate_RuneBoundaries(t *testing.T) {
	long := strings.Repeat("ü", 40)
	out := truncate(long, 10)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, 10, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "…"))

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ascii", truncate("ascii", 5))
}
