package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/apperrors"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
)

// RenderCSV serializes audit entries into a CSV document. The writer quotes
// and escapes cell contents, so message bodies with commas, quotes, or
// markup round-trip safely.
func RenderCSV(logs []model.CommunicationLog, includeContent bool) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(Columns(includeContent)); err != nil {
		return nil, fmt.Errorf("%w: writing CSV header: %w", apperrors.ErrRender, err)
	}

	for _, log := range logs {
		if err := writer.Write(Row(log, includeContent)); err != nil {
			return nil, fmt.Errorf("%w: writing CSV row for %s: %w", apperrors.ErrRender, log.ID, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("%w: flushing CSV: %w", apperrors.ErrRender, err)
	}

	return buf.Bytes(), nil
}
