package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/apperrors"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
)

const excelSheetName = "Communications"

// RenderExcel serializes audit entries into an xlsx workbook with a single
// sheet and a bold, frozen header row.
func RenderExcel(logs []model.CommunicationLog, includeContent bool) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(excelSheetName)
	if err != nil {
		return nil, fmt.Errorf("%w: creating sheet: %w", apperrors.ErrRender, err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("%w: removing default sheet: %w", apperrors.ErrRender, err)
	}

	columns := Columns(includeContent)
	headerCells := make([]interface{}, len(columns))
	for i, col := range columns {
		headerCells[i] = col
	}
	if err := f.SetSheetRow(excelSheetName, "A1", &headerCells); err != nil {
		return nil, fmt.Errorf("%w: writing header row: %w", apperrors.ErrRender, err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		endCell, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = f.SetCellStyle(excelSheetName, "A1", endCell, headerStyle)
	}
	if err := f.SetPanes(excelSheetName, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("%w: freezing header: %w", apperrors.ErrRender, err)
	}

	for i, log := range logs {
		row := Row(log, includeContent)
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(excelSheetName, cellRef, &cells); err != nil {
			return nil, fmt.Errorf("%w: writing row for %s: %w", apperrors.ErrRender, log.ID, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("%w: serializing workbook: %w", apperrors.ErrRender, err)
	}

	return buf.Bytes(), nil
}
