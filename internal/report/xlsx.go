package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const summarySheet = "Resumen"

// WriteXLSX renders sections as a workbook: a "Resumen" sheet listing every
// section with its status, then one sheet per section that has a table.
func WriteXLSX(sections []Section) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	if err := writeRow(f, summarySheet, 1, []any{"KPI", "TÍTULO", "ESTADO", "DETALLE"}); err != nil {
		return nil, err
	}
	_ = f.SetRowStyle(summarySheet, 1, 1, bold)

	for i, s := range sections {
		if err := writeRow(f, summarySheet, i+2, []any{s.Key, s.Title, string(s.Status), s.Message}); err != nil {
			return nil, err
		}
		if s.Summary == nil {
			continue
		}

		sheet := sheetName(s.Key)
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", sheet, err)
		}
		header := make([]any, len(s.Summary.Columns))
		for j, c := range s.Summary.Columns {
			header[j] = c
		}
		if err := writeRow(f, sheet, 1, header); err != nil {
			return nil, err
		}
		_ = f.SetRowStyle(sheet, 1, 1, bold)
		for j, row := range s.Summary.Rows {
			if err := writeRow(f, sheet, j+2, row); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// sheetName keeps within the 31 character sheet name limit.
func sheetName(key string) string {
	if len(key) > 31 {
		return key[:31]
	}
	return key
}
