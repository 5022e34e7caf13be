package spreadsheet

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/th-e-o/budgibot/internal/domain"
)

// LoadXLSX parses an xlsx file into a fresh workbook. Cell values and
// formulas are carried over; styling is not part of the model.
func LoadXLSX(data []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	workbook := NewWorkbook()
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read rows from sheet %q: %w", name, err)
		}

		cells := make(map[int]map[int]domain.Cell)
		rowCount := len(rows)
		colCount := 0
		for rowIdx, row := range rows {
			if len(row) > colCount {
				colCount = len(row)
			}
			for colIdx, value := range row {
				cell := domain.Cell{}
				axis, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
				if err != nil {
					return nil, fmt.Errorf("failed to build cell reference: %w", err)
				}
				formula, err := f.GetCellFormula(name, axis)
				if err == nil && formula != "" {
					if !strings.HasPrefix(formula, "=") {
						formula = "=" + formula
					}
					cell.Formula = formula
				} else if value != "" {
					cell.Value = value
				}
				if cell.IsEmpty() {
					continue
				}
				if cells[rowIdx] == nil {
					cells[rowIdx] = make(map[int]domain.Cell)
				}
				cells[rowIdx][colIdx] = cell
			}
		}

		if err := workbook.CreateSheet(name, rowCount, colCount, WithCellData(cells)); err != nil {
			return nil, fmt.Errorf("failed to add sheet %q: %w", name, err)
		}
	}

	if len(workbook.SheetNames()) == 0 {
		return nil, fmt.Errorf("xlsx file has no sheets")
	}
	return workbook, nil
}

// SaveXLSX serializes the workbook to xlsx bytes.
func SaveXLSX(w *Workbook) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	snapshots := w.SnapshotAll()
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("workbook has no sheets to save")
	}

	for i, snap := range snapshots {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), snap.Name); err != nil {
				return nil, fmt.Errorf("failed to rename default sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(snap.Name); err != nil {
				return nil, fmt.Errorf("failed to create sheet %q: %w", snap.Name, err)
			}
		}

		for row, cols := range snap.CellData {
			for col, cell := range cols {
				axis, err := excelize.CoordinatesToCellName(col+1, row+1)
				if err != nil {
					return nil, fmt.Errorf("failed to build cell reference: %w", err)
				}
				if cell.Formula != "" {
					formula := strings.TrimPrefix(cell.Formula, "=")
					if err := f.SetCellFormula(snap.Name, axis, formula); err != nil {
						return nil, fmt.Errorf("failed to set formula at %s!%s: %w", snap.Name, axis, err)
					}
				} else if err := f.SetCellValue(snap.Name, axis, cell.Value); err != nil {
					return nil, fmt.Errorf("failed to set value at %s!%s: %w", snap.Name, axis, err)
				}
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
