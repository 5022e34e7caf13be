package domain

// Cell holds the content of a single spreadsheet cell. A cell may carry a
// formula, a raw value, or neither (empty cell).
type Cell struct {
	Value   any    `json:"v,omitempty"`
	Formula string `json:"f,omitempty"`
}

// IsEmpty reports whether the cell has neither a value nor a formula.
func (c Cell) IsEmpty() bool {
	return c.Value == nil && c.Formula == ""
}

// SheetSnapshot is a deep, independent copy of a sheet's full data and
// metadata at a point in time. Index records the sheet's ordinal position
// among the workbook's sheets so a restore can put it back where it was.
type SheetSnapshot struct {
	Name        string                `json:"name"`
	RowCount    int                   `json:"rowCount"`
	ColumnCount int                   `json:"columnCount"`
	Index       int                   `json:"index"`
	CellData    map[int]map[int]Cell  `json:"cellData,omitempty"`
}

// Clone returns an independent copy of the snapshot.
func (s SheetSnapshot) Clone() SheetSnapshot {
	out := s
	out.CellData = cloneCellData(s.CellData)
	return out
}

// CellAt returns the cell stored at (row, col), or an empty cell.
func (s SheetSnapshot) CellAt(row, col int) Cell {
	if cols, ok := s.CellData[row]; ok {
		return cols[col]
	}
	return Cell{}
}

func cloneCellData(cells map[int]map[int]Cell) map[int]map[int]Cell {
	if cells == nil {
		return nil
	}
	out := make(map[int]map[int]Cell, len(cells))
	for row, cols := range cells {
		rowCopy := make(map[int]Cell, len(cols))
		for col, cell := range cols {
			rowCopy[col] = cell
		}
		out[row] = rowCopy
	}
	return out
}
