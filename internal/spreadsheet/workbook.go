// Package spreadsheet holds the live in-memory workbook model and the
// narrow query/mutation surface the validation core drives it through.
package spreadsheet

import (
	"fmt"
	"sync"

	"github.com/th-e-o/budgibot/internal/domain"
)

const (
	// DefaultRowCount and DefaultColumnCount size freshly created sheets
	// when the caller gives no dimensions.
	DefaultRowCount    = 100
	DefaultColumnCount = 26
)

// CellChange describes one cell mutation, delivered to the registered
// change listener after the mutation is live.
type CellChange struct {
	Sheet string
	Row   int
	Col   int
	Cell  domain.Cell
}

// Engine is the mutation/query surface the validation core consumes. The
// in-memory Workbook is the production implementation; tests substitute
// their own.
type Engine interface {
	HasSheet(name string) bool
	SheetNames() []string
	SheetIndex(name string) int
	CreateSheet(name string, rows, cols int, opts ...CreateOption) error
	DeleteSheet(name string) error
	ReplaceSheet(snapshot domain.SheetSnapshot) error
	RestoreSheet(snapshot domain.SheetSnapshot) error
	Snapshot(name string) (domain.SheetSnapshot, error)
	Cell(sheetName string, row, col int) (domain.Cell, error)
	SetCellValue(sheetName string, row, col int, value any) error
	SetCellFormula(sheetName string, row, col int, formula string) error
	ClearCell(sheetName string, row, col int) error
	ActivateCell(sheetName string, row, col int) error
}

type sheet struct {
	name     string
	rowCount int
	colCount int
	cells    map[int]map[int]domain.Cell
}

// Workbook is the ordered collection of sheets the whole session mutates.
// All methods are safe for concurrent use; the change listener is invoked
// outside the lock.
type Workbook struct {
	mu          sync.RWMutex
	sheets      []*sheet
	activeSheet string
	activeRow   int
	activeCol   int
	listener    func(CellChange)
}

// NewWorkbook returns an empty workbook.
func NewWorkbook() *Workbook {
	return &Workbook{}
}

// SetChangeListener registers fn to be called after every cell mutation.
// Pass nil to remove the listener.
func (w *Workbook) SetChangeListener(fn func(CellChange)) {
	w.mu.Lock()
	w.listener = fn
	w.mu.Unlock()
}

// HasSheet reports whether a sheet with the given name exists.
func (w *Workbook) HasSheet(name string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.findSheet(name) != nil
}

// SheetNames returns the sheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, len(w.sheets))
	for i, s := range w.sheets {
		names[i] = s.name
	}
	return names
}

// SheetIndex returns the ordinal position of the named sheet, or -1 when it
// does not exist.
func (w *Workbook) SheetIndex(name string) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for i, s := range w.sheets {
		if s.name == name {
			return i
		}
	}
	return -1
}

// CreateOption customizes CreateSheet.
type CreateOption func(*createOptions)

type createOptions struct {
	index    *int
	cellData map[int]map[int]domain.Cell
}

// WithIndex inserts the new sheet at the given ordinal position instead of
// appending it. Out-of-range values are clamped.
func WithIndex(index int) CreateOption {
	return func(o *createOptions) {
		o.index = &index
	}
}

// WithCellData seeds the new sheet with initial cell contents.
func WithCellData(cells map[int]map[int]domain.Cell) CreateOption {
	return func(o *createOptions) {
		o.cellData = cells
	}
}

// CreateSheet adds a new sheet. It fails when a sheet with the same name
// already exists. Zero dimensions fall back to the defaults.
func (w *Workbook) CreateSheet(name string, rows, cols int, opts ...CreateOption) error {
	if name == "" {
		return fmt.Errorf("sheet name must not be empty")
	}

	var options createOptions
	for _, opt := range opts {
		opt(&options)
	}
	if rows <= 0 {
		rows = DefaultRowCount
	}
	if cols <= 0 {
		cols = DefaultColumnCount
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.findSheet(name) != nil {
		return fmt.Errorf("sheet %q already exists", name)
	}

	s := &sheet{
		name:     name,
		rowCount: rows,
		colCount: cols,
		cells:    make(map[int]map[int]domain.Cell),
	}
	for row, colCells := range options.cellData {
		for col, cell := range colCells {
			s.put(row, col, cell)
		}
	}

	index := len(w.sheets)
	if options.index != nil {
		index = clamp(*options.index, 0, len(w.sheets))
	}
	w.sheets = append(w.sheets, nil)
	copy(w.sheets[index+1:], w.sheets[index:])
	w.sheets[index] = s

	if w.activeSheet == "" {
		w.activeSheet = name
	}
	return nil
}

// DeleteSheet removes the named sheet. It fails when the sheet is absent.
func (w *Workbook) DeleteSheet(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, s := range w.sheets {
		if s.name == name {
			w.sheets = append(w.sheets[:i], w.sheets[i+1:]...)
			if w.activeSheet == name {
				w.activeSheet = ""
				if len(w.sheets) > 0 {
					w.activeSheet = w.sheets[0].name
				}
			}
			return nil
		}
	}
	return fmt.Errorf("sheet %q does not exist", name)
}

// ReplaceSheet swaps in the snapshot's data for the sheet with the same
// name, keeping the existing sheet's ordinal position. When no such sheet
// exists the snapshot is appended as a new sheet.
func (w *Workbook) ReplaceSheet(snapshot domain.SheetSnapshot) error {
	if snapshot.Name == "" {
		return fmt.Errorf("replacement snapshot has no sheet name")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	s := sheetFromSnapshot(snapshot)
	for i, existing := range w.sheets {
		if existing.name == snapshot.Name {
			w.sheets[i] = s
			return nil
		}
	}
	w.sheets = append(w.sheets, s)
	if w.activeSheet == "" {
		w.activeSheet = s.name
	}
	return nil
}

// RestoreSheet puts the snapshot back at its recorded ordinal index,
// removing any sheet currently occupying the name first. This is the
// rollback path for sheet deletion and replacement.
func (w *Workbook) RestoreSheet(snapshot domain.SheetSnapshot) error {
	if snapshot.Name == "" {
		return fmt.Errorf("restore snapshot has no sheet name")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for i, existing := range w.sheets {
		if existing.name == snapshot.Name {
			w.sheets = append(w.sheets[:i], w.sheets[i+1:]...)
			break
		}
	}

	s := sheetFromSnapshot(snapshot)
	index := clamp(snapshot.Index, 0, len(w.sheets))
	w.sheets = append(w.sheets, nil)
	copy(w.sheets[index+1:], w.sheets[index:])
	w.sheets[index] = s

	if w.activeSheet == "" {
		w.activeSheet = s.name
	}
	return nil
}

// Reset replaces the entire workbook content in place with the given
// sheets, in order. References held by collaborators stay valid.
func (w *Workbook) Reset(sheets []domain.SheetSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.sheets = make([]*sheet, 0, len(sheets))
	for _, snap := range sheets {
		w.sheets = append(w.sheets, sheetFromSnapshot(snap))
	}
	w.activeSheet = ""
	w.activeRow, w.activeCol = 0, 0
	if len(w.sheets) > 0 {
		w.activeSheet = w.sheets[0].name
	}
}

// Snapshot returns a deep, independent copy of the named sheet. Later
// workbook mutation never alters a previously taken snapshot.
func (w *Workbook) Snapshot(name string) (domain.SheetSnapshot, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for i, s := range w.sheets {
		if s.name == name {
			return domain.SheetSnapshot{
				Name:        s.name,
				RowCount:    s.rowCount,
				ColumnCount: s.colCount,
				Index:       i,
				CellData:    s.cloneCells(),
			}, nil
		}
	}
	return domain.SheetSnapshot{}, fmt.Errorf("sheet %q does not exist", name)
}

// SnapshotAll returns snapshots of every sheet in workbook order.
func (w *Workbook) SnapshotAll() []domain.SheetSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]domain.SheetSnapshot, len(w.sheets))
	for i, s := range w.sheets {
		out[i] = domain.SheetSnapshot{
			Name:        s.name,
			RowCount:    s.rowCount,
			ColumnCount: s.colCount,
			Index:       i,
			CellData:    s.cloneCells(),
		}
	}
	return out
}

// Cell returns the content of the cell at (row, col).
func (w *Workbook) Cell(sheetName string, row, col int) (domain.Cell, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := w.findSheet(sheetName)
	if s == nil {
		return domain.Cell{}, fmt.Errorf("sheet %q does not exist", sheetName)
	}
	if cols, ok := s.cells[row]; ok {
		return cols[col], nil
	}
	return domain.Cell{}, nil
}

// SetCellValue sets the raw value of a cell, clearing any formula.
func (w *Workbook) SetCellValue(sheetName string, row, col int, value any) error {
	return w.setCell(sheetName, row, col, domain.Cell{Value: value})
}

// SetCellFormula sets the formula of a cell.
func (w *Workbook) SetCellFormula(sheetName string, row, col int, formula string) error {
	return w.setCell(sheetName, row, col, domain.Cell{Formula: formula})
}

// ClearCell removes both value and formula from a cell.
func (w *Workbook) ClearCell(sheetName string, row, col int) error {
	return w.setCell(sheetName, row, col, domain.Cell{})
}

// ActivateCell moves the navigation cursor to a cell, switching the active
// sheet as needed.
func (w *Workbook) ActivateCell(sheetName string, row, col int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.findSheet(sheetName) == nil {
		return fmt.Errorf("sheet %q does not exist", sheetName)
	}
	w.activeSheet = sheetName
	w.activeRow = row
	w.activeCol = col
	return nil
}

// ActiveCell reports the current navigation cursor.
func (w *Workbook) ActiveCell() (sheetName string, row, col int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.activeSheet, w.activeRow, w.activeCol
}

func (w *Workbook) setCell(sheetName string, row, col int, cell domain.Cell) error {
	if row < 0 || col < 0 {
		return fmt.Errorf("negative cell coordinates (%d, %d)", row, col)
	}

	w.mu.Lock()
	s := w.findSheet(sheetName)
	if s == nil {
		w.mu.Unlock()
		return fmt.Errorf("sheet %q does not exist", sheetName)
	}
	s.put(row, col, cell)
	listener := w.listener
	w.mu.Unlock()

	if listener != nil {
		listener(CellChange{Sheet: sheetName, Row: row, Col: col, Cell: cell})
	}
	return nil
}

func (w *Workbook) findSheet(name string) *sheet {
	for _, s := range w.sheets {
		if s.name == name {
			return s
		}
	}
	return nil
}

func (s *sheet) put(row, col int, cell domain.Cell) {
	if cell.IsEmpty() {
		if cols, ok := s.cells[row]; ok {
			delete(cols, col)
			if len(cols) == 0 {
				delete(s.cells, row)
			}
		}
	} else {
		cols, ok := s.cells[row]
		if !ok {
			cols = make(map[int]domain.Cell)
			s.cells[row] = cols
		}
		cols[col] = cell
	}
	if row >= s.rowCount {
		s.rowCount = row + 1
	}
	if col >= s.colCount {
		s.colCount = col + 1
	}
}

func (s *sheet) cloneCells() map[int]map[int]domain.Cell {
	out := make(map[int]map[int]domain.Cell, len(s.cells))
	for row, cols := range s.cells {
		rowCopy := make(map[int]domain.Cell, len(cols))
		for col, cell := range cols {
			rowCopy[col] = cell
		}
		out[row] = rowCopy
	}
	return out
}

func sheetFromSnapshot(snapshot domain.SheetSnapshot) *sheet {
	clone := snapshot.Clone()
	s := &sheet{
		name:     clone.Name,
		rowCount: clone.RowCount,
		colCount: clone.ColumnCount,
		cells:    clone.CellData,
	}
	if s.cells == nil {
		s.cells = make(map[int]map[int]domain.Cell)
	}
	if s.rowCount <= 0 {
		s.rowCount = DefaultRowCount
	}
	if s.colCount <= 0 {
		s.colCount = DefaultColumnCount
	}
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
