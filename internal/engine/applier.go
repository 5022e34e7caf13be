// Package engine applies proposed operations to the live workbook and
// inverts them on demand using captured history.
package engine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/th-e-o/budgibot/internal/domain"
	"github.com/th-e-o/budgibot/internal/history"
	"github.com/th-e-o/budgibot/internal/spreadsheet"
)

// Applier executes operations against the workbook. Application is
// best-effort per item: a failing operation is logged and skipped, it never
// aborts the rest of the batch.
type Applier struct {
	grid    spreadsheet.Engine
	history *history.Store
	log     zerolog.Logger

	mu                sync.Mutex
	programmaticDepth int
}

// NewApplier wires an applier to the workbook and history store.
func NewApplier(grid spreadsheet.Engine, hist *history.Store, logger zerolog.Logger) *Applier {
	return &Applier{
		grid:    grid,
		history: hist,
		log:     logger.With().Str("component", "applier").Logger(),
	}
}

// InProgress reports whether a programmatic apply or rollback is currently
// mutating the workbook. Change listeners consult this to avoid
// re-reporting engine-driven mutations as user edits.
func (a *Applier) InProgress() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.programmaticDepth > 0
}

func (a *Applier) beginProgrammatic() {
	a.mu.Lock()
	a.programmaticDepth++
	a.mu.Unlock()
}

func (a *Applier) endProgrammatic() {
	a.mu.Lock()
	if a.programmaticDepth > 0 {
		a.programmaticDepth--
	}
	a.mu.Unlock()
}

// Apply executes the operations in list order. When captureHistory is set,
// the pre-state of each operation is captured before it runs, unless an
// entry for its id already exists.
func (a *Applier) Apply(ops []domain.Operation, captureHistory bool) {
	a.beginProgrammatic()
	defer a.endProgrammatic()

	for _, op := range ops {
		if err := op.Validate(); err != nil {
			a.log.Error().Err(err).Str("op_id", op.ID).Msg("skipping invalid operation")
			continue
		}
		if captureHistory {
			a.history.Capture(op)
		}
		if err := a.applyOne(op); err != nil {
			a.log.Error().Err(err).Str("op_id", op.ID).Str("type", string(op.Type)).
				Msg("failed to apply operation")
		}
	}
}

func (a *Applier) applyOne(op domain.Operation) error {
	switch op.Type {
	case domain.OpUpdateCell:
		p := op.UpdateCell
		if !a.grid.HasSheet(p.Sheet) {
			return fmt.Errorf("sheet %q does not exist", p.Sheet)
		}
		if formula := formulaOf(p); formula != "" {
			return a.grid.SetCellFormula(p.Sheet, p.Row, p.Col, formula)
		}
		return a.grid.SetCellValue(p.Sheet, p.Row, p.Col, p.Value)

	case domain.OpCreateSheet:
		p := op.CreateSheet
		if a.grid.HasSheet(p.SheetName) {
			a.log.Debug().Str("op_id", op.ID).Str("sheet", p.SheetName).
				Msg("sheet already exists, create skipped")
			return nil
		}
		return a.grid.CreateSheet(p.SheetName, p.Rows, p.Cols)

	case domain.OpDeleteSheet:
		return a.grid.DeleteSheet(op.DeleteSheet.SheetName)

	case domain.OpReplaceSheet:
		return a.grid.ReplaceSheet(op.ReplaceSheet.Sheet)

	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}

// Rollback restores the pre-operation state captured for the operation. It
// returns false when no history entry exists or the restore itself fails;
// the caller must not flip the item's status in that case. The history
// entry is retained so a later re-accept can re-apply without re-capturing.
func (a *Applier) Rollback(op domain.Operation) bool {
	entry, ok := a.history.Get(op.ID)
	if !ok {
		a.log.Warn().Str("op_id", op.ID).Msg("no history entry, cannot roll back")
		return false
	}

	a.beginProgrammatic()
	defer a.endProgrammatic()

	switch entry.Type {
	case domain.OpUpdateCell:
		cs := entry.Cell
		var err error
		switch {
		case cs.Cell.Formula != "":
			// A cell that had a formula gets its formula back, never the
			// stale cached value.
			err = a.grid.SetCellFormula(cs.Sheet, cs.Row, cs.Col, cs.Cell.Formula)
		case cs.Cell.Value != nil:
			err = a.grid.SetCellValue(cs.Sheet, cs.Row, cs.Col, cs.Cell.Value)
		default:
			err = a.grid.ClearCell(cs.Sheet, cs.Row, cs.Col)
		}
		if err != nil {
			a.log.Error().Err(err).Str("op_id", op.ID).Msg("failed to restore cell state")
			return false
		}
		return true

	case domain.OpCreateSheet:
		if err := a.grid.DeleteSheet(entry.SheetName); err != nil {
			a.log.Error().Err(err).Str("op_id", op.ID).Msg("failed to delete created sheet")
			return false
		}
		return true

	case domain.OpDeleteSheet, domain.OpReplaceSheet:
		if err := a.grid.RestoreSheet(*entry.Sheet); err != nil {
			a.log.Error().Err(err).Str("op_id", op.ID).Msg("failed to restore sheet snapshot")
			return false
		}
		return true

	default:
		a.log.Error().Str("op_id", op.ID).Str("type", string(entry.Type)).
			Msg("cannot roll back unknown operation type")
		return false
	}
}

// formulaOf resolves the effective formula of an update payload: an
// explicit formula field, or a string value carrying the formula marker.
func formulaOf(p *domain.UpdateCellPayload) string {
	if p.Formula != "" {
		return p.Formula
	}
	if s, ok := p.Value.(string); ok && strings.HasPrefix(s, "=") {
		return s
	}
	return ""
}
