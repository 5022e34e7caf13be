// Package history keeps the captured pre-operation state that makes
// single-operation rollback possible.
package history

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/th-e-o/budgibot/internal/domain"
	"github.com/th-e-o/budgibot/internal/spreadsheet"
)

// CellState is the pre-operation content of a single cell.
type CellState struct {
	Sheet string
	Row   int
	Col   int
	Cell  domain.Cell
}

// Entry is the captured pre-operation state for one operation id. The
// populated field depends on the operation type: Cell for UPDATE_CELL,
// SheetName for CREATE_SHEET, Sheet for DELETE_SHEET and REPLACE_SHEET.
type Entry struct {
	OpID      string
	Type      domain.OperationType
	Cell      *CellState
	SheetName string
	Sheet     *domain.SheetSnapshot
}

// Store maps operation ids to their captured pre-state. Capture happens at
// most once per id; entries are removed only when a batch is finalized.
type Store struct {
	grid spreadsheet.Engine
	log  zerolog.Logger

	mu      sync.Mutex
	entries map[string]Entry
}

// NewStore returns an empty store reading pre-state through grid.
func NewStore(grid spreadsheet.Engine, logger zerolog.Logger) *Store {
	return &Store{
		grid:    grid,
		log:     logger.With().Str("component", "history").Logger(),
		entries: make(map[string]Entry),
	}
}

// Capture records the current state the operation is about to overwrite.
// It reports whether an entry exists for the operation after the call.
// The first observed pre-state is authoritative: capturing again for an id
// that already has an entry is a no-op. When the referenced sheet or cell
// does not exist there is nothing to roll back to; the miss is logged and
// no entry is created.
func (s *Store) Capture(op domain.Operation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[op.ID]; ok {
		return true
	}

	entry, ok := s.buildEntry(op)
	if !ok {
		return false
	}
	s.entries[op.ID] = entry
	return true
}

func (s *Store) buildEntry(op domain.Operation) (Entry, bool) {
	switch op.Type {
	case domain.OpUpdateCell:
		p := op.UpdateCell
		cell, err := s.grid.Cell(p.Sheet, p.Row, p.Col)
		if err != nil {
			s.log.Warn().Err(err).Str("op_id", op.ID).
				Msg("cannot capture cell state, rollback will be unavailable")
			return Entry{}, false
		}
		return Entry{
			OpID: op.ID,
			Type: op.Type,
			Cell: &CellState{Sheet: p.Sheet, Row: p.Row, Col: p.Col, Cell: cell},
		}, true

	case domain.OpCreateSheet:
		name := op.CreateSheet.SheetName
		if s.grid.HasSheet(name) {
			// The creation will be skipped, so there is no effect to invert.
			s.log.Warn().Str("op_id", op.ID).Str("sheet", name).
				Msg("sheet already exists, create has nothing to roll back")
			return Entry{}, false
		}
		return Entry{OpID: op.ID, Type: op.Type, SheetName: name}, true

	case domain.OpDeleteSheet, domain.OpReplaceSheet:
		name := op.SheetName()
		snap, err := s.grid.Snapshot(name)
		if err != nil {
			s.log.Warn().Err(err).Str("op_id", op.ID).Str("sheet", name).
				Msg("cannot snapshot sheet, rollback will be unavailable")
			return Entry{}, false
		}
		return Entry{OpID: op.ID, Type: op.Type, Sheet: &snap}, true

	default:
		s.log.Warn().Str("op_id", op.ID).Str("type", string(op.Type)).
			Msg("cannot capture state for unknown operation type")
		return Entry{}, false
	}
}

// Has reports whether an entry exists for the operation id.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Get returns the entry for the operation id, if any.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	return entry, ok
}

// Delete removes the entry for the operation id.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// DeleteMany removes the entries for all given operation ids.
func (s *Store) DeleteMany(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.entries, id)
	}
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
