package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// UpdateBuilder is a fluent helper for assembling a batch of operations with
// generated ids and human-readable descriptions.
type UpdateBuilder struct {
	operations []Operation
}

// NewUpdateBuilder returns an empty builder.
func NewUpdateBuilder() *UpdateBuilder {
	return &UpdateBuilder{}
}

// CreateSheet queues creation of a new sheet with the given name.
func (b *UpdateBuilder) CreateSheet(name string) *UpdateBuilder {
	b.add(Operation{
		Type:        OpCreateSheet,
		Description: fmt.Sprintf("Create sheet %q", name),
		CreateSheet: &CreateSheetPayload{SheetName: name},
	})
	return b
}

// DeleteSheet queues deletion of the named sheet.
func (b *UpdateBuilder) DeleteSheet(name string) *UpdateBuilder {
	b.add(Operation{
		Type:        OpDeleteSheet,
		Description: fmt.Sprintf("Delete sheet %q", name),
		DeleteSheet: &DeleteSheetPayload{SheetName: name},
	})
	return b
}

// UpdateCell queues a value update for the cell at (row, col), zero-based.
func (b *UpdateBuilder) UpdateCell(sheet string, row, col int, value any) *UpdateBuilder {
	b.add(Operation{
		Type:        OpUpdateCell,
		Description: fmt.Sprintf("Update cell (%d, %d) in %q", row+1, col+1, sheet),
		UpdateCell:  &UpdateCellPayload{Sheet: sheet, Row: row, Col: col, Value: value},
	})
	return b
}

// UpdateCellFormula queues a formula update for the cell at (row, col).
func (b *UpdateBuilder) UpdateCellFormula(sheet string, row, col int, formula string) *UpdateBuilder {
	b.add(Operation{
		Type:        OpUpdateCell,
		Description: fmt.Sprintf("Update formula of cell (%d, %d) in %q", row+1, col+1, sheet),
		UpdateCell:  &UpdateCellPayload{Sheet: sheet, Row: row, Col: col, Formula: formula},
	})
	return b
}

// ReplaceSheet queues a full-sheet replacement from the given snapshot.
func (b *UpdateBuilder) ReplaceSheet(snapshot SheetSnapshot) *UpdateBuilder {
	b.add(Operation{
		Type:         OpReplaceSheet,
		Description:  fmt.Sprintf("Replace sheet %q with new data", snapshot.Name),
		ReplaceSheet: &ReplaceSheetPayload{Sheet: snapshot.Clone()},
	})
	return b
}

// Operations returns the queued operations in insertion order.
func (b *UpdateBuilder) Operations() []Operation {
	return append([]Operation(nil), b.operations...)
}

// Len returns the number of queued operations.
func (b *UpdateBuilder) Len() int {
	return len(b.operations)
}

func (b *UpdateBuilder) add(op Operation) {
	op.ID = uuid.New().String()
	b.operations = append(b.operations, op)
}
