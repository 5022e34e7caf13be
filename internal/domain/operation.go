package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// OperationType discriminates the payload variant carried by an Operation.
// The values match the vocabulary sent to the frontend.
type OperationType string

const (
	OpUpdateCell   OperationType = "UPDATE_CELL"
	OpCreateSheet  OperationType = "CREATE_SHEET"
	OpDeleteSheet  OperationType = "DELETE_SHEET"
	OpReplaceSheet OperationType = "REPLACE_SHEET"
)

// UpdateCellPayload sets a cell's value or formula. Row and Col are
// zero-based. When Formula is set it takes precedence over Value.
type UpdateCellPayload struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	Value   any    `json:"value,omitempty"`
	Formula string `json:"formula,omitempty"`
}

// CreateSheetPayload creates a new, empty sheet. Rows and Cols are optional
// dimensions; zero means the engine default.
type CreateSheetPayload struct {
	SheetName string `json:"sheet_name"`
	Rows      int    `json:"rows,omitempty"`
	Cols      int    `json:"cols,omitempty"`
}

// DeleteSheetPayload removes a sheet by name.
type DeleteSheetPayload struct {
	SheetName string `json:"sheet_name"`
}

// ReplaceSheetPayload swaps in a full replacement snapshot for the named
// sheet, keeping its ordinal position when the sheet already exists.
type ReplaceSheetPayload struct {
	Sheet SheetSnapshot `json:"sheet"`
}

// Operation is an immutable description of one pending workbook mutation.
// Exactly one payload field matching Type is set; operations are never
// mutated after creation, only their validation status changes.
type Operation struct {
	ID          string
	Type        OperationType
	Description string

	UpdateCell   *UpdateCellPayload
	CreateSheet  *CreateSheetPayload
	DeleteSheet  *DeleteSheetPayload
	ReplaceSheet *ReplaceSheetPayload
}

// SheetName returns the sheet the operation targets.
func (o Operation) SheetName() string {
	switch o.Type {
	case OpUpdateCell:
		if o.UpdateCell != nil {
			return o.UpdateCell.Sheet
		}
	case OpCreateSheet:
		if o.CreateSheet != nil {
			return o.CreateSheet.SheetName
		}
	case OpDeleteSheet:
		if o.DeleteSheet != nil {
			return o.DeleteSheet.SheetName
		}
	case OpReplaceSheet:
		if o.ReplaceSheet != nil {
			return o.ReplaceSheet.Sheet.Name
		}
	}
	return ""
}

// Validate checks that the operation has an id and that the payload variant
// matches its type.
func (o Operation) Validate() error {
	if o.ID == "" {
		return errors.New("operation is missing an id")
	}
	switch o.Type {
	case OpUpdateCell:
		if o.UpdateCell == nil {
			return fmt.Errorf("operation %s: missing UPDATE_CELL payload", o.ID)
		}
		if o.UpdateCell.Sheet == "" {
			return fmt.Errorf("operation %s: UPDATE_CELL requires a sheet name", o.ID)
		}
		if o.UpdateCell.Row < 0 || o.UpdateCell.Col < 0 {
			return fmt.Errorf("operation %s: negative cell coordinates", o.ID)
		}
	case OpCreateSheet:
		if o.CreateSheet == nil || o.CreateSheet.SheetName == "" {
			return fmt.Errorf("operation %s: CREATE_SHEET requires a sheet name", o.ID)
		}
	case OpDeleteSheet:
		if o.DeleteSheet == nil || o.DeleteSheet.SheetName == "" {
			return fmt.Errorf("operation %s: DELETE_SHEET requires a sheet name", o.ID)
		}
	case OpReplaceSheet:
		if o.ReplaceSheet == nil || o.ReplaceSheet.Sheet.Name == "" {
			return fmt.Errorf("operation %s: REPLACE_SHEET requires a sheet snapshot", o.ID)
		}
	default:
		return fmt.Errorf("operation %s: unknown type %q", o.ID, o.Type)
	}
	return nil
}

// operationWire is the JSON shape exchanged with the frontend and backend:
// {id, type, description, payload}.
type operationWire struct {
	ID          string          `json:"id"`
	Type        OperationType   `json:"type"`
	Description string          `json:"description,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// MarshalJSON implements json.Marshaler.
func (o Operation) MarshalJSON() ([]byte, error) {
	var payload any
	switch o.Type {
	case OpUpdateCell:
		payload = o.UpdateCell
	case OpCreateSheet:
		payload = o.CreateSheet
	case OpDeleteSheet:
		payload = o.DeleteSheet
	case OpReplaceSheet:
		payload = o.ReplaceSheet
	default:
		return nil, fmt.Errorf("cannot marshal operation with unknown type %q", o.Type)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for operation %s: %w", o.ID, err)
	}
	return json.Marshal(operationWire{
		ID:          o.ID,
		Type:        o.Type,
		Description: o.Description,
		Payload:     raw,
	})
}

// UnmarshalJSON implements json.Unmarshaler, dispatching the payload on the
// type discriminant.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var wire operationWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("failed to decode operation envelope: %w", err)
	}

	op := Operation{
		ID:          wire.ID,
		Type:        wire.Type,
		Description: wire.Description,
	}

	var dst any
	switch wire.Type {
	case OpUpdateCell:
		op.UpdateCell = &UpdateCellPayload{}
		dst = op.UpdateCell
	case OpCreateSheet:
		op.CreateSheet = &CreateSheetPayload{}
		dst = op.CreateSheet
	case OpDeleteSheet:
		op.DeleteSheet = &DeleteSheetPayload{}
		dst = op.DeleteSheet
	case OpReplaceSheet:
		op.ReplaceSheet = &ReplaceSheetPayload{}
		dst = op.ReplaceSheet
	default:
		return fmt.Errorf("unknown operation type %q", wire.Type)
	}

	if len(wire.Payload) > 0 {
		if err := json.Unmarshal(wire.Payload, dst); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", wire.Type, err)
		}
	}

	*o = op
	return o.Validate()
}
