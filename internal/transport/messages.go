package transport

import (
	"encoding/json"
	"time"

	"github.com/th-e-o/budgibot/internal/domain"
	"github.com/th-e-o/budgibot/internal/session"
)

// Message type names exchanged over the websocket, matching the protocol
// the frontend speaks.
const (
	// Inbound.
	MsgProposeUpdates    = "propose_updates"
	MsgApplyDirect       = "apply_direct_updates"
	MsgCellUpdate        = "cell_update"
	MsgAcceptOperation   = "accept_operation"
	MsgRefuseOperation   = "refuse_operation"
	MsgAcceptAll         = "accept_all"
	MsgRefuseAll         = "refuse_all"
	MsgConfirmOperations = "confirm_operations"
	MsgDiscardOperations = "discard_operations"
	MsgRequestWorkbook   = "request_workbook"
	MsgResetWorkbook     = "reset_workbook"

	// Outbound.
	MsgValidateChanges = "validate_changes"
	MsgOperationState  = "operation_state"
	MsgWorkbookUpdate  = "workbook_update"
	MsgCellChanged     = "cell_changed"
	MsgToggleRejected  = "toggle_rejected"
	MsgChatMessage     = "chat_message"
)

// Envelope is the framing of every websocket message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into a ready-to-send envelope.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Payload: raw}, nil
}

// OperationsPayload carries a batch of operations, inbound on
// propose_updates and apply_direct_updates.
type OperationsPayload struct {
	Operations []domain.Operation `json:"operations"`
}

// OperationIDPayload targets a single pending operation.
type OperationIDPayload struct {
	ID string `json:"id"`
}

// ValidationResultPayload is the finalized id partition sent back on
// validate_changes.
type ValidationResultPayload struct {
	Accepted []string `json:"accepted"`
	Refused  []string `json:"refused"`
}

// OperationStatePayload mirrors the pending batch for rendering.
type OperationStatePayload struct {
	Items []session.Item `json:"items"`
}

// CellUpdatePayload is a direct cell edit from the grid UI.
type CellUpdatePayload struct {
	Sheet string `json:"sheet"`
	Row   int    `json:"row"`
	Col   int    `json:"col"`
	Value any    `json:"value"`
}

// CellChangedPayload notifies peers of a live cell mutation.
type CellChangedPayload struct {
	Sheet string      `json:"sheet"`
	Row   int         `json:"row"`
	Col   int         `json:"col"`
	Cell  domain.Cell `json:"cell"`
}

// WorkbookPayload carries full sheet snapshots for a bulk reload.
type WorkbookPayload struct {
	Sheets []domain.SheetSnapshot `json:"sheets"`
}

// ChatPayload is an assistant notice rendered in the chat transcript.
type ChatPayload struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// NewChatPayload returns an assistant chat notice stamped with now.
func NewChatPayload(content string) ChatPayload {
	return ChatPayload{
		Role:      "assistant",
		Content:   content,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}
