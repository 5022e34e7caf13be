// Package transport is the websocket glue between the validation session
// and its peers: the proposing backend and the grid UI.
package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/th-e-o/budgibot/internal/domain"
	"github.com/th-e-o/budgibot/internal/session"
	"github.com/th-e-o/budgibot/internal/spreadsheet"
)

// WorkbookStore is the slice of the workbook service the websocket layer
// needs for bulk reloads.
type WorkbookStore interface {
	Reset() error
	Snapshots() []domain.SheetSnapshot
}

// validationEmitter broadcasts confirmed batch results to every peer.
type validationEmitter struct {
	manager *Manager
}

// NewValidationEmitter adapts the connection manager to the controller's
// result emitter contract.
func NewValidationEmitter(m *Manager) session.ResultEmitter {
	return &validationEmitter{manager: m}
}

func (e *validationEmitter) PublishValidation(accepted, refused []string) {
	e.manager.Broadcast(MsgValidateChanges, ValidationResultPayload{
		Accepted: accepted,
		Refused:  refused,
	})
}

// Server upgrades websocket connections and dispatches protocol messages
// to the validation controller and the live workbook.
type Server struct {
	manager    *Manager
	controller *session.Controller
	grid       *spreadsheet.Workbook
	store      WorkbookStore
	upgrader   websocket.Upgrader
	log        zerolog.Logger
}

// NewServer wires the websocket surface and registers the user-edit relay
// on the workbook. store may be nil when no xlsx backing is configured.
func NewServer(manager *Manager, controller *session.Controller, grid *spreadsheet.Workbook, store WorkbookStore, logger zerolog.Logger) *Server {
	s := &Server{
		manager:    manager,
		controller: controller,
		grid:       grid,
		store:      store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logger.With().Str("component", "transport").Logger(),
	}

	// Relay genuine user edits to peers. Mutations driven by the engine or
	// arriving while a batch is pending are suppressed so they are never
	// re-reported as user changes.
	grid.SetChangeListener(func(change spreadsheet.CellChange) {
		if s.controller.SuppressUserEdits() {
			return
		}
		s.manager.Broadcast(MsgCellChanged, CellChangedPayload{
			Sheet: change.Sheet,
			Row:   change.Row,
			Col:   change.Col,
			Cell:  change.Cell,
		})
	})

	return s
}

// BroadcastWorkbook pushes full sheet snapshots to every peer.
func (s *Server) BroadcastWorkbook(sheets []domain.SheetSnapshot) {
	s.manager.Broadcast(MsgWorkbookUpdate, WorkbookPayload{Sheets: sheets})
}

// HandleWS upgrades the request and runs the connection's read loop.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	clientID := uuid.New().String()
	s.manager.Register(clientID, wsConn)
	defer s.manager.Unregister(clientID)

	// Bring the new peer up to date.
	s.sendWorkbook(clientID)
	s.sendState(clientID)

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Error().Err(err).Str("client_id", clientID).Msg("websocket read failed")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Error().Err(err).Str("client_id", clientID).Msg("failed to decode message envelope")
			continue
		}
		s.Dispatch(clientID, env)
	}
}

// Dispatch routes one decoded envelope from the given client.
func (s *Server) Dispatch(clientID string, env Envelope) {
	switch env.Type {
	case MsgProposeUpdates:
		s.handlePropose(env)
	case MsgApplyDirect:
		s.handleApplyDirect(env)
	case MsgCellUpdate:
		s.handleCellUpdate(clientID, env)
	case MsgAcceptOperation:
		s.handleToggle(clientID, env, s.controller.Accept)
	case MsgRefuseOperation:
		s.handleToggle(clientID, env, s.controller.Refuse)
	case MsgAcceptAll:
		s.controller.AcceptAll()
		s.broadcastState()
	case MsgRefuseAll:
		s.controller.RefuseAll()
		s.broadcastState()
	case MsgConfirmOperations:
		s.handleConfirm()
	case MsgDiscardOperations:
		s.controller.Discard()
		s.broadcastState()
		s.manager.Broadcast(MsgChatMessage, NewChatPayload("Pending changes were discarded."))
	case MsgRequestWorkbook:
		s.sendWorkbook(clientID)
	case MsgResetWorkbook:
		s.handleReset()
	default:
		s.log.Warn().Str("type", env.Type).Str("client_id", clientID).
			Msg("ignoring message of unknown type")
	}
}

func (s *Server) handlePropose(env Envelope) {
	var payload OperationsPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.log.Error().Err(err).Msg("failed to decode propose_updates payload")
		return
	}
	s.controller.Propose(payload.Operations)
	s.broadcastState()
}

func (s *Server) handleApplyDirect(env Envelope) {
	var payload OperationsPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.log.Error().Err(err).Msg("failed to decode apply_direct_updates payload")
		return
	}
	s.controller.ApplyDirect(payload.Operations)
	s.BroadcastWorkbook(s.grid.SnapshotAll())
	s.manager.Broadcast(MsgChatMessage, NewChatPayload("Direct update applied."))
}

func (s *Server) handleCellUpdate(clientID string, env Envelope) {
	if s.controller.SuppressUserEdits() {
		s.log.Debug().Str("client_id", clientID).
			Msg("dropping user edit while edits are suppressed")
		return
	}

	var payload CellUpdatePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.log.Error().Err(err).Str("client_id", clientID).Msg("failed to decode cell_update payload")
		return
	}

	// Formula cells are protected from plain-value edits.
	existing, err := s.grid.Cell(payload.Sheet, payload.Row, payload.Col)
	if err != nil {
		s.log.Warn().Err(err).Str("client_id", clientID).Msg("cell update targets unknown sheet")
		return
	}
	if existing.Formula != "" {
		s.log.Debug().Str("sheet", payload.Sheet).Int("row", payload.Row).Int("col", payload.Col).
			Msg("ignoring user edit on a formula cell")
		return
	}

	if err := s.grid.SetCellValue(payload.Sheet, payload.Row, payload.Col, payload.Value); err != nil {
		s.log.Error().Err(err).Str("client_id", clientID).Msg("failed to apply user edit")
	}
}

func (s *Server) handleToggle(clientID string, env Envelope, transition func(string) bool) {
	var payload OperationIDPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.log.Error().Err(err).Str("client_id", clientID).Msg("failed to decode operation id payload")
		return
	}

	if !transition(payload.ID) {
		if err := s.manager.SendTo(clientID, MsgToggleRejected, OperationIDPayload{ID: payload.ID}); err != nil {
			s.log.Error().Err(err).Str("client_id", clientID).Msg("failed to notify rejected toggle")
		}
	}
	s.broadcastState()
}

func (s *Server) handleConfirm() {
	accepted, refused, ok := s.controller.Confirm(context.Background())
	if !ok {
		return
	}
	s.log.Info().Int("accepted", len(accepted)).Int("refused", len(refused)).
		Msg("validation results published")
	s.broadcastState()
}

func (s *Server) handleReset() {
	if s.store == nil {
		s.log.Warn().Msg("reset requested but no workbook backing is configured")
		return
	}
	if err := s.store.Reset(); err != nil {
		s.log.Error().Err(err).Msg("failed to reset workbook")
		return
	}
	s.BroadcastWorkbook(s.store.Snapshots())
	s.manager.Broadcast(MsgChatMessage, NewChatPayload("Workbook restored to its original state."))
}

func (s *Server) sendWorkbook(clientID string) {
	if err := s.manager.SendTo(clientID, MsgWorkbookUpdate, WorkbookPayload{Sheets: s.grid.SnapshotAll()}); err != nil {
		s.log.Error().Err(err).Str("client_id", clientID).Msg("failed to send workbook snapshot")
	}
}

func (s *Server) sendState(clientID string) {
	if err := s.manager.SendTo(clientID, MsgOperationState, OperationStatePayload{Items: s.controller.Items()}); err != nil {
		s.log.Error().Err(err).Str("client_id", clientID).Msg("failed to send operation state")
	}
}

func (s *Server) broadcastState() {
	s.manager.Broadcast(MsgOperationState, OperationStatePayload{Items: s.controller.Items()})
}
