package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// conn is the minimal websocket surface the manager needs; tests substitute
// a recording fake.
type conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type client struct {
	id   string
	conn conn
	mu   sync.Mutex // serializes writes, gorilla conns allow one writer
}

func (c *client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Manager keeps the set of active websocket connections keyed by client id
// and provides targeted and broadcast delivery.
type Manager struct {
	log zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

// NewManager returns an empty connection registry.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		log:     logger.With().Str("component", "connections").Logger(),
		clients: make(map[string]*client),
	}
}

// Register adds a connection under the given client id.
func (m *Manager) Register(clientID string, c conn) {
	m.mu.Lock()
	m.clients[clientID] = &client{id: clientID, conn: c}
	m.mu.Unlock()
	m.log.Info().Str("client_id", clientID).Msg("websocket connection registered")
}

// Unregister removes and closes the connection for the client id.
func (m *Manager) Unregister(clientID string) {
	m.mu.Lock()
	cl, ok := m.clients[clientID]
	delete(m.clients, clientID)
	m.mu.Unlock()
	if ok {
		_ = cl.conn.Close()
		m.log.Info().Str("client_id", clientID).Msg("websocket connection closed")
	}
}

// SendTo delivers a message to one client.
func (m *Manager) SendTo(clientID, msgType string, payload any) error {
	m.mu.RLock()
	cl, ok := m.clients[clientID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no connection for client %q", clientID)
	}

	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	if err := cl.send(data); err != nil {
		return fmt.Errorf("failed to send %s to client %s: %w", msgType, clientID, err)
	}
	return nil
}

// Broadcast delivers a message to every connected client. Per-client write
// failures are logged and skipped.
func (m *Manager) Broadcast(msgType string, payload any) {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		m.log.Error().Err(err).Str("type", msgType).Msg("failed to marshal broadcast")
		return
	}

	m.mu.RLock()
	targets := make([]*client, 0, len(m.clients))
	for _, cl := range m.clients {
		targets = append(targets, cl)
	}
	m.mu.RUnlock()

	for _, cl := range targets {
		if err := cl.send(data); err != nil {
			m.log.Error().Err(err).Str("client_id", cl.id).Str("type", msgType).
				Msg("failed to deliver broadcast")
		}
	}
}

// Count returns the number of active connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	env, err := NewEnvelope(msgType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
