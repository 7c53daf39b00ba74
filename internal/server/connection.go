package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection is one registered WebSocket client. Writes are serialized; the
// read side belongs to the connection's handler goroutine.
type Connection struct {
	ID   string
	conn *websocket.Conn

	writeMu sync.Mutex
}

// Send writes one event frame to the client.
func (c *Connection) Send(event ServerEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(event)
}

// writeControl sends a control frame. Safe alongside Send per the websocket
// package's concurrency contract.
func (c *Connection) writeControl(messageType int, data []byte, deadline time.Time) error {
	return c.conn.WriteControl(messageType, data, deadline)
}

// ConnectionManager tracks registered clients and enforces the connection
// limit.
type ConnectionManager struct {
	mu      sync.RWMutex
	conns   map[string]*Connection
	maxSize int
	logger  *slog.Logger
}

// NewConnectionManager creates a registry that admits at most maxSize
// concurrent connections. maxSize <= 0 means unlimited.
func NewConnectionManager(maxSize int, logger *slog.Logger) *ConnectionManager {
	return &ConnectionManager{
		conns:   make(map[string]*Connection),
		maxSize: maxSize,
		logger:  logger,
	}
}

// Register admits a new connection, assigning it a client ID. Returns false
// when the registry is full.
func (m *ConnectionManager) Register(ws *websocket.Conn) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSize > 0 && len(m.conns) >= m.maxSize {
		return nil, false
	}

	c := &Connection{
		ID:   uuid.NewString(),
		conn: ws,
	}
	m.conns[c.ID] = c
	m.logger.Info("client connected", "client_id", c.ID, "active", len(m.conns))
	return c, true
}

// Unregister removes a connection from the registry.
func (m *ConnectionManager) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conns[id]; !ok {
		return
	}
	delete(m.conns, id)
	m.logger.Info("client disconnected", "client_id", id, "active", len(m.conns))
}

// Count returns the number of active connections.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Broadcast sends an event to every registered client. Clients whose send
// fails are pruned from the registry.
func (m *ConnectionManager) Broadcast(event ServerEvent) {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(event); err != nil {
			m.logger.Warn("broadcast send failed, pruning client", "client_id", c.ID, "error", err)
			m.Unregister(c.ID)
		}
	}
}
