package tcp

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Stats is a point-in-time snapshot of the manager counters
type Stats struct {
	ActiveConnections   int    `json:"active_connections"`
	AcceptedConnections uint64 `json:"accepted_connections"`
	FramesReceived      uint64 `json:"frames_received"`
	ResponsesSent       uint64 `json:"responses_sent"`
	DroppedFrames       uint64 `json:"dropped_frames"`
}

type ConnectionManager struct {
	clients map[string]*ClientConnection
	// key: client ID, value: connection owned by exactly one handler goroutine
	mu     sync.RWMutex // guards clients
	logger *slog.Logger

	accepted  atomic.Uint64
	frames    atomic.Uint64
	responses atomic.Uint64
	dropped   atomic.Uint64 // frames that ended the connection without a response
}

func NewConnectionManager(logger *slog.Logger) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionManager{
		clients: make(map[string]*ClientConnection),
		logger:  logger,
	}
}

func (m *ConnectionManager) AddConnection(client *ClientConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[client.ID] = client
	m.accepted.Add(1)
	m.logger.Debug("client_added",
		"client_id", client.ID,
	)
}

func (m *ConnectionManager) RemoveConnection(client *ClientConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, client.ID)
	m.logger.Debug("client_removed",
		"client_id", client.ID,
	)
}

// Count returns the number of registered connections
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CloseAllConnections force-closes every registered connection
// handlers notice on their next read or write and unregister themselves
func (m *ConnectionManager) CloseAllConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, client := range m.clients {
		client.Close()
		m.logger.Warn("client_connection_force_closed",
			"client_id", id,
		)
	}
	return len(m.clients)
}

func (m *ConnectionManager) Stats() Stats {
	return Stats{
		ActiveConnections:   m.Count(),
		AcceptedConnections: m.accepted.Load(),
		FramesReceived:      m.frames.Load(),
		ResponsesSent:       m.responses.Load(),
		DroppedFrames:       m.dropped.Load(),
	}
}

func (m *ConnectionManager) frameReceived() { m.frames.Add(1) }
func (m *ConnectionManager) responseSent()  { m.responses.Add(1) }
func (m *ConnectionManager) frameDropped()  { m.dropped.Add(1) }
