package ws

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/whisper/reportdesk/internal/intake"
)

// dmInboxSize bounds how many unconsumed DM messages a connection holds.
// An active collection session drains the inbox every iteration; without a
// session, overflow traffic is dropped.
const dmInboxSize = 16

// Connection represents a single reporter WebSocket connection with its
// associated metadata, a write mutex for serializing outbound frames, and
// an inbox for DM traffic routed to an active collection session.
type Connection struct {
	ID         string    // session ID (UUID)
	Conn       net.Conn  // underlying TCP connection
	RemoteAddr string    // client address at upgrade time
	CreatedAt  time.Time // when the connection was established
	LastPing   time.Time // last heartbeat received from the client

	writeMu   sync.Mutex // serializes writes to this connection
	inbox     chan *intake.Message
	closed    chan struct{}
	closeOnce sync.Once
}

// newConnection wraps an upgraded network connection.
func newConnection(id string, conn net.Conn, remoteAddr string) *Connection {
	now := time.Now()
	return &Connection{
		ID:         id,
		Conn:       conn,
		RemoteAddr: remoteAddr,
		CreatedAt:  now,
		LastPing:   now,
		inbox:      make(chan *intake.Message, dmInboxSize),
		closed:     make(chan struct{}),
	}
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// Close closes the underlying network connection and signals any session
// waiting on the inbox.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.Conn.Close()
}

// deliverDM routes an inbound DM message to the connection's inbox.
// Returns false if the inbox is full (no session is consuming).
func (c *Connection) deliverDM(msg *intake.Message) bool {
	select {
	case c.inbox <- msg:
		return true
	default:
		return false
	}
}

// drainInbox discards messages queued before a session started, so a new
// session only sees traffic sent after its prompt.
func (c *Connection) drainInbox() {
	for {
		select {
		case <-c.inbox:
		default:
			return
		}
	}
}

// ConnectionManager is a thread-safe registry that maps session IDs to
// their Connection objects.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Connection // session_id -> Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID: make(map[string]*Connection),
	}
}

// Add registers a new connection.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.mu.Unlock()
}

// Remove removes a connection by session ID and closes the underlying
// network connection. Returns true if the connection was found and removed,
// false if it was already gone.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection for the given session ID, or nil if not found.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
