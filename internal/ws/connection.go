package ws

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var (
	// ErrConnectionClosed is returned when sending to a closed connection.
	ErrConnectionClosed = errors.New("ws: connection closed")
	// ErrSendQueueFull is returned when a slow reader's queue overflows. The
	// connection is evicted.
	ErrSendQueueFull = errors.New("ws: send queue full")
)

// Connection represents a single WebSocket client connection. Outbound data
// frames go through a FIFO queue drained by one writer goroutine, so every
// frame enqueued by the application reaches the client in enqueue order.
type Connection struct {
	ID         string    // connection id (UUID)
	Conn       net.Conn  // underlying TCP connection
	Fd         int       // file descriptor, -1 when the poller does not use it
	RemoteAddr string    // client address as seen by the HTTP layer
	CreatedAt  time.Time // when the connection was established

	reader     io.Reader     // frame source; may buffer on top of Conn
	lastSeen   atomic.Int64  // unix nanos of the last inbound frame
	send       chan []byte   // outbound text frames
	done       chan struct{} // closed once the connection is torn down
	closeOnce  sync.Once
	writeMu    sync.Mutex    // serializes frames on the wire
	processing int32         // atomic flag: 0 = idle, 1 = being read by handleConn
	handled    chan struct{} // signals the fallback poller that a frame was consumed
}

func newConnection(id string, conn net.Conn, remote string, queueSize int) *Connection {
	now := time.Now()
	c := &Connection{
		ID:         id,
		Conn:       conn,
		Fd:         -1,
		RemoteAddr: remote,
		CreatedAt:  now,
		reader:     conn,
		send:       make(chan []byte, queueSize),
		done:       make(chan struct{}),
		handled:    make(chan struct{}, 1),
	}
	c.touch(now)
	return c
}

func (c *Connection) touch(now time.Time) {
	c.lastSeen.Store(now.UnixNano())
}

// LastSeen returns the time of the last inbound frame.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Enqueue queues a text frame without blocking.
func (c *Connection) Enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendQueueFull
	}
}

// writeFrame writes one frame with an optional deadline. The write mutex keeps
// heartbeat pings from interleaving with data frames.
func (c *Connection) writeFrame(op ws.OpCode, data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if timeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(timeout))
		defer func() { _ = c.Conn.SetWriteDeadline(time.Time{}) }()
	}
	if op == ws.OpText {
		return wsutil.WriteServerMessage(c.Conn, op, data)
	}
	return ws.WriteFrame(c.Conn, ws.NewFrame(op, true, data))
}

// WritePing sends a WebSocket protocol-level ping frame (opcode 0x9).
func (c *Connection) WritePing(timeout time.Duration) error {
	return c.writeFrame(ws.OpPing, nil, timeout)
}

// Close tears the connection down once. Queued frames are discarded.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.Conn.Close()
	})
	return err
}

// ConnectionManager is a thread-safe registry of live connections by id.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{byID: make(map[string]*Connection)}
}

// Add registers a new connection.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.mu.Unlock()
}

// Remove deletes the connection by id. Returns true if it was present; only
// one caller ever sees true for a given connection.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	_, ok := cm.byID[id]
	delete(cm.byID, id)
	cm.mu.Unlock()
	return ok
}

// Get returns the connection for the given id, or nil if not found.
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
