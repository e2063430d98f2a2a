// Package ws handles WebSocket connection management: upgrading HTTP
// requests, watching sockets for readiness, reading frames on a bounded
// worker pool and writing outbound frames through per-connection queues.
package ws

import (
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/whisper/matchmaker/internal/pkg/logx"
	"github.com/whisper/matchmaker/internal/protocol"
)

// maxFrameBytes caps a single inbound data frame.
const maxFrameBytes = 2 * protocol.MaxPayloadBytes

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	WorkerPoolSize int           // max concurrent read-worker goroutines
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // deadline for reading one frame once readable
	WriteTimeout   time.Duration // deadline for writing one frame
	SendQueueSize  int           // outbound frames buffered per connection
	Heartbeat      HeartbeatConfig
}

// DefaultServerConfig returns a ServerConfig with sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		WorkerPoolSize: 256,
		MaxConnections: 100000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendQueueSize:  256,
		Heartbeat:      DefaultHeartbeatConfig(),
	}
}

// poller reports connections with pending input. A reported connection is
// not reported again until Done is called for it.
type poller interface {
	Add(c *Connection) error
	Remove(c *Connection) error
	Wait() ([]*Connection, error)
	Done(c *Connection)
	Close() error
}

// Server upgrades HTTP requests to WebSocket, registers the sockets with a
// readiness poller and hands ready connections to a bounded worker pool for
// frame reading. It is an http.Handler so it can be mounted on any router.
type Server struct {
	config       ServerConfig
	poller       poller
	conns        *ConnectionManager
	workerPool   chan struct{}                         // semaphore limiting concurrent read workers
	onMessage    func(conn *Connection, data []byte)   // called for every complete data frame
	onConnect    func(connID string)                   // called before the first frame is read
	onDisconnect func(connID string)                   // called exactly once per connection
	log          zerolog.Logger
	done         chan struct{}
	started      atomic.Bool
	stopOnce     sync.Once
}

// NewServer creates a Server. Start must be called before connections are
// accepted.
func NewServer(config ServerConfig, onMessage func(conn *Connection, data []byte)) *Server {
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 1
	}
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = 1
	}
	return &Server{
		config:     config,
		conns:      NewConnectionManager(),
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		onMessage:  onMessage,
		log:        logx.Component("ws"),
		done:       make(chan struct{}),
	}
}

// SetOnConnect registers a callback invoked when a connection is accepted.
// Frames queued by the callback are the first the client receives.
func (s *Server) SetOnConnect(fn func(connID string)) {
	s.onConnect = fn
}

// SetOnDisconnect registers a callback invoked once when a connection is
// removed, whatever the cause.
func (s *Server) SetOnDisconnect(fn func(connID string)) {
	s.onDisconnect = fn
}

// Start creates the poller and launches the event loop and heartbeat. It
// returns immediately.
func (s *Server) Start() error {
	p, err := newPoller()
	if err != nil {
		return err
	}
	s.poller = p
	s.started.Store(true)

	go s.startEventLoop()
	if s.config.Heartbeat.Interval > 0 {
		StartHeartbeat(s, s.config.Heartbeat)
	}

	s.log.Info().
		Int("workers", s.config.WorkerPoolSize).
		Int("max_connections", s.config.MaxConnections).
		Msg("websocket server started")
	return nil
}

// ServeHTTP upgrades the request to a WebSocket connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.started.Load() {
		http.Error(w, "server not started", http.StatusServiceUnavailable)
		return
	}
	select {
	case <-s.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	if s.config.MaxConnections > 0 && s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	// Deadlines set by http.Server survive the hijack.
	_ = conn.SetDeadline(time.Time{})

	c := newConnection(uuid.New().String(), conn, r.RemoteAddr, s.config.SendQueueSize)
	s.conns.Add(c)
	go s.writePump(c)

	if s.onConnect != nil {
		s.onConnect(c.ID)
	}

	if err := s.poller.Add(c); err != nil {
		s.log.Error().Err(err).Str("conn_id", c.ID).Msg("poller add failed")
		s.RemoveConnection(c)
		return
	}

	s.log.Debug().
		Str("conn_id", c.ID).
		Int("fd", c.Fd).
		Int("total", s.conns.Count()).
		Msg("new connection")
}

// startEventLoop runs the main poller loop. It blocks on Wait and dispatches
// each ready connection to the worker pool. The loop exits when the server's
// done channel is closed.
func (s *Server) startEventLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conns, err := s.poller.Wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if isEINTR(err) {
				continue
			}
			s.log.Error().Err(err).Msg("poller wait failed")
			time.Sleep(10 * time.Millisecond)
			continue
		}

		for _, c := range conns {
			c := c

			select {
			case s.workerPool <- struct{}{}:
			case <-s.done:
				return
			}

			go func() {
				defer func() { <-s.workerPool }()
				s.handleConn(c)
			}()
		}
	}
}

// handleConn reads one frame from a ready connection. Data frames are passed
// to onMessage on this goroutine, so frames from one connection are handled
// one after another in arrival order.
func (s *Server) handleConn(c *Connection) {
	if !atomic.CompareAndSwapInt32(&c.processing, 0, 1) {
		return
	}
	keep := s.readFrame(c)
	atomic.StoreInt32(&c.processing, 0)

	if keep {
		s.poller.Done(c)
	}
}

// readFrame returns false once the connection has been removed.
func (s *Server) readFrame(c *Connection) bool {
	if s.config.ReadTimeout > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	header, reader, err := wsutil.NextReader(c.reader, ws.StateServerSide)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			// Readiness without a complete header; the heartbeat evicts dead peers.
			_ = c.Conn.SetReadDeadline(time.Time{})
			return true
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			s.log.Debug().Err(err).Str("conn_id", c.ID).Msg("read frame failed")
		}
		s.RemoveConnection(c)
		return false
	}

	c.touch(time.Now())

	if header.OpCode.IsControl() {
		return s.handleControl(c, header, reader)
	}

	// Fragmented messages are not produced by browsers for frames of this size.
	if !header.Fin || header.OpCode == ws.OpContinuation || header.Length > maxFrameBytes {
		s.log.Warn().
			Str("conn_id", c.ID).
			Int64("length", header.Length).
			Bool("fin", header.Fin).
			Msg("unsupported frame")
		s.RemoveConnection(c)
		return false
	}

	data := make([]byte, header.Length)
	if header.Length > 0 {
		if _, err := io.ReadFull(reader, data); err != nil {
			s.RemoveConnection(c)
			return false
		}
	}
	_ = c.Conn.SetReadDeadline(time.Time{})

	if len(data) == 0 || header.OpCode != ws.OpText {
		return true
	}

	if s.onMessage != nil {
		s.onMessage(c, data)
	}
	return true
}

func (s *Server) handleControl(c *Connection, header ws.Header, reader io.Reader) bool {
	payload := make([]byte, header.Length)
	if header.Length > 0 {
		if _, err := io.ReadFull(reader, payload); err != nil {
			s.RemoveConnection(c)
			return false
		}
	}
	_ = c.Conn.SetReadDeadline(time.Time{})

	switch header.OpCode {
	case ws.OpClose:
		s.RemoveConnection(c)
		return false
	case ws.OpPing:
		if err := c.writeFrame(ws.OpPong, payload, s.config.WriteTimeout); err != nil {
			s.RemoveConnection(c)
			return false
		}
	}
	return true
}

// writePump drains the connection's send queue onto the wire.
func (s *Server) writePump(c *Connection) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.writeFrame(ws.OpText, data, s.config.WriteTimeout); err != nil {
				s.log.Debug().Err(err).Str("conn_id", c.ID).Msg("write failed")
				s.RemoveConnection(c)
				return
			}
		}
	}
}

// Connections returns the server's ConnectionManager.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Count returns the number of live connections.
func (s *Server) Count() int {
	return s.conns.Count()
}

// RemoveConnection unregisters and closes c, then fires onDisconnect. Only
// the first call for a connection has any effect.
func (s *Server) RemoveConnection(c *Connection) {
	if !s.conns.Remove(c.ID) {
		return
	}
	if s.poller != nil {
		_ = s.poller.Remove(c)
	}
	_ = c.Close()

	if s.onDisconnect != nil {
		s.onDisconnect(c.ID)
	}

	s.log.Debug().
		Str("conn_id", c.ID).
		Int("total", s.conns.Count()).
		Msg("connection closed")
}

// SendMessage queues a text frame for connID without blocking. A connection
// whose queue is full is evicted asynchronously, since callers may hold locks
// that the disconnect callback needs.
func (s *Server) SendMessage(connID string, data []byte) error {
	c := s.conns.Get(connID)
	if c == nil {
		return ErrConnectionClosed
	}

	err := c.Enqueue(data)
	if errors.Is(err, ErrSendQueueFull) {
		s.log.Warn().Str("conn_id", connID).Msg("send queue full, evicting")
		go s.RemoveConnection(c)
	}
	return err
}

// Shutdown stops the event loop and heartbeat and closes every connection.
// onDisconnect is not fired for connections closed here.
func (s *Server) Shutdown() error {
	s.stopOnce.Do(func() {
		s.log.Info().Msg("shutting down websocket server")
		close(s.done)

		for _, c := range s.conns.All() {
			s.conns.Remove(c.ID)
			if s.poller != nil {
				_ = s.poller.Remove(c)
			}
			_ = c.Close()
		}

		if s.poller != nil {
			_ = s.poller.Close()
		}
		s.log.Info().Msg("websocket server stopped")
	})
	return nil
}
