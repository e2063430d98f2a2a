package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/whisper/matchmaker/internal/pkg/errs"
	"github.com/whisper/matchmaker/internal/protocol"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type testClient struct {
	conn net.Conn
	rw   io.ReadWriter
}

func testConfig() ServerConfig {
	cfg := DefaultServerConfig()
	cfg.WorkerPoolSize = 8
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	cfg.Heartbeat.Interval = 0
	return cfg
}

// startServer wires a server and dispatcher that greet each connection with
// session-created and echo join-room back as ready-to-connect.
func startServer(t *testing.T, cfg ServerConfig) (*Server, *httptest.Server, chan string) {
	t.Helper()

	d := NewMessageDispatcher(nil)
	s := NewServer(cfg, d.Dispatch)
	d.SetServer(s)

	d.Register(protocol.TypeJoinRoom, func(c *Connection, msg protocol.ClientMessage) {
		m := msg.(protocol.JoinRoom)
		data, _ := protocol.NewServerMessage(protocol.TypeReadyToConnect, protocol.ReadyToConnectMsg{RoomID: m.RoomID})
		_ = s.SendMessage(c.ID, data)
	})

	disconnected := make(chan string, 16)
	s.SetOnConnect(func(id string) {
		data, _ := protocol.NewServerMessage(protocol.TypeSessionCreated, protocol.SessionCreatedMsg{ConnectionID: id})
		_ = s.SendMessage(id, data)
	})
	s.SetOnDisconnect(func(id string) { disconnected <- id })

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		ts.Close()
		_ = s.Shutdown()
	})
	return s, ts, disconnected
}

func dial(t *testing.T, ts *httptest.Server) *testClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, br, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	var rd io.Reader = conn
	if br != nil {
		rd = br
	}
	return &testClient{conn: conn, rw: struct {
		io.Reader
		io.Writer
	}{rd, conn}}
}

func (c *testClient) send(t *testing.T, frame string) {
	t.Helper()
	if err := wsutil.WriteClientText(c.conn, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func (c *testClient) read(t *testing.T) map[string]any {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	data, err := wsutil.ReadServerText(c.rw)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return out
}

func (c *testClient) expectType(t *testing.T, want string) map[string]any {
	t.Helper()
	msg := c.read(t)
	if msg["type"] != want {
		t.Fatalf("type = %v, want %q (frame %v)", msg["type"], want, msg)
	}
	return msg
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestServerGreetsNewConnection(t *testing.T) {
	s, ts, _ := startServer(t, testConfig())
	c := dial(t, ts)

	msg := c.expectType(t, protocol.TypeSessionCreated)
	id, _ := msg["connectionId"].(string)
	if id == "" {
		t.Fatal("expected a connection id")
	}
	if s.Connections().Get(id) == nil {
		t.Errorf("connection %q not registered", id)
	}
	if got := s.Count(); got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
}

func TestServerDispatch(t *testing.T) {
	_, ts, _ := startServer(t, testConfig())
	c := dial(t, ts)
	c.expectType(t, protocol.TypeSessionCreated)

	c.send(t, `{"type":"ping"}`)
	c.expectType(t, protocol.TypePong)

	c.send(t, `{"type":"join-room","roomId":"room_1"}`)
	msg := c.expectType(t, protocol.TypeReadyToConnect)
	if msg["roomId"] != "room_1" {
		t.Errorf("roomId = %v, want room_1", msg["roomId"])
	}

	c.send(t, `not json`)
	msg = c.expectType(t, protocol.TypeError)
	if msg["code"] != errs.CodeInvalidParams {
		t.Errorf("code = %v, want %s", msg["code"], errs.CodeInvalidParams)
	}

	// Valid but without a registered handler.
	c.send(t, `{"type":"leave-room","roomId":"room_1"}`)
	msg = c.expectType(t, protocol.TypeError)
	if msg["code"] != errs.CodeInvalidParams {
		t.Errorf("code = %v, want %s", msg["code"], errs.CodeInvalidParams)
	}

	// The connection survives all of the above.
	c.send(t, `{"type":"ping"}`)
	c.expectType(t, protocol.TypePong)
}

func TestServerPreservesFrameOrder(t *testing.T) {
	_, ts, _ := startServer(t, testConfig())
	c := dial(t, ts)
	c.expectType(t, protocol.TypeSessionCreated)

	const n = 50
	for i := 0; i < n; i++ {
		c.send(t, fmt.Sprintf(`{"type":"join-room","roomId":"room_%d"}`, i))
	}
	for i := 0; i < n; i++ {
		msg := c.expectType(t, protocol.TypeReadyToConnect)
		if want := fmt.Sprintf("room_%d", i); msg["roomId"] != want {
			t.Fatalf("frame %d roomId = %v, want %s", i, msg["roomId"], want)
		}
	}
}

func TestServerAnswersProtocolPing(t *testing.T) {
	_, ts, _ := startServer(t, testConfig())
	c := dial(t, ts)
	c.expectType(t, protocol.TypeSessionCreated)

	if err := wsutil.WriteClientMessage(c.conn, ws.OpPing, []byte("hb")); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := ws.ReadFrame(c.rw)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Header.OpCode != ws.OpPong {
		t.Fatalf("opcode = %v, want pong", frame.Header.OpCode)
	}
	if string(frame.Payload) != "hb" {
		t.Errorf("pong payload = %q, want %q", frame.Payload, "hb")
	}
}

func TestServerDisconnectCallback(t *testing.T) {
	s, ts, disconnected := startServer(t, testConfig())
	c := dial(t, ts)
	msg := c.expectType(t, protocol.TypeSessionCreated)
	id := msg["connectionId"].(string)

	_ = c.conn.Close()

	select {
	case got := <-disconnected:
		if got != id {
			t.Errorf("disconnected %q, want %q", got, id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("onDisconnect not called")
	}

	if s.Connections().Get(id) != nil {
		t.Error("connection still registered after close")
	}
	if err := s.SendMessage(id, []byte(`{}`)); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("SendMessage after close = %v, want ErrConnectionClosed", err)
	}

	select {
	case got := <-disconnected:
		t.Errorf("second disconnect callback for %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServerCloseFrameDisconnects(t *testing.T) {
	_, ts, disconnected := startServer(t, testConfig())
	c := dial(t, ts)
	c.expectType(t, protocol.TypeSessionCreated)

	if err := ws.WriteFrame(c.conn, ws.MaskFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))); err != nil {
		t.Fatalf("write close: %v", err)
	}

	select {
	case <-disconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("close frame did not disconnect")
	}
}

func TestServeHTTPBeforeStart(t *testing.T) {
	s := NewServer(testConfig(), nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestServeHTTPMaxConnections(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	_, ts, _ := startServer(t, cfg)

	c := dial(t, ts)
	c.expectType(t, protocol.TypeSessionCreated)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")); err == nil {
		t.Error("expected second dial to be rejected")
	}
}

func TestShutdownClosesConnections(t *testing.T) {
	s, ts, _ := startServer(t, testConfig())
	c := dial(t, ts)
	c.expectType(t, protocol.TypeSessionCreated)

	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := s.Count(); got != 0 {
		t.Errorf("Count after shutdown = %d, want 0", got)
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := wsutil.ReadServerText(c.rw); err == nil {
		t.Error("expected read to fail after shutdown")
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status after shutdown = %d, want 503", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Connection queue and heartbeat
// ---------------------------------------------------------------------------

func TestConnectionEnqueue(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := newConnection("c1", server, "pipe", 1)
	if err := c.Enqueue([]byte("a")); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := c.Enqueue([]byte("b")); !errors.Is(err, ErrSendQueueFull) {
		t.Errorf("second Enqueue = %v, want ErrSendQueueFull", err)
	}

	_ = c.Close()
	_ = c.Close()
	if err := c.Enqueue([]byte("c")); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Enqueue after close = %v, want ErrConnectionClosed", err)
	}
}

func TestSendMessageEvictsSlowConsumer(t *testing.T) {
	s := NewServer(testConfig(), nil)
	var removed atomic.Int32
	done := make(chan struct{})
	s.SetOnDisconnect(func(string) {
		removed.Add(1)
		close(done)
	})

	server, client := net.Pipe()
	defer client.Close()
	c := newConnection("slow", server, "pipe", 1)
	s.conns.Add(c)

	if err := s.SendMessage("slow", []byte("a")); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if err := s.SendMessage("slow", []byte("b")); !errors.Is(err, ErrSendQueueFull) {
		t.Fatalf("SendMessage = %v, want ErrSendQueueFull", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("slow consumer not evicted")
	}
	if removed.Load() != 1 {
		t.Errorf("removed = %d, want 1", removed.Load())
	}
}

func TestCheckConnections(t *testing.T) {
	cfg := testConfig()
	cfg.WriteTimeout = 500 * time.Millisecond
	s := NewServer(cfg, nil)

	var removed []string
	s.SetOnDisconnect(func(id string) { removed = append(removed, id) })

	staleSrv, staleCli := net.Pipe()
	defer staleCli.Close()
	stale := newConnection("stale", staleSrv, "pipe", 1)
	stale.touch(time.Now().Add(-time.Hour))
	s.conns.Add(stale)

	liveSrv, liveCli := net.Pipe()
	defer liveCli.Close()
	go func() { _, _ = io.Copy(io.Discard, liveCli) }()
	live := newConnection("live", liveSrv, "pipe", 1)
	s.conns.Add(live)

	checkConnections(s, HeartbeatConfig{Interval: time.Second, Timeout: time.Second}, time.Now())

	if len(removed) != 1 || removed[0] != "stale" {
		t.Errorf("removed = %v, want [stale]", removed)
	}
	if s.Connections().Get("live") == nil {
		t.Error("live connection was evicted")
	}
}
