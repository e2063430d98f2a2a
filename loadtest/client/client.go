// Package client provides a simulated matchmaker user for load tests. It
// speaks the same gobwas/ws framing as the server, records the connection id
// announced in session-created, and lets a scenario wait for specific server
// events in order.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ---------------------------------------------------------------------------
// Protocol event names (local equivalents of internal/protocol constants)
// ---------------------------------------------------------------------------

// Client -> Server.
const (
	TypeRegisterUser = "register-user"
	TypeJoinRoom     = "join-room"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeLeaveRoom    = "leave-room"
	TypeChatMessage  = "chat-message"
	TypePing         = "ping"
)

// Server -> Client.
const (
	TypeSessionCreated = "session-created"
	TypeMatchFound     = "match-found"
	TypeReadyToConnect = "ready-to-connect"
	TypeStartSignaling = "start-signaling"
	TypePeerLeft       = "peer-left"
	TypeError          = "error"
	TypePong           = "pong"
)

// ErrClosed is returned by Expect once the read loop has stopped.
var ErrClosed = errors.New("client: connection closed")

// ServerError is an error event received while waiting for something else.
type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}

// Metrics tracks per-connection counters.
type Metrics struct {
	ConnectLatency   time.Duration
	MessagesReceived int64
	MessagesSent     int64
	Errors           int64
}

type frame struct {
	msgType string
	data    json.RawMessage
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client is one simulated user. Send methods are goroutine-safe; Expect must
// be called from a single goroutine.
type Client struct {
	conn           net.Conn
	connectLatency time.Duration

	writeMu sync.Mutex
	inbox   chan frame
	pending []frame

	connID    atomic.Value // string
	session   chan struct{}
	sent      atomic.Int64
	received  atomic.Int64
	errs      atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

// New dials url and starts reading in the background.
func New(ctx context.Context, url string) (*Client, error) {
	start := time.Now()
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		conn:           conn,
		connectLatency: time.Since(start),
		inbox:          make(chan frame, 64),
		session:        make(chan struct{}),
		done:           make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// ConnectionID returns the id from session-created, or "" before it arrives.
func (c *Client) ConnectionID() string {
	id, _ := c.connID.Load().(string)
	return id
}

// WaitForSession blocks until session-created has been received.
func (c *Client) WaitForSession(ctx context.Context) error {
	select {
	case <-c.session:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Alive reports whether the read loop is still running.
func (c *Client) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Send writes one event. fields are merged next to the "type" key.
func (c *Client) Send(msgType string, fields map[string]any) error {
	msg := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		msg[k] = v
	}
	msg["type"] = msgType

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsutil.WriteClientMessage(c.conn, ws.OpText, data); err != nil {
		c.errs.Add(1)
		return err
	}
	c.sent.Add(1)
	return nil
}

func (c *Client) Register(userID string, interests []string) error {
	return c.Send(TypeRegisterUser, map[string]any{"userId": userID, "interests": interests})
}

func (c *Client) JoinRoom(roomID string) error {
	return c.Send(TypeJoinRoom, map[string]any{"roomId": roomID})
}

// Signal sends an offer, answer or ice-candidate with an opaque payload.
func (c *Client) Signal(kind, roomID string, payload any) error {
	return c.Send(kind, map[string]any{"roomId": roomID, "payload": payload})
}

func (c *Client) Chat(roomID, sender, text string) error {
	return c.Send(TypeChatMessage, map[string]any{
		"roomId":    roomID,
		"sender":    sender,
		"message":   text,
		"timestamp": time.Now().UnixMilli(),
	})
}

func (c *Client) LeaveRoom(roomID string) error {
	return c.Send(TypeLeaveRoom, map[string]any{"roomId": roomID})
}

// Expect returns the next event of msgType and decodes it into out when out
// is non-nil. Events of other types received meanwhile are kept for later
// calls. An error event ends the wait unless msgType is TypeError.
func (c *Client) Expect(ctx context.Context, msgType string, out any) error {
	for i, f := range c.pending {
		if f.msgType == msgType {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return decode(f.data, out)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", msgType, ctx.Err())
		case f, ok := <-c.inbox:
			if !ok {
				return fmt.Errorf("waiting for %s: %w", msgType, ErrClosed)
			}
			if f.msgType == msgType {
				return decode(f.data, out)
			}
			if f.msgType == TypeError {
				se := &ServerError{}
				_ = json.Unmarshal(f.data, se)
				return se
			}
			c.pending = append(c.pending, f)
		}
	}
}

// Close stops the client. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// GetMetrics returns a snapshot of the client's counters.
func (c *Client) GetMetrics() Metrics {
	return Metrics{
		ConnectLatency:   c.connectLatency,
		MessagesReceived: c.received.Load(),
		MessagesSent:     c.sent.Load(),
		Errors:           c.errs.Load(),
	}
}

func (c *Client) readLoop() {
	defer close(c.inbox)

	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.errs.Add(1)
				c.closeOnce.Do(func() {
					close(c.done)
					_ = c.conn.Close()
				})
			}
			return
		}
		c.received.Add(1)

		var env struct {
			Type         string `json:"type"`
			ConnectionID string `json:"connectionId"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Type {
		case TypeSessionCreated:
			if c.ConnectionID() == "" && env.ConnectionID != "" {
				c.connID.Store(env.ConnectionID)
				close(c.session)
			}
			continue
		case TypePong:
			continue
		}

		select {
		case c.inbox <- frame{msgType: env.Type, data: data}:
		case <-c.done:
			return
		}
	}
}

func decode(data json.RawMessage, out any) error {
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
