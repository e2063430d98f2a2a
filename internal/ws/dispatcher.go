package ws

import (
	"github.com/rs/zerolog"

	"github.com/whisper/matchmaker/internal/pkg/errs"
	"github.com/whisper/matchmaker/internal/pkg/logx"
	"github.com/whisper/matchmaker/internal/protocol"
)

// MessageHandler is the callback signature for a parsed, validated client
// message.
type MessageHandler func(conn *Connection, msg protocol.ClientMessage)

// MessageDispatcher routes incoming WebSocket messages to registered handlers
// based on the message type. It answers ping itself and sends structured
// error responses for malformed or unsupported messages.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	server   *Server
	log      zerolog.Logger
}

// NewMessageDispatcher creates a MessageDispatcher bound to the given server.
// The server reference is used to send responses back to clients.
func NewMessageDispatcher(server *Server) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		server:   server,
		log:      logx.Component("dispatcher"),
	}
}

// SetServer assigns the Server reference on the dispatcher. This supports the
// initialization pattern where the dispatcher is created before the server
// (since NewServer requires the Dispatch callback).
func (d *MessageDispatcher) SetServer(server *Server) {
	d.server = server
}

// Register associates a MessageHandler with a message type. If a handler was
// already registered for the given type, it is silently replaced.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the onMessage callback implementation.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		d.log.Debug().Err(err).Str("conn_id", conn.ID).Msg("dispatch parse error")
		d.sendError(conn, errs.CodeInvalidParams, err.Error())
		return
	}

	if _, ok := msg.(protocol.Ping); ok {
		d.sendPong(conn)
		return
	}

	handler, ok := d.handlers[msg.Type()]
	if !ok {
		d.log.Warn().Str("type", msg.Type()).Str("conn_id", conn.ID).Msg("unsupported message type")
		d.sendError(conn, errs.CodeInvalidParams, "unsupported message type")
		return
	}

	handler(conn, msg)
}

func (d *MessageDispatcher) sendError(conn *Connection, code string, message string) {
	d.send(conn, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}

func (d *MessageDispatcher) sendPong(conn *Connection) {
	d.send(conn, protocol.TypePong, protocol.PongMsg{})
}

func (d *MessageDispatcher) send(conn *Connection, msgType string, payload any) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		d.log.Error().Err(err).Str("type", msgType).Msg("failed to build message")
		return
	}
	if d.server != nil {
		err = d.server.SendMessage(conn.ID, data)
	} else {
		err = conn.Enqueue(data)
	}
	if err != nil {
		d.log.Debug().Err(err).Str("type", msgType).Str("conn_id", conn.ID).Msg("send failed")
	}
}
