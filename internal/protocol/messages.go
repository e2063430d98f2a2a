// Package protocol defines the WebSocket events exchanged between clients and
// the matchmaker. Every frame is a JSON object whose "type" field names the
// event; the remaining fields are the event payload.
//
// Inbound events form a closed set: ParseClientMessage returns one of the
// ClientMessage implementations in this package, already validated, or an
// error.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Event names
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

// Server -> Client. Relay events reuse TypeOffer, TypeAnswer, TypeICECandidate
// and TypeChatMessage.
const (
	TypeSessionCreated = "session-created"
	TypeMatchFound     = "match-found"
	TypeReadyToConnect = "ready-to-connect"
	TypeStartSignaling = "start-signaling"
	TypePeerLeft       = "peer-left"
	TypeError          = "error"
	TypePong           = "pong"
)

// ClientTypes lists every inbound event name.
var ClientTypes = []string{
	TypeRegisterUser,
	TypeJoinRoom,
	TypeOffer,
	TypeAnswer,
	TypeICECandidate,
	TypeLeaveRoom,
	TypeChatMessage,
	TypePing,
}

// Field limits enforced at the transport boundary.
const (
	MaxUserIDLen    = 128
	MaxRoomIDLen    = 128
	MaxInterests    = 50
	MaxInterestLen  = 64
	MaxPayloadBytes = 64 << 10
)

// ErrInvalidMessage is wrapped by every validation failure.
var ErrInvalidMessage = errors.New("protocol: invalid message")

// ---------------------------------------------------------------------------
// Client -> Server
// ---------------------------------------------------------------------------

// ClientMessage is implemented only by the inbound event types below.
type ClientMessage interface {
	Type() string
	Validate() error
	clientMessage()
}

// RegisterUser asks to enter the matchmaking pool.
type RegisterUser struct {
	UserID    string   `json:"userId"`
	Interests []string `json:"interests"`
}

// JoinRoom claims a seat in a room returned by match-found.
type JoinRoom struct {
	RoomID string `json:"roomId"`
}

// Signal is an offer, answer or ICE candidate. Payload is forwarded verbatim.
type Signal struct {
	Kind    string          `json:"-"`
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload"`
}

// LeaveRoom ends the session in a room.
type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

// ChatMessage is a text line sent to the other occupant of a room.
// Timestamp is kept as raw JSON so the client's value is forwarded unchanged.
type ChatMessage struct {
	RoomID    string          `json:"roomId"`
	Message   string          `json:"message"`
	Sender    string          `json:"sender"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// Ping is an application-level keepalive.
type Ping struct{}

func (RegisterUser) Type() string { return TypeRegisterUser }
func (JoinRoom) Type() string     { return TypeJoinRoom }
func (s Signal) Type() string     { return s.Kind }
func (LeaveRoom) Type() string    { return TypeLeaveRoom }
func (ChatMessage) Type() string  { return TypeChatMessage }
func (Ping) Type() string         { return TypePing }

func (RegisterUser) clientMessage() {}
func (JoinRoom) clientMessage()     {}
func (Signal) clientMessage()       {}
func (LeaveRoom) clientMessage()    {}
func (ChatMessage) clientMessage()  {}
func (Ping) clientMessage()         {}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, fmt.Sprintf(format, args...))
}

func validateRoomID(id string) error {
	if id == "" {
		return invalid("roomId is required")
	}
	if len(id) > MaxRoomIDLen {
		return invalid("roomId exceeds %d bytes", MaxRoomIDLen)
	}
	return nil
}

// Validate checks the identity and interest list shape. An empty interest
// list is allowed.
func (m RegisterUser) Validate() error {
	if m.UserID == "" {
		return invalid("userId is required")
	}
	if len(m.UserID) > MaxUserIDLen {
		return invalid("userId exceeds %d bytes", MaxUserIDLen)
	}
	if len(m.Interests) > MaxInterests {
		return invalid("at most %d interests allowed", MaxInterests)
	}
	for _, in := range m.Interests {
		if len(in) > MaxInterestLen {
			return invalid("interest %q exceeds %d bytes", in, MaxInterestLen)
		}
	}
	return nil
}

func (m JoinRoom) Validate() error  { return validateRoomID(m.RoomID) }
func (m LeaveRoom) Validate() error { return validateRoomID(m.RoomID) }
func (Ping) Validate() error        { return nil }

// Validate requires a known kind, a room and a non-null payload.
func (m Signal) Validate() error {
	switch m.Kind {
	case TypeOffer, TypeAnswer, TypeICECandidate:
	default:
		return invalid("unknown signal kind %q", m.Kind)
	}
	if err := validateRoomID(m.RoomID); err != nil {
		return err
	}
	if len(m.Payload) == 0 || bytes.Equal(bytes.TrimSpace(m.Payload), []byte("null")) {
		return invalid("%s payload is required", m.Kind)
	}
	if len(m.Payload) > MaxPayloadBytes {
		return invalid("%s payload exceeds %d bytes", m.Kind, MaxPayloadBytes)
	}
	return nil
}

// Validate checks the room id only; text rules belong to the chat relay.
func (m ChatMessage) Validate() error {
	return validateRoomID(m.RoomID)
}

// signalWire accepts both the generic "payload" key and the per-kind keys
// ("offer", "answer", "candidate") used by older clients.
type signalWire struct {
	RoomID    string          `json:"roomId"`
	Payload   json.RawMessage `json:"payload"`
	Offer     json.RawMessage `json:"offer"`
	Answer    json.RawMessage `json:"answer"`
	Candidate json.RawMessage `json:"candidate"`
}

func (w signalWire) toSignal(kind string) Signal {
	s := Signal{Kind: kind, RoomID: w.RoomID, Payload: w.Payload}
	if len(s.Payload) == 0 {
		switch kind {
		case TypeOffer:
			s.Payload = w.Offer
		case TypeAnswer:
			s.Payload = w.Answer
		case TypeICECandidate:
			s.Payload = w.Candidate
		}
	}
	return s
}

// ---------------------------------------------------------------------------
// Server -> Client
// ---------------------------------------------------------------------------

// SessionCreatedMsg tells a new connection its id.
type SessionCreatedMsg struct {
	ConnectionID string `json:"connectionId"`
}

// MatchFoundMsg is sent to both users of a new pairing.
type MatchFoundMsg struct {
	MatchedUserID   string   `json:"matchedUserId"`
	CommonInterests []string `json:"commonInterests"`
	RoomID          string   `json:"roomId"`
}

// ReadyToConnectMsg tells an occupant its role.
type ReadyToConnectMsg struct {
	IsInitiator bool   `json:"isInitiator"`
	RoomID      string `json:"roomId"`
}

// StartSignalingMsg is sent to both occupants when a room becomes active.
// Peers holds the two occupants' connection ids in join order.
type StartSignalingMsg struct {
	RoomID string   `json:"roomId"`
	Peers  []string `json:"peers"`
}

// SignalForwardMsg carries a relayed offer, answer or ICE candidate.
type SignalForwardMsg struct {
	Payload json.RawMessage `json:"payload"`
	From    string          `json:"from"`
}

// PeerLeftMsg reports that the other side left or disconnected.
type PeerLeftMsg struct {
	PeerID string `json:"peerId"`
}

// ChatForwardMsg carries a relayed chat line.
type ChatForwardMsg struct {
	Message   string          `json:"message"`
	Sender    string          `json:"sender"`
	Timestamp json.RawMessage `json:"timestamp"`
	From      string          `json:"from"`
}

// ErrorMsg reports a rejected event to its sender.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg answers a ping.
type PongMsg struct{}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// ParseClientMessage decodes and validates one inbound frame.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: parse envelope: %w", err)
	}
	if env.Type == "" {
		return nil, invalid("missing or empty \"type\" field")
	}

	var (
		msg ClientMessage
		err error
	)

	switch env.Type {
	case TypeRegisterUser:
		var m RegisterUser
		err = json.Unmarshal(data, &m)
		if m.Interests == nil {
			m.Interests = []string{}
		}
		msg = m
	case TypeJoinRoom:
		var m JoinRoom
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeOffer, TypeAnswer, TypeICECandidate:
		var w signalWire
		err = json.Unmarshal(data, &w)
		msg = w.toSignal(env.Type)
	case TypeLeaveRoom:
		var m LeaveRoom
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeChatMessage:
		var m ChatMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePing:
		msg = Ping{}
	default:
		return nil, invalid("unknown client message type %q", env.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: decode %q payload: %v", ErrInvalidMessage, env.Type, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// NewServerMessage encodes payload as a JSON object and prepends the "type"
// field. payload must encode to a JSON object without its own "type" key.
func NewServerMessage(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %q payload: %w", msgType, err)
	}
	if len(raw) < 2 || raw[0] != '{' {
		return nil, fmt.Errorf("protocol: %q payload is not a JSON object", msgType)
	}

	typeField, err := json.Marshal(msgType)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal type: %w", err)
	}

	out := make([]byte, 0, len(raw)+len(typeField)+10)
	out = append(out, `{"type":`...)
	out = append(out, typeField...)
	if rest := bytes.TrimSpace(raw[1:]); len(rest) > 0 && rest[0] != '}' {
		out = append(out, ',')
	}
	out = append(out, raw[1:]...)
	return out, nil
}
