// Package hub is the live matchmaking engine. It owns the connection
// registry, the waiting pool and the room manager, and applies every inbound
// event to them under a single mutex so that pairing, joining, relaying and
// teardown observe one consistent order.
//
// Outbound frames are handed to a Sender while the mutex is held. The Sender
// must only enqueue (never block on the network) so that each recipient sees
// events in the order the hub produced them.
//
// Work that may block (persisting interests, rate-limit lookups, presence
// updates) runs with the mutex released. Registration re-validates the
// connection afterwards and abandons its mutation if the connection has gone
// away, re-registered or been paired in the meantime.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/whisper/matchmaker/internal/matching"
	"github.com/whisper/matchmaker/internal/messaging"
	"github.com/whisper/matchmaker/internal/metrics"
	"github.com/whisper/matchmaker/internal/pkg/errs"
	"github.com/whisper/matchmaker/internal/pkg/logx"
	"github.com/whisper/matchmaker/internal/protocol"
	"github.com/whisper/matchmaker/internal/ratelimit"
	"github.com/whisper/matchmaker/internal/room"
	"github.com/whisper/matchmaker/internal/session"
)

// Sender delivers an encoded frame to one connection without blocking.
type Sender interface {
	SendMessage(connID string, data []byte) error
}

// Profiles persists interests and presence for registered users.
type Profiles interface {
	SaveInterests(ctx context.Context, userID string, interests []string) error
	SetOnline(ctx context.Context, userID string, online bool) error
}

// Publisher receives room lifecycle events.
type Publisher interface {
	PublishRoomEvent(subject string, ev messaging.RoomEvent) error
}

// Limiter throttles events per connection.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// Config holds hub tuning parameters.
type Config struct {
	PersistTimeout time.Duration // bound on Profiles calls
	JoinTimeout    time.Duration // rooms not Active after this are closed by Sweep
	SweepInterval  time.Duration // how often RunSweeper checks
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PersistTimeout: 3 * time.Second,
		JoinTimeout:    60 * time.Second,
		SweepInterval:  10 * time.Second,
	}
}

// Option configures optional collaborators.
type Option func(*Hub)

// WithProfiles enables interest persistence and presence updates.
func WithProfiles(p Profiles) Option { return func(h *Hub) { h.profiles = p } }

// WithPublisher enables room lifecycle events.
func WithPublisher(p Publisher) Option { return func(h *Hub) { h.publisher = p } }

// WithLimiter enables per-connection rate limits.
func WithLimiter(l Limiter) Option { return func(h *Hub) { h.limiter = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(h *Hub) { h.now = now } }

// Hub is the matchmaking and relay engine.
type Hub struct {
	mu       sync.Mutex
	registry *session.Registry
	pool     *matching.Pool
	rooms    *room.Manager

	sender    Sender
	profiles  Profiles
	publisher Publisher
	limiter   Limiter

	cfg       Config
	now       func() time.Time
	startedAt time.Time
	log       zerolog.Logger
}

// New builds a Hub that writes to sender.
func New(sender Sender, cfg Config, opts ...Option) *Hub {
	def := DefaultConfig()
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = def.JoinTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}

	h := &Hub{
		registry: session.NewRegistry(),
		pool:     matching.NewPool(),
		rooms:    room.NewManager(),
		sender:   sender,
		cfg:      cfg,
		now:      time.Now,
		log:      logx.Component("hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startedAt = h.now()
	return h
}

// Stats is a point-in-time view of the live state.
type Stats struct {
	Connections int           `json:"connections"`
	Waiting     int           `json:"waiting"`
	Rooms       int           `json:"rooms"`
	Uptime      time.Duration `json:"-"`
}

// Stats returns current sizes.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		Connections: h.registry.Count(),
		Waiting:     h.pool.Len(),
		Rooms:       h.rooms.Count(),
		Uptime:      h.now().Sub(h.startedAt),
	}
}

// Connect registers a new transport connection and greets it with its id.
func (h *Hub) Connect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.registry.Add(connID, h.now())
	h.send(connID, protocol.TypeSessionCreated, protocol.SessionCreatedMsg{ConnectionID: connID})
	h.updateGauges()
}

// Disconnect removes every trace of connID: its pool entry if it still owns
// it, and the room it was designated to, whose remaining occupant is told
// the peer left. The user is marked offline once no other connection is bound
// to them.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	c := h.registry.Remove(connID)
	if c == nil {
		h.mu.Unlock()
		return
	}

	var events []pendingEvent
	if c.UserID != "" {
		h.pool.Remove(c.UserID, connID)

		if r, ok := h.rooms.ForUser(c.UserID); ok {
			if p, _ := r.Participant(c.UserID); p.ConnectionID == connID {
				events = append(events, h.closeRoom(r.ID, connID, "disconnect")...)
			}
		}
	}
	offline := c.UserID != "" && !h.registry.UserOnline(c.UserID)
	h.updateGauges()
	h.mu.Unlock()

	h.publish(events)

	h.log.Debug().Str("conn_id", connID).Str("user_id", c.UserID).Msg("connection removed")

	if offline {
		h.setOnline(c.UserID, false)
	}
}

// Handle applies one validated inbound event from connID.
func (h *Hub) Handle(ctx context.Context, connID string, msg protocol.ClientMessage) {
	start := time.Now()
	defer func() { metrics.FrameLatency.Observe(time.Since(start).Seconds()) }()

	switch m := msg.(type) {
	case protocol.RegisterUser:
		h.RegisterUser(ctx, connID, m.UserID, m.Interests)
	case protocol.JoinRoom:
		h.JoinRoom(connID, m.RoomID)
	case protocol.Signal:
		h.Relay(connID, m)
	case protocol.LeaveRoom:
		h.LeaveRoom(connID, m.RoomID)
	case protocol.ChatMessage:
		h.Chat(ctx, connID, m)
	case protocol.Ping:
		h.mu.Lock()
		h.send(connID, protocol.TypePong, protocol.PongMsg{})
		h.mu.Unlock()
	default:
		h.log.Warn().Str("conn_id", connID).Str("type", msg.Type()).Msg("unhandled message type")
	}
}

// send encodes and enqueues one frame. Callers hold h.mu.
func (h *Hub) send(connID, msgType string, payload any) bool {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		h.log.Error().Err(err).Str("type", msgType).Msg("encode server message")
		return false
	}
	if err := h.sender.SendMessage(connID, data); err != nil {
		metrics.DroppedTotal.WithLabelValues("send_failed").Inc()
		h.log.Debug().Err(err).Str("conn_id", connID).Str("type", msgType).Msg("send failed")
		return false
	}
	return true
}

// sendError reports code to connID. Callers hold h.mu.
func (h *Hub) sendError(connID, code string) {
	h.send(connID, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: errs.Message(code)})
}

// updateGauges refreshes the state-size gauges. Callers hold h.mu.
func (h *Hub) updateGauges() {
	metrics.ConnectionsTotal.Set(float64(h.registry.Count()))
	metrics.PoolSize.Set(float64(h.pool.Len()))
	metrics.ActiveRooms.Set(float64(h.rooms.Count()))
}

// allow consults the limiter. Redis failures fail open.
func (h *Hub) allow(ctx context.Context, connID string, rule ratelimit.Rule) bool {
	if h.limiter == nil {
		return true
	}
	ok, err := h.limiter.Allow(ctx, connID, rule)
	if err != nil {
		return true
	}
	return ok
}

func (h *Hub) setOnline(userID string, online bool) {
	if h.profiles == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.PersistTimeout)
	defer cancel()
	if err := h.profiles.SetOnline(ctx, userID, online); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Bool("online", online).Msg("presence update failed")
	}
}

// pendingEvent is a lifecycle event collected under the mutex and published
// after it is released.
type pendingEvent struct {
	subject string
	event   messaging.RoomEvent
}

func (h *Hub) publish(events []pendingEvent) {
	if h.publisher == nil {
		return
	}
	for _, e := range events {
		if err := h.publisher.PublishRoomEvent(e.subject, e.event); err != nil {
			h.log.Warn().Err(err).Str("subject", e.subject).Str("room_id", e.event.RoomID).Msg("publish room event")
		}
	}
}

func roomEvent(subject string, r *room.Room, reason string, now time.Time) pendingEvent {
	return pendingEvent{
		subject: subject,
		event: messaging.RoomEvent{
			RoomID:          r.ID,
			Users:           []string{r.Participants[0].UserID, r.Participants[1].UserID},
			CommonInterests: r.CommonInterests,
			Reason:          reason,
			Timestamp:       now.UnixMilli(),
		},
	}
}
