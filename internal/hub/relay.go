package hub

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/whisper/matchmaker/internal/chat"
	"github.com/whisper/matchmaker/internal/metrics"
	"github.com/whisper/matchmaker/internal/pkg/errs"
	"github.com/whisper/matchmaker/internal/protocol"
	"github.com/whisper/matchmaker/internal/ratelimit"
	"github.com/whisper/matchmaker/internal/room"
)

// Relay forwards an offer, answer or ICE candidate to the other occupant of
// the room, tagged with the sender's connection id. A sender that does not
// occupy the room is ignored. If the other side has not joined or is gone the
// payload is dropped; there is no buffering.
func (h *Hub) Relay(connID string, sig protocol.Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	peer, ok := h.peerLocked(connID, sig.RoomID)
	if !ok {
		return
	}

	if h.send(peer, sig.Kind, protocol.SignalForwardMsg{Payload: sig.Payload, From: connID}) {
		metrics.RelayedTotal.WithLabelValues(sig.Kind).Inc()
	}
}

// Chat forwards a text line to the other occupant when the sender's recorded
// room is roomId. Mismatches are dropped silently, before the text policy is
// applied, so an outsider never gets feedback. A missing timestamp is
// filled with the server's unix-millis clock.
func (h *Hub) Chat(ctx context.Context, connID string, msg protocol.ChatMessage) {
	if !h.allow(ctx, connID, ratelimit.RuleChat) {
		metrics.DroppedTotal.WithLabelValues("rate_limited").Inc()
		h.mu.Lock()
		h.sendError(connID, errs.CodeRateLimited)
		h.mu.Unlock()
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	c := h.registry.Get(connID)
	if c == nil || c.RoomID == "" || c.RoomID != msg.RoomID {
		metrics.DroppedTotal.WithLabelValues("invalid_room_access").Inc()
		return
	}
	if err := chat.ValidateMessage(msg.Message); err != nil {
		h.rejectChatLocked(connID, err)
		return
	}
	if err := chat.ValidateSender(msg.Sender); err != nil {
		h.rejectChatLocked(connID, err)
		return
	}
	peer, ok := h.peerLocked(connID, msg.RoomID)
	if !ok {
		return
	}

	ts := msg.Timestamp
	if len(ts) == 0 {
		ts = json.RawMessage(strconv.FormatInt(h.now().UnixMilli(), 10))
	}

	if h.send(peer, protocol.TypeChatMessage, protocol.ChatForwardMsg{
		Message:   msg.Message,
		Sender:    msg.Sender,
		Timestamp: ts,
		From:      connID,
	}) {
		metrics.RelayedTotal.WithLabelValues(protocol.TypeChatMessage).Inc()
	}
}

// rejectChatLocked answers a policy failure. Callers hold h.mu.
func (h *Hub) rejectChatLocked(connID string, err error) {
	metrics.DroppedTotal.WithLabelValues("invalid_message").Inc()
	h.log.Debug().Err(err).Str("conn_id", connID).Msg("chat message rejected")
	h.sendError(connID, errs.CodeInvalidParams)
}

// peerLocked resolves the connection of the other occupant of roomID as seen
// from connID. It records the drop reason when there is none. Callers hold
// h.mu.
func (h *Hub) peerLocked(connID, roomID string) (string, bool) {
	r, ok := h.rooms.Get(roomID)
	if !ok || !r.OccupiedBy(connID) {
		metrics.DroppedTotal.WithLabelValues("invalid_room_access").Inc()
		h.log.Debug().Str("conn_id", connID).Str("room_id", roomID).Str("code", errs.CodeInvalidRoomAccess).Msg("relay dropped")
		return "", false
	}

	other, ok := otherOccupant(r, connID)
	if !ok || h.registry.Get(other.ConnectionID) == nil {
		metrics.DroppedTotal.WithLabelValues("peer_unavailable").Inc()
		h.log.Debug().Str("conn_id", connID).Str("room_id", roomID).Str("code", errs.CodePeerUnavailable).Msg("relay dropped")
		return "", false
	}
	return other.ConnectionID, true
}

func otherOccupant(r *room.Room, connID string) (room.Participant, bool) {
	for _, p := range r.Participants {
		if p.ConnectionID != connID {
			return p, p.Joined
		}
	}
	return room.Participant{}, false
}
