package hub

import (
	"context"
	"errors"
	"time"

	"github.com/whisper/matchmaker/internal/messaging"
	"github.com/whisper/matchmaker/internal/metrics"
	"github.com/whisper/matchmaker/internal/pkg/errs"
	"github.com/whisper/matchmaker/internal/protocol"
	"github.com/whisper/matchmaker/internal/room"
)

// JoinRoom seats connID in roomID on behalf of the user it registered as.
// The joiner gets ready-to-connect. When the second side arrives both get
// start-signaling followed by their own ready-to-connect. Anyone else is
// refused with INVALID_ROOM_ACCESS and the room is left untouched.
func (h *Hub) JoinRoom(connID, roomID string) {
	h.mu.Lock()
	c := h.registry.Get(connID)
	if c == nil {
		h.mu.Unlock()
		return
	}
	if c.RoomID != "" && c.RoomID != roomID {
		h.sendError(connID, errs.CodeInvalidRoomAccess)
		h.mu.Unlock()
		return
	}

	now := h.now()
	out, err := h.rooms.Join(roomID, connID, c.UserID, now)
	if err != nil {
		h.sendError(connID, errs.CodeInvalidRoomAccess)
		h.mu.Unlock()
		h.log.Info().Err(err).Str("conn_id", connID).Str("user_id", c.UserID).Str("room_id", roomID).Msg("join refused")
		return
	}
	h.registry.Occupy(connID, roomID)

	r := out.Room
	if !out.Started {
		h.send(connID, protocol.TypeReadyToConnect, protocol.ReadyToConnectMsg{IsInitiator: out.IsInitiator, RoomID: r.ID})
		h.mu.Unlock()
		return
	}

	peers := r.Peers()
	for _, p := range r.Occupants() {
		h.send(p.ConnectionID, protocol.TypeStartSignaling, protocol.StartSignalingMsg{RoomID: r.ID, Peers: peers})
	}
	for _, p := range r.Occupants() {
		h.send(p.ConnectionID, protocol.TypeReadyToConnect, protocol.ReadyToConnectMsg{
			IsInitiator: p.UserID == r.Initiator,
			RoomID:      r.ID,
		})
	}
	ev := roomEvent(messaging.SubjectRoomActive, r, "", now)
	h.mu.Unlock()

	h.log.Info().Str("room_id", r.ID).Strs("peers", peers).Msg("room active")
	h.publish([]pendingEvent{ev})
}

// LeaveRoom closes roomID on request of one of its participants. The other
// side, if it joined, receives peer-left.
func (h *Hub) LeaveRoom(connID, roomID string) {
	h.mu.Lock()
	r, ok := h.rooms.Get(roomID)
	if !ok {
		h.mu.Unlock()
		return
	}
	if !h.mayLeave(connID, r) {
		h.sendError(connID, errs.CodeInvalidRoomAccess)
		h.mu.Unlock()
		return
	}
	events := h.closeRoom(roomID, connID, "leave")
	h.mu.Unlock()

	h.publish(events)
}

// mayLeave allows occupants and the connection still designated for a
// participant that has not joined yet. Callers hold h.mu.
func (h *Hub) mayLeave(connID string, r *room.Room) bool {
	if r.OccupiedBy(connID) {
		return true
	}
	c := h.registry.Get(connID)
	if c == nil || c.UserID == "" {
		return false
	}
	p, ok := r.Participant(c.UserID)
	return ok && p.ConnectionID == connID
}

// closeRoom removes roomID and notifies every joined, still connected
// participant other than exceptConn that its peer left. peerId is the
// connection id of the other participant. Callers hold h.mu.
func (h *Hub) closeRoom(roomID, exceptConn, reason string) []pendingEvent {
	r, ok := h.rooms.Close(roomID)
	if !ok {
		return nil
	}

	for _, p := range r.Participants {
		if p.Joined {
			h.registry.Vacate(p.ConnectionID, roomID)
		}
		if !p.Joined || p.ConnectionID == exceptConn || h.registry.Get(p.ConnectionID) == nil {
			continue
		}
		other, _ := r.Other(p.UserID)
		h.send(p.ConnectionID, protocol.TypePeerLeft, protocol.PeerLeftMsg{PeerID: other.ConnectionID})
	}

	metrics.RoomsClosedTotal.WithLabelValues(reason).Inc()
	h.updateGauges()
	h.log.Info().Str("room_id", roomID).Str("reason", reason).Str("state", r.State.String()).Msg("room closed")

	return []pendingEvent{roomEvent(messaging.SubjectRoomClosed, r, reason, h.now())}
}

// Sweep closes rooms that did not become Active within the join timeout and
// returns how many were closed.
func (h *Hub) Sweep(now time.Time) int {
	h.mu.Lock()
	var events []pendingEvent
	expired := h.rooms.Expired(now, h.cfg.JoinTimeout)
	for _, r := range expired {
		events = append(events, h.closeRoom(r.ID, "", "timeout")...)
	}
	h.mu.Unlock()

	h.publish(events)
	return len(expired)
}

// RunSweeper calls Sweep every SweepInterval until ctx is done.
func (h *Hub) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if n := h.Sweep(h.now()); n > 0 {
				h.log.Info().Int("closed", n).Msg("swept stale rooms")
			}
		}
	}
}
