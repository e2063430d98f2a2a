package hub

import (
	"context"

	"github.com/whisper/matchmaker/internal/matching"
	"github.com/whisper/matchmaker/internal/messaging"
	"github.com/whisper/matchmaker/internal/metrics"
	"github.com/whisper/matchmaker/internal/pkg/errs"
	"github.com/whisper/matchmaker/internal/protocol"
	"github.com/whisper/matchmaker/internal/ratelimit"
	"github.com/whisper/matchmaker/internal/room"
)

// RegisterUser binds connID to userID and enters the pool. If a waiting user
// shares an interest the two are paired at once: a room is created and both
// receive match-found, the new registrant being the initiator.
func (h *Hub) RegisterUser(ctx context.Context, connID, userID string, interests []string) {
	if !h.allow(ctx, connID, ratelimit.RuleRegister) {
		metrics.DroppedTotal.WithLabelValues("rate_limited").Inc()
		h.mu.Lock()
		h.sendError(connID, errs.CodeRateLimited)
		h.mu.Unlock()
		return
	}

	interests = matching.NormalizeInterests(interests)

	h.mu.Lock()
	c := h.registry.Get(connID)
	if c == nil {
		h.mu.Unlock()
		return
	}
	if h.pairedLocked(connID, userID) {
		h.sendError(connID, errs.CodeAlreadyPaired)
		h.mu.Unlock()
		return
	}
	if c.UserID != "" && c.UserID != userID {
		// The connection switches identity; its old pool entry goes.
		h.pool.Remove(c.UserID, connID)
	}
	seq, _ := h.registry.Bind(connID, userID)
	h.mu.Unlock()

	if h.profiles != nil {
		pctx, cancel := context.WithTimeout(ctx, h.cfg.PersistTimeout)
		err := h.profiles.SaveInterests(pctx, userID, interests)
		cancel()
		if err != nil {
			h.log.Warn().Err(err).Str("user_id", userID).Msg("interests not persisted, pairing continues")
		}
	}

	h.mu.Lock()
	c = h.registry.Get(connID)
	if c == nil || c.UserID != userID || c.RegisterSeq != seq {
		// The save marked userID online; undo that if nothing holds them now.
		offline := h.profiles != nil && !h.registry.UserOnline(userID)
		h.mu.Unlock()
		h.log.Debug().Str("conn_id", connID).Str("user_id", userID).Msg("registration superseded")
		if offline {
			h.setOnline(userID, false)
		}
		return
	}
	if h.pairedLocked(connID, userID) {
		h.sendError(connID, errs.CodeAlreadyPaired)
		h.mu.Unlock()
		return
	}

	now := h.now()
	match := h.pool.Register(userID, connID, interests, now)
	if match == nil {
		h.updateGauges()
		h.mu.Unlock()
		h.log.Debug().Str("user_id", userID).Int("interests", len(interests)).Msg("waiting for a match")
		return
	}

	r, err := h.rooms.Create(
		room.Participant{UserID: match.Initiator.UserID, ConnectionID: match.Initiator.ConnectionID},
		room.Participant{UserID: match.Partner.UserID, ConnectionID: match.Partner.ConnectionID},
		match.CommonInterests,
		now,
	)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Str("partner_id", match.Partner.UserID).Msg("create room")
		h.sendError(match.Initiator.ConnectionID, errs.CodeInternal)
		h.sendError(match.Partner.ConnectionID, errs.CodeInternal)
		h.updateGauges()
		h.mu.Unlock()
		return
	}

	h.send(match.Initiator.ConnectionID, protocol.TypeMatchFound, protocol.MatchFoundMsg{
		MatchedUserID:   match.Partner.UserID,
		CommonInterests: r.CommonInterests,
		RoomID:          r.ID,
	})
	h.send(match.Partner.ConnectionID, protocol.TypeMatchFound, protocol.MatchFoundMsg{
		MatchedUserID:   match.Initiator.UserID,
		CommonInterests: r.CommonInterests,
		RoomID:          r.ID,
	})

	metrics.MatchesTotal.Inc()
	metrics.MatchWait.Observe(now.Sub(match.Partner.JoinedAt).Seconds())
	h.updateGauges()
	ev := roomEvent(messaging.SubjectRoomCreated, r, "", now)
	h.mu.Unlock()

	h.log.Info().
		Str("room_id", r.ID).
		Str("initiator", match.Initiator.UserID).
		Str("partner", match.Partner.UserID).
		Strs("common", r.CommonInterests).
		Msg("users paired")

	h.publish([]pendingEvent{ev})
}

// pairedLocked reports whether userID already has a room, or connID is still
// designated to or sitting in one. Callers hold h.mu.
func (h *Hub) pairedLocked(connID, userID string) bool {
	if _, ok := h.rooms.ForUser(userID); ok {
		return true
	}
	c := h.registry.Get(connID)
	if c == nil {
		return false
	}
	if c.RoomID != "" {
		return true
	}
	if c.UserID != "" {
		if r, ok := h.rooms.ForUser(c.UserID); ok {
			if p, _ := r.Participant(c.UserID); p.ConnectionID == connID {
				return true
			}
		}
	}
	return false
}
