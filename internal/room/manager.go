package room

import (
	"fmt"
	"sort"
	"time"

	"github.com/whisper/matchmaker/internal/pkg/randx"
)

const maxIDAttempts = 5

// JoinOutcome describes the effect of a successful Join.
type JoinOutcome struct {
	Room *Room
	// IsInitiator is true for the user whose registration created the room.
	IsInitiator bool
	// Started is true when this join made the room Active.
	Started bool
	// AlreadyJoined is true when the same connection joined twice.
	AlreadyJoined bool
}

// Manager owns all open rooms. It is not safe for concurrent use; the owner
// serializes access. Returned rooms are snapshots.
type Manager struct {
	rooms  map[string]*Room
	byUser map[string]string
	newID  func(time.Time) (string, error)
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{
		rooms:  make(map[string]*Room),
		byUser: make(map[string]string),
		newID:  randx.RoomID,
	}
}

// Create opens a room for a freshly paired couple. initiator is the user whose
// registration produced the pairing. Neither user may already be in a room.
func (m *Manager) Create(initiator, partner Participant, common []string, now time.Time) (*Room, error) {
	for _, uid := range []string{initiator.UserID, partner.UserID} {
		if _, ok := m.byUser[uid]; ok {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyPaired, uid)
		}
	}

	id, err := m.uniqueID(now)
	if err != nil {
		return nil, err
	}

	initiator.Joined, partner.Joined = false, false
	r := &Room{
		ID:              id,
		Participants:    [2]Participant{initiator, partner},
		CommonInterests: append([]string(nil), common...),
		Initiator:       initiator.UserID,
		State:           StateEmpty,
		CreatedAt:       now,
	}
	m.rooms[id] = r
	m.byUser[initiator.UserID] = id
	m.byUser[partner.UserID] = id
	return r.snapshot(), nil
}

func (m *Manager) uniqueID(now time.Time) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id, err := m.newID(now)
		if err != nil {
			return "", fmt.Errorf("room: generate id: %w", err)
		}
		if _, taken := m.rooms[id]; !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("room: could not generate a unique id after %d attempts", maxIDAttempts)
}

// Join seats connID as userID's side of the room. The second distinct join
// makes the room Active. Joining again from the same connection is a no-op
// reported through AlreadyJoined. No state changes on error.
func (m *Manager) Join(roomID, connID, userID string, now time.Time) (JoinOutcome, error) {
	r, ok := m.rooms[roomID]
	if !ok {
		return JoinOutcome{}, ErrRoomNotFound
	}
	i := r.slot(userID)
	if i < 0 || userID == "" {
		return JoinOutcome{}, ErrNotParticipant
	}

	p := &r.Participants[i]
	if p.Joined {
		if p.ConnectionID != connID {
			return JoinOutcome{}, ErrRoomFull
		}
		return JoinOutcome{Room: r.snapshot(), IsInitiator: userID == r.Initiator, AlreadyJoined: true}, nil
	}

	p.Joined = true
	p.ConnectionID = connID
	p.JoinedAt = now
	r.joinOrder = append(r.joinOrder, i)

	out := JoinOutcome{IsInitiator: userID == r.Initiator}
	if len(r.joinOrder) == len(r.Participants) {
		r.State = StateActive
		out.Started = true
	} else {
		r.State = StateFilling
	}
	out.Room = r.snapshot()
	return out, nil
}

// Close removes the room and returns its final snapshot.
func (m *Manager) Close(roomID string) (*Room, bool) {
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, false
	}
	delete(m.rooms, roomID)
	for _, p := range r.Participants {
		if m.byUser[p.UserID] == roomID {
			delete(m.byUser, p.UserID)
		}
	}
	r.State = StateClosed
	return r.snapshot(), true
}

// Get returns a snapshot of the room.
func (m *Manager) Get(roomID string) (*Room, bool) {
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, false
	}
	return r.snapshot(), true
}

// ForUser returns the room userID is designated to.
func (m *Manager) ForUser(userID string) (*Room, bool) {
	id, ok := m.byUser[userID]
	if !ok {
		return nil, false
	}
	return m.Get(id)
}

// Expired returns rooms that are still not Active maxAge after creation,
// oldest first.
func (m *Manager) Expired(now time.Time, maxAge time.Duration) []*Room {
	var out []*Room
	for _, r := range m.rooms {
		if r.State != StateActive && now.Sub(r.CreatedAt) >= maxAge {
			out = append(out, r.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Count returns the number of open rooms.
func (m *Manager) Count() int {
	return len(m.rooms)
}
