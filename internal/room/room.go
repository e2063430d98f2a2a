// Package room tracks the ephemeral two-party sessions created when the pool
// pairs two users. A room moves Empty -> Filling -> Active as its designated
// participants join, and is removed as soon as either side leaves.
package room

import (
	"errors"
	"time"
)

var (
	ErrRoomNotFound   = errors.New("room: not found")
	ErrNotParticipant = errors.New("room: user is not a participant")
	ErrRoomFull       = errors.New("room: slot already taken by another connection")
	ErrAlreadyPaired  = errors.New("room: user already belongs to a room")
)

// State is the lifecycle position of a room.
type State int

const (
	StateEmpty State = iota
	StateFilling
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateFilling:
		return "filling"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Participant is one of the two designated users of a room. ConnectionID is
// the connection that registered the user, replaced by the joining
// connection once Joined is set.
type Participant struct {
	UserID       string
	ConnectionID string
	Joined       bool
	JoinedAt     time.Time
}

// Room is a pairing of exactly two users.
type Room struct {
	ID              string
	Participants    [2]Participant
	CommonInterests []string
	Initiator       string
	State           State
	CreatedAt       time.Time

	joinOrder []int
}

// slot returns the participant index of userID, or -1.
func (r *Room) slot(userID string) int {
	for i := range r.Participants {
		if r.Participants[i].UserID == userID {
			return i
		}
	}
	return -1
}

// Participant returns the designated participant for userID.
func (r *Room) Participant(userID string) (Participant, bool) {
	i := r.slot(userID)
	if i < 0 {
		return Participant{}, false
	}
	return r.Participants[i], true
}

// Other returns the participant that is not userID.
func (r *Room) Other(userID string) (Participant, bool) {
	i := r.slot(userID)
	if i < 0 {
		return Participant{}, false
	}
	return r.Participants[1-i], true
}

// OccupiedBy reports whether connID has joined the room.
func (r *Room) OccupiedBy(connID string) bool {
	for _, p := range r.Participants {
		if p.Joined && p.ConnectionID == connID {
			return true
		}
	}
	return false
}

// Occupants returns the joined participants in join order.
func (r *Room) Occupants() []Participant {
	out := make([]Participant, 0, len(r.joinOrder))
	for _, i := range r.joinOrder {
		out = append(out, r.Participants[i])
	}
	return out
}

// Peers returns the connection ids of the joined participants in join order.
func (r *Room) Peers() []string {
	out := make([]string, 0, len(r.joinOrder))
	for _, i := range r.joinOrder {
		out = append(out, r.Participants[i].ConnectionID)
	}
	return out
}

// snapshot returns a copy that does not alias the manager's state.
func (r *Room) snapshot() *Room {
	cp := *r
	cp.CommonInterests = append([]string(nil), r.CommonInterests...)
	cp.joinOrder = append([]int(nil), r.joinOrder...)
	return &cp
}
