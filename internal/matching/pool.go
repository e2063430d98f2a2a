// Package matching pairs users by interest. Pool is the live first-come
// matcher used by the hub; Service answers the persisted best-match and
// embedding-similarity queries behind the REST API.
package matching

import "time"

// WaitingUser is a registered user that has not been paired yet.
type WaitingUser struct {
	UserID       string
	ConnectionID string
	Interests    []string
	JoinedAt     time.Time
}

// Match is the result of a successful registration. Initiator is the user
// whose registration produced the pairing.
type Match struct {
	Initiator       WaitingUser
	Partner         WaitingUser
	CommonInterests []string
}

// Pool holds waiting users in registration order and pairs each new
// registrant with the first waiting user that shares an interest. It is not
// safe for concurrent use; the owner serializes access.
type Pool struct {
	order   []string // user ids, oldest first
	entries map[string]*WaitingUser
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{entries: make(map[string]*WaitingUser)}
}

// Register tries to pair userID with a waiting user. The scan follows
// insertion order and stops at the first overlap, so the result favors
// waiting time over match quality. On a match both users leave the pool.
// Otherwise the user waits; registering an id that is already waiting
// replaces its interests and connection in place.
func (p *Pool) Register(userID, connID string, interests []string, now time.Time) *Match {
	interests = NormalizeInterests(interests)

	if len(interests) > 0 {
		for _, otherID := range p.order {
			if otherID == userID {
				continue
			}
			other := p.entries[otherID]
			common := CommonInterests(interests, other.Interests)
			if len(common) == 0 {
				continue
			}

			partner := *other
			p.remove(otherID)
			p.remove(userID)

			return &Match{
				Initiator: WaitingUser{
					UserID:       userID,
					ConnectionID: connID,
					Interests:    interests,
					JoinedAt:     now,
				},
				Partner:         partner,
				CommonInterests: common,
			}
		}
	}

	if existing, ok := p.entries[userID]; ok {
		existing.ConnectionID = connID
		existing.Interests = interests
		return nil
	}

	p.entries[userID] = &WaitingUser{
		UserID:       userID,
		ConnectionID: connID,
		Interests:    interests,
		JoinedAt:     now,
	}
	p.order = append(p.order, userID)
	return nil
}

// Remove drops userID if it is waiting on connID. A different connection id
// means the entry was superseded and is left alone.
func (p *Pool) Remove(userID, connID string) bool {
	e, ok := p.entries[userID]
	if !ok || e.ConnectionID != connID {
		return false
	}
	p.remove(userID)
	return true
}

func (p *Pool) remove(userID string) {
	if _, ok := p.entries[userID]; !ok {
		return
	}
	delete(p.entries, userID)
	for i, id := range p.order {
		if id == userID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Contains reports whether userID is waiting.
func (p *Pool) Contains(userID string) bool {
	_, ok := p.entries[userID]
	return ok
}

// Len returns the number of waiting users.
func (p *Pool) Len() int {
	return len(p.entries)
}
