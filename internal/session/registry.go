package session

import "time"

// Connection is the registry's view of one live connection.
type Connection struct {
	ID          string
	UserID      string // empty until register-user
	RoomID      string // room currently occupied, empty if none
	RegisterSeq uint64 // bumped on every register-user from this connection
	ConnectedAt time.Time
}

// Registry tracks live connections. It is not safe for concurrent use; the
// owner serializes access.
type Registry struct {
	conns  map[string]*Connection
	byUser map[string]map[string]struct{} // userID -> connection ids
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Connection),
		byUser: make(map[string]map[string]struct{}),
	}
}

// Add registers a connection. Adding an existing id returns the existing
// entry unchanged.
func (r *Registry) Add(id string, now time.Time) *Connection {
	if c, ok := r.conns[id]; ok {
		return c
	}
	c := &Connection{ID: id, ConnectedAt: now}
	r.conns[id] = c
	return c
}

// Get returns the connection or nil.
func (r *Registry) Get(id string) *Connection {
	return r.conns[id]
}

// Remove deletes a connection and returns what was stored, or nil.
func (r *Registry) Remove(id string) *Connection {
	c, ok := r.conns[id]
	if !ok {
		return nil
	}
	delete(r.conns, id)
	r.unbind(c)
	return c
}

// Bind associates the connection with userID and returns the new
// registration sequence number. ok is false for unknown connections.
func (r *Registry) Bind(id, userID string) (seq uint64, ok bool) {
	c, found := r.conns[id]
	if !found {
		return 0, false
	}
	if c.UserID != userID {
		r.unbind(c)
		c.UserID = userID
		set, exists := r.byUser[userID]
		if !exists {
			set = make(map[string]struct{})
			r.byUser[userID] = set
		}
		set[id] = struct{}{}
	}
	c.RegisterSeq++
	return c.RegisterSeq, true
}

func (r *Registry) unbind(c *Connection) {
	if c.UserID == "" {
		return
	}
	if set, ok := r.byUser[c.UserID]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(r.byUser, c.UserID)
		}
	}
}

// Occupy records that the connection sits in roomID.
func (r *Registry) Occupy(id, roomID string) bool {
	c, ok := r.conns[id]
	if !ok {
		return false
	}
	c.RoomID = roomID
	return true
}

// Vacate clears the room reference if it still points at roomID.
func (r *Registry) Vacate(id, roomID string) bool {
	c, ok := r.conns[id]
	if !ok || c.RoomID != roomID {
		return false
	}
	c.RoomID = ""
	return true
}

// UserOnline reports whether any live connection is bound to userID.
func (r *Registry) UserOnline(userID string) bool {
	return len(r.byUser[userID]) > 0
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	return len(r.conns)
}
