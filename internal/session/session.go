// Package session is the connection registry: it maps each live WebSocket
// connection to the user identity it registered and the room it currently
// occupies. The registry lives in memory only and is rebuilt from nothing
// when the process restarts.
package session
