package session

import (
	"testing"
	"time"
)

func TestRegistry_AddGetRemove(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	c := r.Add("c1", now)
	if c.ID != "c1" || !c.ConnectedAt.Equal(now) {
		t.Fatalf("unexpected connection: %+v", c)
	}
	if r.Add("c1", now.Add(time.Second)) != c {
		t.Fatal("re-adding must return the existing entry")
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 connection, got %d", r.Count())
	}

	if got := r.Remove("c1"); got != c {
		t.Fatal("Remove should return the stored connection")
	}
	if r.Get("c1") != nil {
		t.Fatal("connection still present after Remove")
	}
	if r.Remove("c1") != nil {
		t.Fatal("second Remove should return nil")
	}
}

func TestRegistry_BindBumpsSequence(t *testing.T) {
	r := NewRegistry()
	r.Add("c1", time.Now())

	s1, ok := r.Bind("c1", "u1")
	if !ok || s1 != 1 {
		t.Fatalf("expected seq 1, got %d ok=%v", s1, ok)
	}
	s2, _ := r.Bind("c1", "u1")
	if s2 != 2 {
		t.Fatalf("expected seq 2, got %d", s2)
	}
	if _, ok := r.Bind("missing", "u1"); ok {
		t.Fatal("Bind on unknown connection should fail")
	}
}

func TestRegistry_UserOnlineTracksAllConnections(t *testing.T) {
	r := NewRegistry()
	r.Add("c1", time.Now())
	r.Add("c2", time.Now())
	r.Bind("c1", "u1")
	r.Bind("c2", "u1")

	r.Remove("c1")
	if !r.UserOnline("u1") {
		t.Fatal("u1 still has c2")
	}
	r.Bind("c2", "u2")
	if r.UserOnline("u1") {
		t.Fatal("u1 should be offline after c2 rebinds")
	}
	if !r.UserOnline("u2") {
		t.Fatal("u2 should be online")
	}
}

func TestRegistry_OccupyVacate(t *testing.T) {
	r := NewRegistry()
	r.Add("c1", time.Now())

	if !r.Occupy("c1", "room_a") {
		t.Fatal("Occupy failed")
	}
	if r.Vacate("c1", "room_b") {
		t.Fatal("Vacate with a different room must not clear")
	}
	if r.Get("c1").RoomID != "room_a" {
		t.Fatal("room reference lost")
	}
	if !r.Vacate("c1", "room_a") {
		t.Fatal("Vacate failed")
	}
	if r.Get("c1").RoomID != "" {
		t.Fatal("room reference not cleared")
	}
}
