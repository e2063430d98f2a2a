package matching

import (
	"reflect"
	"testing"
	"time"
)

// ---------- Register ----------

func TestPoolRegister_FirstRegistrantWaits(t *testing.T) {
	p := NewPool()

	if m := p.Register("u1", "c1", []string{"music", "travel"}, time.Now()); m != nil {
		t.Fatalf("expected no match for first registrant, got %+v", m)
	}
	if !p.Contains("u1") || p.Len() != 1 {
		t.Fatal("u1 should be waiting")
	}
}

func TestPoolRegister_ScenarioTravel(t *testing.T) {
	p := NewPool()
	p.Register("u1", "c1", []string{"music", "travel"}, time.Now())

	m := p.Register("u2", "c2", []string{"travel", "art"}, time.Now())
	if m == nil {
		t.Fatal("expected a match")
	}
	if m.Initiator.UserID != "u2" || m.Initiator.ConnectionID != "c2" {
		t.Errorf("initiator should be the second registrant, got %+v", m.Initiator)
	}
	if m.Partner.UserID != "u1" || m.Partner.ConnectionID != "c1" {
		t.Errorf("partner should be u1, got %+v", m.Partner)
	}
	if !reflect.DeepEqual(m.CommonInterests, []string{"travel"}) {
		t.Errorf("expected [travel], got %v", m.CommonInterests)
	}
	if p.Contains("u1") || p.Contains("u2") || p.Len() != 0 {
		t.Fatal("matched users must leave the pool")
	}
}

func TestPoolRegister_CaseFolded(t *testing.T) {
	p := NewPool()
	p.Register("u1", "c1", []string{"Music"}, time.Now())

	m := p.Register("u2", "c2", []string{"MUSIC", "art"}, time.Now())
	if m == nil {
		t.Fatal("expected case-insensitive match")
	}
	if !reflect.DeepEqual(m.CommonInterests, []string{"music"}) {
		t.Errorf("expected [music], got %v", m.CommonInterests)
	}
}

func TestPoolRegister_FirstMatchNotBestMatch(t *testing.T) {
	p := NewPool()
	p.Register("a", "ca", []string{"chess"}, time.Now())
	p.Register("b", "cb", []string{"chess", "go", "poker"}, time.Now())

	m := p.Register("c", "cc", []string{"chess", "go", "poker"}, time.Now())
	if m == nil {
		t.Fatal("expected a match")
	}
	if m.Partner.UserID != "a" {
		t.Fatalf("expected first overlapping entry a, got %s", m.Partner.UserID)
	}
	if !p.Contains("b") {
		t.Fatal("b should still be waiting")
	}
}

func TestPoolRegister_SkipsNonOverlapping(t *testing.T) {
	p := NewPool()
	p.Register("a", "ca", []string{"knitting"}, time.Now())
	p.Register("b", "cb", []string{"travel"}, time.Now())

	m := p.Register("c", "cc", []string{"travel"}, time.Now())
	if m == nil || m.Partner.UserID != "b" {
		t.Fatalf("expected match with b, got %+v", m)
	}
	if !p.Contains("a") {
		t.Fatal("a should still be waiting")
	}
}

func TestPoolRegister_EmptyInterestsNeverMatch(t *testing.T) {
	p := NewPool()
	p.Register("a", "ca", []string{"music"}, time.Now())

	if m := p.Register("b", "cb", nil, time.Now()); m != nil {
		t.Fatalf("empty interest set must not match, got %+v", m)
	}
	if m := p.Register("c", "cc", []string{"music"}, time.Now()); m == nil || m.Partner.UserID != "a" {
		t.Fatalf("expected c to match a, got %+v", m)
	}
	if !p.Contains("b") {
		t.Fatal("b should keep waiting")
	}

	if m := p.Register("d", "cd", []string{"music"}, time.Now()); m != nil {
		t.Fatalf("d must not match the empty-interest user, got %+v", m)
	}
}

func TestPoolRegister_ReRegistrationReplaces(t *testing.T) {
	p := NewPool()
	p.Register("a", "c1", []string{"music"}, time.Now())
	p.Register("b", "cb", []string{"art"}, time.Now())
	p.Register("a", "c2", []string{"sports"}, time.Now())

	if p.Len() != 2 {
		t.Fatalf("re-registration must not duplicate, len=%d", p.Len())
	}
	if m := p.Register("x", "cx", []string{"music"}, time.Now()); m != nil {
		t.Fatal("old interest set should no longer match")
	}
	m := p.Register("y", "cy", []string{"sports"}, time.Now())
	if m == nil || m.Partner.UserID != "a" || m.Partner.ConnectionID != "c2" {
		t.Fatalf("expected y to match a on its new connection, got %+v", m)
	}
	if !reflect.DeepEqual(m.Partner.Interests, []string{"sports"}) {
		t.Fatalf("expected replaced interests, got %v", m.Partner.Interests)
	}
}

func TestPoolRegister_NeverMatchesSelf(t *testing.T) {
	p := NewPool()
	p.Register("a", "c1", []string{"music"}, time.Now())

	if m := p.Register("a", "c2", []string{"music"}, time.Now()); m != nil {
		t.Fatalf("user matched with itself: %+v", m)
	}
}

func TestPoolRegister_AfterMatchCreatesFreshEntry(t *testing.T) {
	p := NewPool()
	p.Register("a", "ca", []string{"music"}, time.Now())
	p.Register("b", "cb", []string{"music"}, time.Now())

	if m := p.Register("a", "ca", []string{"music"}, time.Now()); m != nil {
		t.Fatalf("pool should be empty after the match, got %+v", m)
	}
	if p.Len() != 1 {
		t.Fatalf("expected one fresh entry, got %d", p.Len())
	}
}

// ---------- Remove ----------

func TestPoolRemove_OnlyOwningConnection(t *testing.T) {
	p := NewPool()
	p.Register("a", "c1", []string{"music"}, time.Now())
	p.Register("a", "c2", []string{"music"}, time.Now())

	if p.Remove("a", "c1") {
		t.Fatal("stale connection must not remove the superseded entry")
	}
	if !p.Remove("a", "c2") {
		t.Fatal("owning connection should remove the entry")
	}
	if p.Remove("a", "c2") {
		t.Fatal("second remove should be a no-op")
	}
}

func TestPoolRemove_KeepsOrder(t *testing.T) {
	p := NewPool()
	p.Register("a", "c1", []string{"music"}, time.Now())
	p.Register("b", "c2", []string{"art"}, time.Now())

	if !p.Remove("a", "c1") {
		t.Fatal("expected a to be removed")
	}
	if p.Contains("a") || p.Len() != 1 {
		t.Fatalf("unexpected pool after remove: len=%d", p.Len())
	}
	if m := p.Register("c", "c3", []string{"art"}, time.Now()); m == nil || m.Partner.UserID != "b" {
		t.Fatalf("order bookkeeping broken, got %+v", m)
	}
}
