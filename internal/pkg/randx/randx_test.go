package randx

import (
	"strings"
	"testing"
	"time"
)

func TestRoomID_Format(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	id, err := RoomID(now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(id, "room_1700000000123_") {
		t.Fatalf("unexpected prefix: %q", id)
	}

	suffix := strings.TrimPrefix(id, "room_1700000000123_")
	if len(suffix) != RoomSuffixLength {
		t.Fatalf("expected %d suffix chars, got %q", RoomSuffixLength, suffix)
	}
	for _, c := range suffix {
		if !strings.ContainsRune(Base62Chars, c) {
			t.Errorf("suffix contains non-base62 char %q", c)
		}
	}
}

func TestRoomID_Unique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, err := RoomID(now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
