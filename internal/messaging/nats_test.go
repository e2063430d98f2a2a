package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func newTestClient(t *testing.T) (*NATSClient, *nats.Conn) {
	t.Helper()
	cfg := DefaultNATSConfig()
	cfg.MaxReconnects = 0

	client, err := NewNATSClient(cfg)
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}
	sub, err := nats.Connect(cfg.URL)
	if err != nil {
		client.Close()
		t.Skipf("nats not available: %v", err)
	}
	t.Cleanup(func() {
		sub.Close()
		client.Close()
	})
	return client, sub
}

func TestPublishRoomEvent(t *testing.T) {
	client, conn := newTestClient(t)

	ch := make(chan *nats.Msg, 1)
	s, err := conn.ChanSubscribe(SubjectRoomCreated, ch)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer s.Unsubscribe()
	if err := conn.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	want := RoomEvent{RoomID: "room_1_abc", Users: []string{"u2", "u1"}, CommonInterests: []string{"travel"}, Timestamp: 1}
	if err := client.PublishRoomEvent(SubjectRoomCreated, want); err != nil {
		t.Fatalf("PublishRoomEvent() error: %v", err)
	}

	select {
	case msg := <-ch:
		var got RoomEvent
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.RoomID != want.RoomID || len(got.Users) != 2 || got.CommonInterests[0] != "travel" {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRoomEvent_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(RoomEvent{RoomID: "r", Users: []string{"a"}, Timestamp: 5})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"roomId":"r","users":["a"],"timestamp":5}` {
		t.Fatalf("unexpected encoding %s", data)
	}
}
