package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing register-user
// ---------------------------------------------------------------------------

func TestParseClientMessage_RegisterUser(t *testing.T) {
	input := []byte(`{"type":"register-user","userId":"u1","interests":["Music","travel"]}`)

	msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Type() != TypeRegisterUser {
		t.Fatalf("expected type %q, got %q", TypeRegisterUser, msg.Type())
	}

	ru, ok := msg.(RegisterUser)
	if !ok {
		t.Fatalf("expected RegisterUser, got %T", msg)
	}
	if ru.UserID != "u1" {
		t.Errorf("expected userId u1, got %q", ru.UserID)
	}
	if len(ru.Interests) != 2 || ru.Interests[0] != "Music" {
		t.Errorf("unexpected interests: %v", ru.Interests)
	}
}

func TestParseClientMessage_RegisterUserMissingInterests(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"register-user","userId":"u1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ru := msg.(RegisterUser)
	if ru.Interests == nil || len(ru.Interests) != 0 {
		t.Fatalf("expected empty non-nil interests, got %#v", ru.Interests)
	}
}

func TestParseClientMessage_RegisterUserRequiresUserID(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"register-user","interests":["a"]}`))
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestParseClientMessage_InterestsWrongShape(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"register-user","userId":"u1","interests":"music"}`))
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Test: Signals
// ---------------------------------------------------------------------------

func TestParseClientMessage_OfferWithPayload(t *testing.T) {
	input := []byte(`{"type":"offer","roomId":"room_1","payload":{"type":"offer","sdp":"v=0"}}`)

	msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig, ok := msg.(Signal)
	if !ok {
		t.Fatalf("expected Signal, got %T", msg)
	}
	if sig.Kind != TypeOffer || sig.Type() != TypeOffer {
		t.Errorf("expected kind offer, got %q", sig.Kind)
	}
	if string(sig.Payload) != `{"type":"offer","sdp":"v=0"}` {
		t.Errorf("payload not preserved verbatim: %s", sig.Payload)
	}
}

func TestParseClientMessage_LegacySignalKeys(t *testing.T) {
	cases := map[string]string{
		`{"type":"offer","roomId":"r","offer":{"sdp":"a"}}`:             `{"sdp":"a"}`,
		`{"type":"answer","roomId":"r","answer":{"sdp":"b"}}`:           `{"sdp":"b"}`,
		`{"type":"ice-candidate","roomId":"r","candidate":{"c":"x"}}`:    `{"c":"x"}`,
		`{"type":"ice-candidate","roomId":"r","payload":1,"candidate":2}`: `1`,
	}

	for input, want := range cases {
		msg, err := ParseClientMessage([]byte(input))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", input, err)
		}
		if got := string(msg.(Signal).Payload); got != want {
			t.Errorf("%s: expected payload %s, got %s", input, want, got)
		}
	}
}

func TestParseClientMessage_SignalRequiresPayloadAndRoom(t *testing.T) {
	bad := []string{
		`{"type":"offer","roomId":"r"}`,
		`{"type":"offer","roomId":"r","payload":null}`,
		`{"type":"answer","payload":{"sdp":"x"}}`,
	}
	for _, input := range bad {
		if _, err := ParseClientMessage([]byte(input)); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("%s: expected ErrInvalidMessage, got %v", input, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: Chat, rooms, ping
// ---------------------------------------------------------------------------

func TestParseClientMessage_ChatMessage(t *testing.T) {
	input := []byte(`{"type":"chat-message","roomId":"room_1","message":"hi","sender":"Ann","timestamp":1700000000000}`)

	msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cm := msg.(ChatMessage)
	if cm.Message != "hi" || cm.Sender != "Ann" || cm.RoomID != "room_1" {
		t.Errorf("unexpected chat message: %+v", cm)
	}
	if string(cm.Timestamp) != "1700000000000" {
		t.Errorf("timestamp not preserved: %s", cm.Timestamp)
	}
}

func TestParseClientMessage_JoinAndLeaveRequireRoom(t *testing.T) {
	for _, input := range []string{`{"type":"join-room"}`, `{"type":"leave-room","roomId":""}`} {
		if _, err := ParseClientMessage([]byte(input)); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("%s: expected ErrInvalidMessage, got %v", input, err)
		}
	}

	msg, err := ParseClientMessage([]byte(`{"type":"join-room","roomId":"room_9"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.(JoinRoom).RoomID != "room_9" {
		t.Errorf("unexpected room id")
	}
}

func TestParseClientMessage_Ping(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := msg.(Ping); !ok {
		t.Fatalf("expected Ping, got %T", msg)
	}
}

// ---------------------------------------------------------------------------
// Test: Rejections
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"match-found"}`))
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for server-only type, got %v", err)
	}
}

func TestParseClientMessage_MissingType(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"roomId":"r"}`)); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestParseClientMessage_InvalidJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

// ---------------------------------------------------------------------------
// Test: Server messages
// ---------------------------------------------------------------------------

func TestNewServerMessage_MatchFound(t *testing.T) {
	data, err := NewServerMessage(TypeMatchFound, MatchFoundMsg{
		MatchedUserID:   "u1",
		CommonInterests: []string{"travel"},
		RoomID:          "room_1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v (%s)", err, data)
	}
	if decoded["type"] != TypeMatchFound {
		t.Errorf("expected type %q, got %v", TypeMatchFound, decoded["type"])
	}
	if decoded["matchedUserId"] != "u1" || decoded["roomId"] != "room_1" {
		t.Errorf("unexpected fields: %v", decoded)
	}
}

func TestNewServerMessage_EmptyPayload(t *testing.T) {
	data, err := NewServerMessage(TypePong, PongMsg{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"type":"pong"}` {
		t.Fatalf("unexpected output: %s", data)
	}
}

func TestNewServerMessage_PreservesRawPayload(t *testing.T) {
	data, err := NewServerMessage(TypeChatMessage, ChatForwardMsg{
		Message:   "hi",
		Sender:    "Ann",
		Timestamp: json.RawMessage("1700000000000"),
		From:      "c1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"type":"chat-message","message":"hi","sender":"Ann","timestamp":1700000000000,"from":"c1"}`
	if string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}
}

func TestNewServerMessage_RejectsNonObject(t *testing.T) {
	if _, err := NewServerMessage(TypeError, []string{"x"}); err == nil {
		t.Fatal("expected error for non-object payload")
	}
}
