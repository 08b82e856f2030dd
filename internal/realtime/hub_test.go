package realtime

import (
	"encoding/json"
	"testing"

	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}
	return NewHub(log)
}

func TestHubGetScopedToOwner(t *testing.T) {
	hub := newTestHub(t)
	client := hub.NewClient("u1")
	defer hub.Close(client)

	if _, ok := hub.Get(client.ConnectionID, "u1"); !ok {
		t.Fatalf("owner lookup failed")
	}
	if _, ok := hub.Get(client.ConnectionID, "u2"); ok {
		t.Fatalf("another user must not resolve the connection")
	}
	if _, ok := hub.Get("no-such-connection", "u1"); ok {
		t.Fatalf("unknown connection must not resolve")
	}
}

func TestHubCloseUnregistersAndUnblocksSend(t *testing.T) {
	hub := newTestHub(t)
	client := hub.NewClient("u1")
	hub.Close(client)
	hub.Close(client) // double close is safe

	if _, ok := hub.Get(client.ConnectionID, "u1"); ok {
		t.Fatalf("closed connection still resolvable")
	}

	// Fill the buffer, then one more: a closed stream must fail fast
	// instead of blocking the chat worker forever.
	for i := 0; i < cap(client.outbound); i++ {
		select {
		case client.outbound <- Event{Type: EventChatChunk}:
		default:
		}
	}
	if err := client.Send(Event{Type: EventChatChunk}); err == nil {
		t.Fatalf("send on closed connection must error")
	}
}

func TestTransportEventShapes(t *testing.T) {
	hub := newTestHub(t)
	client := hub.NewClient("u1")
	defer hub.Close(client)
	transport := Transport{Client: client}

	if err := transport.SendStart(); err != nil {
		t.Fatalf("SendStart: %v", err)
	}
	if err := transport.SendChunk("partial"); err != nil {
		t.Fatalf("SendChunk: %v", err)
	}
	if err := transport.SendCitations(nil); err != nil {
		t.Fatalf("SendCitations: %v", err)
	}
	if err := transport.SendDone(true); err != nil {
		t.Fatalf("SendDone: %v", err)
	}

	cases := []string{
		`{"type":"chat_start","message":"Start streaming"}`,
		`{"type":"chat_chunk","message":"partial"}`,
		`{"type":"citations","citations":[]}`,
		`{"type":"chat_done","message":"Finished streaming","needs_more_context":true}`,
	}
	for _, want := range cases {
		ev := <-client.outbound
		raw, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(raw) != want {
			t.Fatalf("wire shape mismatch:\nwant %s\ngot  %s", want, raw)
		}
	}
}

func TestTransportDoneCarriesFalse(t *testing.T) {
	hub := newTestHub(t)
	client := hub.NewClient("u1")
	defer hub.Close(client)

	if err := (Transport{Client: client}).SendDone(false); err != nil {
		t.Fatalf("SendDone: %v", err)
	}
	ev := <-client.outbound
	raw, _ := json.Marshal(ev)
	// needs_more_context is a pointer so false still serializes.
	if string(raw) != `{"type":"chat_done","message":"Finished streaming","needs_more_context":false}` {
		t.Fatalf("unexpected wire shape %s", raw)
	}
}
