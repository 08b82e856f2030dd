package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davenfroberg/gpta-backend/internal/chat"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

// Event is one typed chat message on the wire. The shape matches what the
// web client's stream reader expects.
type Event struct {
	Type             string          `json:"type"`
	Message          string          `json:"message,omitempty"`
	Citations        []chat.Citation `json:"citations,omitempty"`
	NeedsMoreContext *bool           `json:"needs_more_context,omitempty"`
}

const (
	EventProgress  = "progress_update"
	EventChatStart = "chat_start"
	EventChatChunk = "chat_chunk"
	EventCitations = "citations"
	EventChatDone  = "chat_done"
)

// Client is one open SSE stream. ConnectionID is handed back to the caller
// so a chat POST can address the stream it should answer on.
type Client struct {
	ConnectionID string
	UserID       string
	outbound     chan Event
	done         chan struct{}
	closeOnce    sync.Once
}

// Send queues one event, blocking until the stream drains it or closes.
func (c *Client) Send(ev Event) error {
	select {
	case c.outbound <- ev:
		return nil
	case <-c.done:
		return fmt.Errorf("connection %s closed", c.ConnectionID)
	}
}

// Transport adapts a Client to the chat service's event surface.
type Transport struct {
	Client *Client
}

func (t Transport) SendProgress(message string) error {
	return t.Client.Send(Event{Type: EventProgress, Message: message})
}

func (t Transport) SendStart() error {
	return t.Client.Send(Event{Type: EventChatStart, Message: "Start streaming"})
}

func (t Transport) SendChunk(message string) error {
	return t.Client.Send(Event{Type: EventChatChunk, Message: message})
}

func (t Transport) SendCitations(citations []chat.Citation) error {
	if citations == nil {
		citations = []chat.Citation{}
	}
	return t.Client.Send(Event{Type: EventCitations, Citations: citations})
}

func (t Transport) SendDone(needsMoreContext bool) error {
	return t.Client.Send(Event{Type: EventChatDone, Message: "Finished streaming", NeedsMoreContext: &needsMoreContext})
}

var _ chat.Transport = Transport{}

// Hub tracks open chat streams by connection id.
type Hub struct {
	mu      sync.RWMutex
	log     *logger.Logger
	clients map[string]*Client
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:     log.With("component", "RealtimeHub"),
		clients: make(map[string]*Client),
	}
}

func (h *Hub) NewClient(userID string) *Client {
	client := &Client{
		ConnectionID: uuid.NewString(),
		UserID:       userID,
		outbound:     make(chan Event, 32),
		done:         make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client.ConnectionID] = client
	h.mu.Unlock()

	h.log.Debug("Chat stream opened", "connection_id", client.ConnectionID, "user_id", userID)
	return client
}

// Get returns the stream for a connection id, scoped to its owner.
func (h *Hub) Get(connectionID, userID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[connectionID]
	if !ok || client.UserID != userID {
		return nil, false
	}
	return client, true
}

func (h *Hub) Close(client *Client) {
	client.closeOnce.Do(func() {
		close(client.done)
	})

	h.mu.Lock()
	delete(h.clients, client.ConnectionID)
	h.mu.Unlock()

	h.log.Debug("Chat stream closed", "connection_id", client.ConnectionID)
}

// ServeHTTP pumps a client's events down an SSE response until the client
// disconnects or the stream is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *Client) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Tell the client which connection to address chat requests to.
	fmt.Fprintf(w, "event: connected\ndata: {\"connection_id\":%q}\n\n", client.ConnectionID)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-client.outbound:
			raw, err := json.Marshal(ev)
			if err != nil {
				h.log.Warn("Failed to marshal chat event", "error", err.Error())
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", raw)
			flusher.Flush()
		}
	}
}
