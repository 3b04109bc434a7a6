package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/provanto/provanto/internal/database"
)

// FeedMessage is one entry on the conflict event feed
type FeedMessage struct {
	ConflictUUID string                  `json:"conflict_uuid"`
	Type         database.ConflictType   `json:"type"`
	Status       database.ConflictStatus `json:"status"`
	Severity     database.Severity       `json:"severity"`
	Action       string                  `json:"action"`
	Actor        string                  `json:"actor"`
	Note         string                  `json:"note"`
	At           time.Time               `json:"at"`
}

// FeedHub pushes conflict events to connected dashboard clients over
// WebSocket. It implements conflict.EventSink; sends are non-blocking and a
// client that cannot keep up is dropped.
type FeedHub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	clients  map[*feedClient]struct{}
}

type feedClient struct {
	conn *websocket.Conn
	send chan FeedMessage
}

// NewFeedHub creates a feed hub with no connected clients
func NewFeedHub() *FeedHub {
	return &FeedHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*feedClient]struct{}),
	}
}

// SetupRoutes sets up the feed WebSocket route
func (h *FeedHub) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/conflicts", h.handleFeed)
}

// ConflictEvent broadcasts an audit event to all connected clients.
// Called synchronously from the conflict service; it must never block.
func (h *FeedHub) ConflictEvent(record *database.ConflictRecord, event *database.ConflictEvent) {
	msg := FeedMessage{
		ConflictUUID: record.UUID,
		Type:         record.Type,
		Status:       record.Status,
		Severity:     record.Severity,
		Action:       event.Action,
		Actor:        event.Actor,
		Note:         event.Note,
		At:           event.At,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Slow consumer; its write pump will be torn down on next write.
		}
	}
}

// ClientCount returns the number of connected feed clients
func (h *FeedHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleFeed handles GET /ws/conflicts
func (h *FeedHub) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Feed upgrade failed: %v", err)
		return
	}

	client := &feedClient{
		conn: conn,
		send: make(chan FeedMessage, 64),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("Feed client connected (%d total)", count)

	go h.writePump(client)
	h.readPump(client)
}

// readPump discards client messages and detects disconnects
func (h *FeedHub) readPump(client *feedClient) {
	defer h.remove(client)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump serializes queued feed messages onto the connection
func (h *FeedHub) writePump(client *feedClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteJSON(msg); err != nil {
				h.remove(client)
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(client)
				return
			}
		}
	}
}

// remove unregisters a client and closes its connection
func (h *FeedHub) remove(client *feedClient) {
	h.mu.Lock()
	_, present := h.clients[client]
	if present {
		delete(h.clients, client)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if present {
		client.conn.Close()
		log.Printf("Feed client disconnected (%d total)", count)
	}
}
