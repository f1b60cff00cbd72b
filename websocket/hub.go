package websocket

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Commission event types pushed to connected admin dashboards.
const (
	EventLedgerOpened        = "ledger_opened"
	EventLedgerMerged        = "ledger_merged"
	EventLedgerPaid          = "ledger_paid"
	EventLedgerStatusChanged = "ledger_status_changed"
)

// LedgerEvent is a message sent over WebSocket to admin dashboards.
type LedgerEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Client represents a connected admin dashboard.
type Client struct {
	UserID string
	Conn   *websocket.Conn
}

// Hub maintains the set of connected admin clients and broadcasts
// commission events to them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Conn.Close()
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastLedgerEvent pushes a commission event to every connected admin.
func (h *Hub) BroadcastLedgerEvent(eventType string, data interface{}) {
	event := LedgerEvent{Type: eventType, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if err := client.Conn.WriteJSON(event); err != nil {
			log.Printf("WebSocket: failed to push %s to admin %s: %v", eventType, client.UserID, err)
		}
	}
}
