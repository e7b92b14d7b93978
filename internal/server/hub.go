package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The shell is served to a local UI on another port
	CheckOrigin: func(r *http.Request) bool { return true },
}

// DefaultWriteWait bounds each websocket write. A client that stops reading is dropped after this long.
const DefaultWriteWait = 5 * time.Second

// StatusMessage is pushed to every connected UI while a turn runs
type StatusMessage struct {
	Command string `json:"command"`
	Message string `json:"message"`
}

// Hub fans status updates out to websocket clients. It implements edit.Reporter.
type Hub struct {
	mu          sync.Mutex // also serializes writes, which gorilla/websocket requires
	connections map[*websocket.Conn]struct{}
	writeWait   time.Duration
}

func NewHub() *Hub {
	return &Hub{
		connections: make(map[*websocket.Conn]struct{}),
		writeWait:   DefaultWriteWait,
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.registerConnection(conn)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn] = struct{}{}
	log.Printf("WebSocket connected (total: %d)", len(h.connections))
}

func (h *Hub) unregisterConnection(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_ = conn.Close()
	delete(h.connections, conn)
	log.Printf("WebSocket disconnected (total: %d)", len(h.connections))
}

func (h *Hub) connectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// Send marshals msg and writes it to every connection. Connections that fail or time out are dropped.
func (h *Hub) Send(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal websocket message: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.connections {
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("Dropping websocket connection: %v", err)
			_ = conn.Close()
			delete(h.connections, conn)
		}
	}
}

// Status broadcasts a progress line
func (h *Hub) Status(message string) {
	log.Printf("Status: %s", message)
	h.Send(StatusMessage{Command: "statusUpdate", Message: message})
}

// CloseAll disconnects every client
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.connections {
		_ = conn.Close()
		delete(h.connections, conn)
	}
}
