package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"visitrack/pkg/logger"
	"visitrack/pkg/metrics"
)

// Feed rooms
const (
	RoomActions  = "actions"
	RoomSessions = "sessions"
	RoomMetrics  = "metrics"
)

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	rooms      map[string]map[*Client]bool
	mutex      sync.RWMutex
	logger     *logger.Logger
}

type Message struct {
	Type      string                 `json:"type"`
	RoomID    string                 `json:"room_id,omitempty"`
	Timestamp int64                  `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
		logger:     log,
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// Publish queues a message for a room without blocking the caller. Messages
// are dropped when the hub is saturated.
func (h *Hub) Publish(roomID, msgType string, data map[string]interface{}) bool {
	msg := Message{
		Type:      msgType,
		RoomID:    roomID,
		Timestamp: getCurrentTimestamp(),
		Data:      data,
	}
	select {
	case h.broadcast <- msg:
		return true
	default:
		h.logger.WithField("room_id", roomID).Warn("Live feed saturated, dropping message")
		return false
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	metrics.LiveFeedClients.Set(float64(len(h.clients)))
	h.logger.WithField("caller_id", client.CallerID).Debug("Live feed client registered")

	// Everyone follows the action stream until they choose otherwise.
	h.joinRoom(client, RoomActions)

	h.sendToClient(client, Message{
		Type:      "welcome",
		Timestamp: getCurrentTimestamp(),
		Data: map[string]interface{}{
			"rooms": []string{RoomActions, RoomSessions, RoomMetrics},
		},
	})
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.removeClient(client)
}

// removeClient must be called with the write lock held.
func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	metrics.LiveFeedClients.Set(float64(len(h.clients)))

	for roomID := range client.rooms {
		if room, exists := h.rooms[roomID]; exists {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	h.logger.WithField("caller_id", client.CallerID).Debug("Live feed client unregistered")
}

func (h *Hub) deliver(message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode live feed message")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	targets := h.clients
	if message.RoomID != "" {
		targets = h.rooms[message.RoomID]
	}

	var slow []*Client
	for client := range targets {
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	for _, client := range slow {
		h.removeClient(client)
	}
}

// sendToClient must be called with the write lock held.
func (h *Hub) sendToClient(client *Client, message Message) {
	data, _ := json.Marshal(message)
	select {
	case client.send <- data:
	default:
		h.removeClient(client)
	}
}

func (h *Hub) joinRoom(client *Client, roomID string) {
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.rooms[roomID] = true
}

func (h *Hub) JoinRoom(client *Client, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[client]; ok {
		h.joinRoom(client, roomID)
	}
}

func (h *Hub) LeaveRoom(client *Client, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if room, exists := h.rooms[roomID]; exists {
		delete(room, client)
		delete(client.rooms, roomID)

		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		h.removeClient(client)
	}
}

func getCurrentTimestamp() int64 {
	return time.Now().Unix()
}
