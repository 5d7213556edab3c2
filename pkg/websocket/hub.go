package websocket

import (
	"encoding/json"
	"sync"

	"github.com/gocomet/afya-transport/pkg/logger"
)

// Audience values used when clients connect
const (
	AudienceRider     = "rider"
	AudienceRequester = "requester"
	AudienceDashboard = "dashboard"
)

// Hub keeps the set of connected clients and fans messages out to them
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *logger.Logger
}

// Message is the envelope written to clients
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewHub creates a new WebSocket hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log,
	}
}

// Run processes registrations until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("Client registered",
				logger.String("client_id", client.ID),
				logger.String("user_id", client.UserID),
				logger.String("audience", client.Audience),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.logger.Info("Client unregistered", logger.String("client_id", client.ID))
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop terminates Run and closes every client
func (h *Hub) Stop() {
	close(h.done)
}

// Register registers a new client
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister unregisters a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// SendToUser delivers message to every connection of userID. It reports
// whether at least one connection accepted the message.
func (h *Hub) SendToUser(userID string, message interface{}) bool {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal message", logger.Err(err))
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := false
	for client := range h.clients {
		if client.UserID != userID {
			continue
		}
		select {
		case client.Send <- data:
			sent = true
		default:
			h.logger.Warn("Client send buffer full",
				logger.String("user_id", userID),
				logger.String("client_id", client.ID),
			)
		}
	}

	if !sent {
		h.logger.Debug("No connected client for user", logger.String("user_id", userID))
	}
	return sent
}

// BroadcastToRequest delivers message to clients following a transport request
func (h *Hub) BroadcastToRequest(requestID string, message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal request message", logger.Err(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.Follows(requestID) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("Failed to send request message to client",
				logger.String("request_id", requestID),
				logger.String("client_id", client.ID),
			)
		}
	}
}

// BroadcastToAudience delivers message to every client of one audience
func (h *Hub) BroadcastToAudience(audience string, message interface{}) int {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal message", logger.Err(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for client := range h.clients {
		if client.Audience != audience {
			continue
		}
		select {
		case client.Send <- data:
			count++
		default:
		}
	}
	return count
}

// ActiveConnections returns the number of registered clients
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
