package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gocomet/afya-transport/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client is one WebSocket connection of a rider, requester or dashboard
type Client struct {
	ID       string
	UserID   string
	Audience string
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte

	mu      sync.RWMutex
	follows map[string]bool // request ids
	logger  *logger.Logger
}

// ClientMessage is a command sent by the client
type ClientMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, userID, audience string, log *logger.Logger) *Client {
	return &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		Audience: audience,
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		follows:  make(map[string]bool),
		logger:   log,
	}
}

// ReadPump reads client commands until the connection drops
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					logger.Err(err),
					logger.String("client_id", c.ID),
				)
			}
			return
		}
		c.handleMessage(message)
	}
}

// WritePump writes queued messages and keeps the connection alive
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("Failed to unmarshal client message",
			logger.Err(err),
			logger.String("client_id", c.ID),
		)
		return
	}

	switch msg.Type {
	case "follow":
		c.Follow(msg.RequestID)
	case "unfollow":
		c.Unfollow(msg.RequestID)
	case "ping":
		c.enqueue(Message{Type: "pong"})
	default:
		c.logger.Warn("Unknown message type",
			logger.String("type", msg.Type),
			logger.String("client_id", c.ID),
		)
	}
}

// Follow subscribes the client to updates of a request
func (c *Client) Follow(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.follows[requestID] = true
}

// Unfollow drops the subscription
func (c *Client) Unfollow(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.follows, requestID)
}

// Follows reports whether the client subscribed to requestID
func (c *Client) Follows(requestID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.follows[requestID]
}

func (c *Client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.Send <- data:
	default:
		c.logger.Warn("Client send buffer full", logger.String("client_id", c.ID))
	}
}
