package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tunetube/logger"
)

// MessageType identifies a websocket frame.
type MessageType string

const (
	MsgTypePing         MessageType = "ping"
	MsgTypePong         MessageType = "pong"
	MsgTypeError        MessageType = "error"
	MsgTypeState        MessageType = "state"
	MsgTypeNotification MessageType = "notification"

	// Transport commands sent by clients.
	MsgTypePlay   MessageType = "play"
	MsgTypePause  MessageType = "pause"
	MsgTypeToggle MessageType = "toggle"
	MsgTypeNext   MessageType = "next"
	MsgTypePrev   MessageType = "prev"
	MsgTypeSeek   MessageType = "seek"
	MsgTypeLike   MessageType = "like"
)

// WSMessage is the websocket frame envelope.
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// SeekData is the payload of a seek command.
type SeekData struct {
	PositionMs int64 `json:"positionMs"`
}

// Client is one connected websocket listener.
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
}

// Hub fans session state out to websocket clients and feeds their
// transport commands back in.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run is the hub main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastAll(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop shuts the hub down and disconnects everyone.
func (h *Hub) Stop() {
	close(h.done)
}

// NewClient wraps an upgraded connection.
func (h *Hub) NewClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		Hub:  h,
		Conn: conn,
		Send: make(chan []byte, 64),
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	logger.Info("session client connected", logger.String("client", client.ID))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
		logger.Info("session client disconnected", logger.String("client", client.ID))
	}
}

// dropClient removes a client directly. The hub goroutine calls this
// from broadcastAll, so it must not go through the unregister channel
// that same goroutine is draining.
func (h *Hub) dropClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
		logger.Warn("session client dropped, send buffer full", logger.String("client", client.ID))
	}
}

func (h *Hub) broadcastAll(msg []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.Send <- msg:
		default:
			// send buffer full, drop the client
			h.dropClient(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]bool)
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a typed message to every client.
func (h *Hub) Broadcast(msgType MessageType, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	msg := &WSMessage{
		Type:      msgType,
		Data:      payload,
		Timestamp: time.Now().UnixMilli(),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- raw:
	case <-h.done:
	}
	return nil
}

// ReadPump reads client frames until the connection drops. Transport
// commands go to handler; pings are answered in place.
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, client *Client, msg *WSMessage)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.Conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket read error",
						logger.ErrorField(err),
						logger.String("client", c.ID))
				}
				return
			}

			var msg WSMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				logger.Warn("invalid message format",
					logger.ErrorField(err),
					logger.String("client", c.ID))
				continue
			}

			if msg.Type == MsgTypePing {
				pong := &WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()}
				if data, err := json.Marshal(pong); err == nil {
					select {
					case c.Send <- data:
					default:
					}
				}
				continue
			}

			handler(ctx, c, &msg)
		}
	}
}

// WritePump writes queued frames and keeps the connection alive with
// pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues a typed message for one client.
func (c *Client) SendMessage(msgType MessageType, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	msg := &WSMessage{
		Type:      msgType,
		Data:      payload,
		Timestamp: time.Now().UnixMilli(),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.Send <- raw:
	default:
	}
	return nil
}
