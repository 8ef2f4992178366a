package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/playmatatu/icepitch/internal/middleware"
	"github.com/vmihailenco/msgpack/v5"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wsConfig == nil {
			return true // non-browser clients and tests
		}
		return middleware.OriginAllowed(wsConfig, origin)
	},
}

// Codec selects the wire encoding of a connection.
type Codec string

const (
	CodecJSON    Codec = "json"
	CodecMsgpack Codec = "msgpack"
)

// ParseCodec defaults to JSON for anything but "msgpack".
func ParseCodec(s string) Codec {
	if s == string(CodecMsgpack) {
		return CodecMsgpack
	}
	return CodecJSON
}

// Message is the envelope for every frame in both directions.
type Message struct {
	Type string      `json:"type" msgpack:"type"`
	Data interface{} `json:"data,omitempty" msgpack:"data,omitempty"`
}

// inboundMessage keeps the payload raw until the type is known.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type inboundMsgpack struct {
	Type string             `msgpack:"type"`
	Data msgpack.RawMessage `msgpack:"data"`
}

// encode serializes msg for the codec and returns the websocket frame type.
func encode(codec Codec, msg Message) ([]byte, int, error) {
	if codec == CodecMsgpack {
		b, err := msgpack.Marshal(&msg)
		return b, websocket.BinaryMessage, err
	}
	b, err := json.Marshal(msg)
	return b, websocket.TextMessage, err
}

// decode parses an inbound frame. Binary frames are msgpack, text frames JSON.
// The payload is left for decodeData.
func decode(frameType int, raw []byte) (string, []byte, Codec, error) {
	if frameType == websocket.BinaryMessage {
		var m inboundMsgpack
		if err := msgpack.Unmarshal(raw, &m); err != nil {
			return "", nil, CodecMsgpack, err
		}
		return m.Type, m.Data, CodecMsgpack, nil
	}
	var m inboundMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", nil, CodecJSON, err
	}
	return m.Type, m.Data, CodecJSON, nil
}

func decodeData(codec Codec, data []byte, v interface{}) error {
	if codec == CodecMsgpack {
		return msgpack.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

// Client is the one connection that controls a session.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	codec     Codec
	send      chan []byte
	closed    bool // guarded by Hub.mu
}

// Hub maps each session to its controlling connection.
type Hub struct {
	clients    map[string]*Client // sessionID -> Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// sendLocked queues data for c. h.mu must be held for reading.
func (h *Hub) sendLocked(c *Client, data []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		log.Printf("[WS] Send buffer full for session %s, dropping message", c.sessionID)
		return false
	}
}

// SendTo encodes msg with c's codec and queues it.
func (h *Hub) SendTo(c *Client, msg Message) {
	data, _, err := encode(c.codec, msg)
	if err != nil {
		log.Printf("[WS] Error encoding %s message: %v", msg.Type, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.sendLocked(c, data)
}

// SendToSession sends msg to the session's connection, if any.
func (h *Hub) SendToSession(sessionID string, msg Message) bool {
	h.mu.RLock()
	c, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	h.SendTo(c, msg)
	return true
}

// closeLocked removes c and closes its send channel. h.mu must be held.
func (h *Hub) closeLocked(c *Client) {
	if cur, ok := h.clients[c.sessionID]; ok && cur == c {
		delete(h.clients, c.sessionID)
	}
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Disconnect closes the session's connection, if any.
func (h *Hub) Disconnect(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[sessionID]; ok {
		h.closeLocked(c)
	}
}

// Connected reports whether the session has a live connection.
func (h *Hub) Connected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionID]
	return ok
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	frameType := websocket.TextMessage
	if c.codec == CodecMsgpack {
		frameType = websocket.BinaryMessage
	}

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed: replaced, expired or removed.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(frameType, message); err != nil {
				log.Printf("[WS] Write error for session %s: %v", c.sessionID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[WS] Ping error for session %s: %v", c.sessionID, err)
				return
			}
		}
	}
}

// sendError sends an error message to the client
func (h *Hub) sendError(c *Client, message string) {
	h.SendTo(c, Message{Type: "error", Data: map[string]string{"message": message}})
}
