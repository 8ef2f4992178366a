package ws

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/playmatatu/icepitch/internal/auth"
	"github.com/playmatatu/icepitch/internal/game"
)

type pointerData struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

type viewportData struct {
	Width  float64  `json:"width" msgpack:"width"`
	Height float64  `json:"height" msgpack:"height"`
	Margin *float64 `json:"margin,omitempty" msgpack:"margin,omitempty"`
}

type formationData struct {
	Team string `json:"team" msgpack:"team"`
	Name string `json:"name" msgpack:"name"`
}

// SessionHub is the single hub for all sessions on this node.
var SessionHub *Hub

func init() {
	SessionHub = NewHub()
	go runSessionHub(SessionHub)
}

// BroadcastFrame is installed as the session manager's frame sink. It sends
// the snapshot and then every event to the session's connection.
func BroadcastFrame(sessionID string, snap game.Snapshot, events []game.Event) {
	SessionHub.deliverFrame(sessionID, snap, events)
}

func (h *Hub) deliverFrame(sessionID string, snap game.Snapshot, events []game.Event) {
	h.mu.RLock()
	c, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	h.SendTo(c, Message{Type: "frame", Data: snap})
	for _, e := range events {
		h.SendTo(c, Message{Type: "event", Data: e})
		if e.Type == game.EventSessionExpired {
			h.mu.Lock()
			h.closeLocked(c)
			h.mu.Unlock()
			return
		}
	}
}

// HandleWebSocket upgrades GET /sessions/:id/ws. The session token comes from
// the token query parameter since browsers cannot set headers on upgrade.
func HandleWebSocket(c *gin.Context) {
	sessionID := c.Param("id")
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if sessionID == "" || token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id and token required"})
		return
	}
	if wsConfig == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "websocket not configured"})
		return
	}

	claimed, err := auth.ParseSessionToken(wsConfig.JWTSecret, token)
	if err != nil || claimed != sessionID {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
		return
	}
	if game.Manager == nil || !game.Manager.Exists(sessionID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	client := &Client{
		conn:      conn,
		sessionID: sessionID,
		codec:     ParseCodec(c.Query("codec")),
		send:      make(chan []byte, 256),
	}

	SessionHub.register <- client

	go client.writePump()
	go client.readPump(SessionHub)
}

// runSessionHub serializes connection changes. A new connection for a session
// replaces the old one.
func runSessionHub(h *Hub) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, exists := h.clients[client.sessionID]; exists {
				log.Printf("[WS] Session %s reconnecting - closing old connection", client.sessionID)
				if err := old.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by new connection"), time.Now().Add(5*time.Second)); err != nil {
					log.Printf("[WS] Error writing close control to old client of %s: %v", old.sessionID, err)
				}
				h.closeLocked(old)
			}
			h.clients[client.sessionID] = client
			h.mu.Unlock()

			log.Printf("[WS] Client connected to session %s (codec=%s)", client.sessionID, client.codec)
			go h.sendState(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[client.sessionID]; ok && cur == client {
				log.Printf("[WS] Client disconnected from session %s", client.sessionID)
			}
			h.closeLocked(client)
			h.mu.Unlock()
		}
	}
}

// sendState sends the current snapshot outside the frame cadence.
func (h *Hub) sendState(c *Client) {
	snap, err := game.Manager.Snapshot(c.sessionID)
	if err != nil {
		h.sendError(c, "session not found")
		return
	}
	h.SendTo(c, Message{Type: "frame", Data: snap})
}

// readPump reads client messages.
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		frameType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("[WS] Unexpected close for session %s: %v", c.sessionID, err)
			}
			break
		}

		msgType, data, codec, err := decode(frameType, raw)
		if err != nil {
			h.sendError(c, "malformed message")
			continue
		}

		h.handleMessage(c, msgType, data, codec)
	}
}

// handleMessage applies one client message on the session's runner goroutine.
func (h *Hub) handleMessage(c *Client, msgType string, data []byte, codec Codec) {
	var cmd func(s *game.Session) error

	switch msgType {
	case "viewport":
		var d viewportData
		if err := decodeData(codec, data, &d); err != nil {
			h.sendError(c, "invalid viewport data")
			return
		}
		margin := game.DefaultViewportMargin
		if d.Margin != nil {
			margin = *d.Margin
		}
		vp := game.FitViewport(d.Width, d.Height, margin)
		cmd = func(s *game.Session) error {
			s.Resize(vp)
			return nil
		}

	case "gesture_start", "gesture_move":
		var d pointerData
		if err := decodeData(codec, data, &d); err != nil {
			h.sendError(c, "invalid pointer data")
			return
		}
		start := msgType == "gesture_start"
		cmd = func(s *game.Session) error {
			p := s.PointerToPitch(d.X, d.Y)
			if start {
				s.GestureStart(p)
			} else {
				s.GestureMove(p)
			}
			return nil
		}

	case "gesture_end":
		cmd = func(s *game.Session) error {
			s.GestureEnd()
			return nil
		}

	case "select_formation":
		var d formationData
		if err := decodeData(codec, data, &d); err != nil {
			h.sendError(c, "invalid formation data")
			return
		}
		team, err := game.ParseTeam(d.Team)
		if err != nil {
			h.sendError(c, "team must be A or B")
			return
		}
		if !game.Manager.Catalog().Has(d.Name) {
			h.sendError(c, game.ErrUnknownFormation.Error())
			return
		}
		cmd = func(s *game.Session) error {
			return s.SelectFormation(team, d.Name)
		}

	case "reset_match":
		cmd = func(s *game.Session) error {
			s.ResetMatch()
			return nil
		}

	case "get_state":
		h.sendState(c)
		return

	default:
		h.sendError(c, "unknown message type")
		return
	}

	var cmdErr error
	err := game.Manager.Exec(c.sessionID, func(s *game.Session) { cmdErr = cmd(s) })
	if errors.Is(err, game.ErrSessionNotFound) {
		h.sendError(c, "session not found")
		return
	}
	if cmdErr != nil {
		h.sendError(c, cmdErr.Error())
	}
}
