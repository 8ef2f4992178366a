package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/playmatatu/icepitch/internal/config"
	"github.com/playmatatu/icepitch/internal/game"
)

var wsConfig *config.Config

// Configure hands the package its config.
func Configure(cfg *config.Config) {
	wsConfig = cfg
}

// StartEventSubscriber listens on the session events channel. A session
// expired by another node is released here and its connection closed.
func StartEventSubscriber(ctx context.Context) {
	if game.Manager == nil || game.Manager.Store() == nil {
		log.Println("[WS] Redis not configured; session event subscriber not started")
		return
	}

	pubsub := game.Manager.Store().Subscribe(ctx)
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		log.Println("[WS] session_events subscriber started")
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handleSessionEvent(SessionHub, []byte(msg.Payload))
			}
		}
	}()
}

func handleSessionEvent(h *Hub, payload []byte) {
	var em game.EventMessage
	if err := json.Unmarshal(payload, &em); err != nil {
		log.Printf("[WS] invalid event payload: %v", err)
		return
	}
	if em.Event.Type != game.EventSessionExpired {
		return
	}
	// The frame sink tells the client and closes it when the session is
	// hosted here.
	if game.Manager != nil && game.Manager.ReleaseExpired(em.SessionID) {
		return
	}
	if !h.Connected(em.SessionID) {
		return
	}

	log.Printf("[WS] session %s expired; closing connection", em.SessionID)
	h.SendToSession(em.SessionID, Message{Type: "event", Data: em.Event})
	h.Disconnect(em.SessionID)
}
