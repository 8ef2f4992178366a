package game

import "sync"

// EventType names a discrete happening the renderer may react to.
type EventType string

const (
	EventLaunch           EventType = "launch"
	EventWallHit          EventType = "wall_hit"
	EventPlayerHit        EventType = "player_hit"
	EventBallStopped      EventType = "ball_stopped"
	EventGoalScored       EventType = "goal_scored"
	EventTurnChanged      EventType = "turn_changed"
	EventMatchOver        EventType = "match_over"
	EventMatchReset       EventType = "match_reset"
	EventFormationChanged EventType = "formation_changed"
	EventSessionExpired   EventType = "session_expired"
)

// SessionLevel reports whether t concerns the session as a whole rather than
// a single frame of play. Only these go out on the session events channel.
func (t EventType) SessionLevel() bool {
	switch t {
	case EventGoalScored, EventMatchOver, EventMatchReset, EventFormationChanged, EventSessionExpired:
		return true
	}
	return false
}

// Event is emitted by a Session. Fields not relevant to Type are zero.
type Event struct {
	Type      EventType    `json:"type" msgpack:"type"`
	Tick      uint64       `json:"tick" msgpack:"tick"`
	Team      Team         `json:"team,omitempty" msgpack:"team,omitempty"`
	Score     map[Team]int `json:"score,omitempty" msgpack:"score,omitempty"`
	Formation string       `json:"formation,omitempty" msgpack:"formation,omitempty"`
	Speed     float64      `json:"speed,omitempty" msgpack:"speed,omitempty"`
}

// Listener handles an event. Listeners run synchronously on the simulation
// goroutine and must not block.
type Listener func(Event)

// Bus fans events out to listeners registered per type or for all types.
type Bus struct {
	handlers map[EventType][]Listener
	all      []Listener
	mu       sync.RWMutex
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[EventType][]Listener)}
}

// Subscribe registers l for one event type.
func (b *Bus) Subscribe(t EventType, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], l)
}

// SubscribeAll registers l for every event.
func (b *Bus) SubscribeAll(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, l)
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := b.handlers[e.Type]
	all := b.all
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
	for _, h := range all {
		h(e)
	}
}
