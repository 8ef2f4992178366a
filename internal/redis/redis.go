package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout shared by the session store, the idle worker and the websocket
// fan-out.
const (
	EventsChannel = "session_events"
	IdleSet       = "session_idle"
)

// SessionStateKey is where a session's binary snapshot lives.
func SessionStateKey(sessionID string) string {
	return "session:" + sessionID + ":state"
}

// SessionMetaKey is where a session's summary record lives.
func SessionMetaKey(sessionID string) string {
	return "session:" + sessionID + ":meta"
}

// LastActiveKey holds the unix time of a session's last client activity,
// shared by every node.
func LastActiveKey(sessionID string) string {
	return "last_active:" + sessionID
}

// Connect establishes a connection to Redis
func Connect(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}
