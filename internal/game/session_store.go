package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/playmatatu/icepitch/internal/models"
	rkeys "github.com/playmatatu/icepitch/internal/redis"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// SessionStore caches session snapshots in Redis so a session survives a
// server restart, and fans session events out to other nodes.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// EventMessage is the payload published on the session events channel.
type EventMessage struct {
	SessionID string `json:"session_id"`
	Event     Event  `json:"event"`
}

func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionStore{rdb: rdb, ttl: ttl}
}

// Save writes the snapshot as msgpack and a JSON summary record, both with
// the store TTL.
func (st *SessionStore) Save(ctx context.Context, snap Snapshot, createdAt time.Time) error {
	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	meta, err := json.Marshal(sessionRecord(snap, createdAt, time.Now()))
	if err != nil {
		return err
	}

	pipe := st.rdb.TxPipeline()
	pipe.SetEx(ctx, rkeys.SessionStateKey(snap.SessionID), data, st.ttl)
	pipe.SetEx(ctx, rkeys.SessionMetaKey(snap.SessionID), meta, st.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func sessionRecord(snap Snapshot, createdAt, lastActivity time.Time) models.SessionRecord {
	status := StatusActive
	if snap.GameOver {
		status = StatusClosed
	}
	return models.SessionRecord{
		SessionID:    snap.SessionID,
		Status:       string(status),
		ScoreA:       snap.Score[TeamA],
		ScoreB:       snap.Score[TeamB],
		CreatedAt:    createdAt,
		LastActivity: lastActivity,
	}
}

// Load reads a cached snapshot. It returns ErrSessionNotFound when none is
// cached.
func (st *SessionStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	data, err := st.rdb.Get(ctx, rkeys.SessionStateKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return DecodeSnapshot(data)
}

// Record reads the summary record of a cached session.
func (st *SessionStore) Record(ctx context.Context, id string) (*models.SessionRecord, error) {
	data, err := st.rdb.Get(ctx, rkeys.SessionMetaKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec models.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete drops the cached copy, the shared activity time and any pending idle
// check. It reports whether a snapshot or record was cached.
func (st *SessionStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := st.rdb.Del(ctx, rkeys.SessionStateKey(id), rkeys.SessionMetaKey(id)).Result()
	if err != nil {
		return false, err
	}
	pipe := st.rdb.Pipeline()
	pipe.Del(ctx, rkeys.LastActiveKey(id))
	pipe.ZRem(ctx, rkeys.IdleSet, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return n > 0, err
	}
	return n > 0, nil
}

// MarkActive records at as the last client activity of id.
func (st *SessionStore) MarkActive(ctx context.Context, id string, at time.Time) error {
	return st.rdb.Set(ctx, rkeys.LastActiveKey(id), at.Unix(), st.ttl).Err()
}

// LastActive returns the shared last activity of id. ok is false when none is
// recorded, either because the session is gone or its key aged out.
func (st *SessionStore) LastActive(ctx context.Context, id string) (at time.Time, ok bool, err error) {
	v, err := st.rdb.Get(ctx, rkeys.LastActiveKey(id)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last activity of %s: %w", id, err)
	}
	return time.Unix(ts, 0), true, nil
}

// PublishEvent sends e on the session events channel.
func (st *SessionStore) PublishEvent(ctx context.Context, id string, e Event) error {
	b, err := json.Marshal(EventMessage{SessionID: id, Event: e})
	if err != nil {
		return err
	}
	return st.rdb.Publish(ctx, rkeys.EventsChannel, b).Err()
}

// Subscribe listens on the session events channel.
func (st *SessionStore) Subscribe(ctx context.Context) *redis.PubSub {
	return st.rdb.Subscribe(ctx, rkeys.EventsChannel)
}

// ScheduleIdleCheck records when the idle worker should next look at id.
func (st *SessionStore) ScheduleIdleCheck(ctx context.Context, id string, at time.Time) error {
	return st.rdb.ZAdd(ctx, rkeys.IdleSet, redis.Z{Score: float64(at.Unix()), Member: id}).Err()
}

// ClaimDueIdle removes and returns every session whose idle check is due.
// ZREM decides the winner when several nodes poll at once.
func (st *SessionStore) ClaimDueIdle(ctx context.Context, now time.Time) ([]string, error) {
	members, err := st.rdb.ZRangeByScore(ctx, rkeys.IdleSet, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	var claimed []string
	for _, m := range members {
		if removed, _ := st.rdb.ZRem(ctx, rkeys.IdleSet, m).Result(); removed > 0 {
			claimed = append(claimed, m)
		}
	}
	return claimed, nil
}

// DecodeSnapshot parses a msgpack snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.SessionID == "" {
		return nil, errors.New("decode snapshot: missing session id")
	}
	return &snap, nil
}

// RestoreSession rebuilds a session from a snapshot. Formations are looked up
// in catalog; a formation that no longer exists leaves that side empty.
func RestoreSession(snap Snapshot, catalog *FormationCatalog, winningScore int) *Session {
	if snap.WinningScore > 0 {
		winningScore = snap.WinningScore
	}
	s := NewSession(snap.SessionID, catalog, winningScore)
	s.tick = snap.Tick
	if snap.Viewport.Scale > 0 {
		s.Viewport = snap.Viewport
	}

	for _, team := range []Team{TeamA, TeamB} {
		if name, ok := snap.Formations[team]; ok {
			s.World.Formations[team] = name
		}
	}
	s.World.LayoutPlayers()

	s.World.Ball = snap.Ball
	if s.World.Ball.Radius == 0 {
		s.World.Ball.Radius = BallRadius
	}

	turn := snap.Turn
	if !turn.Valid() {
		turn = TeamA
	}
	s.Match.Restore(snap.Score[TeamA], snap.Score[TeamB], turn)
	if snap.Phase == PhaseBallInFlight && !s.Match.GameOver() {
		s.Match.Phase = PhaseBallInFlight
	}
	return s
}
