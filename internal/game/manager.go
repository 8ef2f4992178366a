package game

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/playmatatu/icepitch/internal/config"
	"github.com/playmatatu/icepitch/internal/models"
	"github.com/redis/go-redis/v9"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrTooManySessions  = errors.New("too many active sessions")
	ErrUnknownFormation = errors.New("unknown formation")
)

// FrameSink receives a snapshot and the events since the previous frame for
// one session. It is called on that session's runner goroutine.
type FrameSink func(sessionID string, snap Snapshot, events []Event)

// activitySyncInterval bounds how often Touch writes the shared activity time
// of one session to Redis.
const activitySyncInterval = 5 * time.Second

// activeSession is a live session with the runner that owns it.
type activeSession struct {
	session      *Session
	runner       *Runner
	createdAt    time.Time
	lastActivity time.Time
	lastShared   time.Time
}

// SessionManager owns every running session on this node.
type SessionManager struct {
	sessions map[string]*activeSession
	catalog  *FormationCatalog
	store    *SessionStore // nil when Redis is not configured
	config   *config.Config
	sink     FrameSink
	outbox   chan EventMessage
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
}

var (
	// Global session manager instance
	Manager *SessionManager
)

// InitializeManager builds the formation catalog from the built-ins, the
// database and the formations file, then creates the global session manager.
func InitializeManager(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) {
	catalog := DefaultFormations()
	if db != nil {
		if _, err := LoadFormationsFromDB(db, catalog); err != nil {
			log.Printf("[FORMATION] Error loading formations from DB: %v", err)
		}
	}
	if cfg.FormationsFile != "" {
		if _, err := LoadFormationsFile(cfg.FormationsFile, catalog); err != nil {
			log.Printf("[FORMATION] Error loading %s: %v", cfg.FormationsFile, err)
		}
	}

	var store *SessionStore
	if rdb != nil {
		store = NewSessionStore(rdb, time.Duration(cfg.SessionSnapshotTTLMins)*time.Minute)
	}
	Manager = NewSessionManager(catalog, store, cfg)
	log.Printf("[SESSION] Manager ready with formations %v", catalog.Names())
}

// NewSessionManager creates a manager. store may be nil.
func NewSessionManager(catalog *FormationCatalog, store *SessionStore, cfg *config.Config) *SessionManager {
	if catalog == nil {
		catalog = DefaultFormations()
	}
	ctx, cancel := context.WithCancel(context.Background())
	sm := &SessionManager{
		sessions: make(map[string]*activeSession),
		catalog:  catalog,
		store:    store,
		config:   cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
	if store != nil {
		sm.outbox = make(chan EventMessage, 256)
		go sm.publishLoop()
	}
	return sm
}

// generateToken generates a secure random token
func generateToken(length int) string {
	bytes := make([]byte, length)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func generateSessionID() string {
	return "s_" + generateToken(8)
}

// SetFrameSink installs the callback that receives frames from every session.
func (sm *SessionManager) SetFrameSink(sink FrameSink) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sink = sink
}

func (sm *SessionManager) frameSink() FrameSink {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sink
}

// Catalog returns the formation catalog shared by all sessions.
func (sm *SessionManager) Catalog() *FormationCatalog {
	return sm.catalog
}

// Store returns the Redis session store, or nil when Redis is not configured.
func (sm *SessionManager) Store() *SessionStore {
	return sm.store
}

// Create starts a new session at kickoff and returns its initial snapshot.
func (sm *SessionManager) Create() (Snapshot, error) {
	sm.mu.Lock()
	if sm.config.MaxSessions > 0 && len(sm.sessions) >= sm.config.MaxSessions {
		sm.mu.Unlock()
		return Snapshot{}, ErrTooManySessions
	}
	s := NewSession(generateSessionID(), sm.catalog, sm.config.WinningScore)
	as := sm.startLocked(s, time.Now())
	sm.mu.Unlock()

	snap := s.Snapshot()
	sm.persist(snap, as.createdAt)
	sm.armIdle(s.ID)
	log.Printf("[SESSION] Created session %s (%d active)", s.ID, sm.Count())
	return snap, nil
}

// startLocked registers s and starts its runner. sm.mu must be held.
func (sm *SessionManager) startLocked(s *Session, createdAt time.Time) *activeSession {
	as := &activeSession{session: s, createdAt: createdAt, lastActivity: time.Now()}
	as.runner = NewRunner(s, sm.config.TickRateHz, sm.config.BroadcastHz, func(events []Event) {
		sm.onFrame(as, events)
	})
	sm.sessions[s.ID] = as
	go as.runner.Run(sm.ctx)
	return as
}

func (sm *SessionManager) onFrame(as *activeSession, events []Event) {
	s := as.session
	snap := s.Snapshot()
	if sink := sm.frameSink(); sink != nil {
		sink(s.ID, snap, events)
	}

	persist := false
	for _, e := range events {
		switch e.Type {
		case EventBallStopped, EventGoalScored, EventMatchOver, EventMatchReset, EventFormationChanged:
			persist = true
		}
		if e.Type.SessionLevel() {
			sm.publish(s.ID, e)
		}
	}
	if persist {
		sm.persist(snap, as.createdAt)
	}
}

// publish queues e for the session events channel. Events leave in the order
// they were queued.
func (sm *SessionManager) publish(id string, e Event) {
	if sm.outbox == nil {
		return
	}
	select {
	case sm.outbox <- EventMessage{SessionID: id, Event: e}:
	default:
		log.Printf("[REDIS] Event queue full; dropped %s for session %s", e.Type, id)
	}
}

func (sm *SessionManager) publishLoop() {
	for {
		select {
		case <-sm.ctx.Done():
			return
		case msg := <-sm.outbox:
			ctx, cancel := context.WithTimeout(sm.ctx, 2*time.Second)
			if err := sm.store.PublishEvent(ctx, msg.SessionID, msg.Event); err != nil {
				log.Printf("[REDIS] Failed to publish %s for session %s: %v", msg.Event.Type, msg.SessionID, err)
			}
			cancel()
		}
	}
}

func (sm *SessionManager) persist(snap Snapshot, createdAt time.Time) {
	if sm.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := sm.store.Save(ctx, snap, createdAt); err != nil {
			log.Printf("[REDIS] Failed to save session %s: %v", snap.SessionID, err)
		}
	}()
}

func (sm *SessionManager) idleTimeout() time.Duration {
	return time.Duration(sm.config.SessionIdleMinutes) * time.Minute
}

// armIdle marks id active now and schedules its idle check.
func (sm *SessionManager) armIdle(id string) {
	if sm.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	now := time.Now()
	if err := sm.store.MarkActive(ctx, id, now); err != nil {
		log.Printf("[REDIS] Failed to mark %s active: %v", id, err)
	}
	if err := sm.store.ScheduleIdleCheck(ctx, id, now.Add(sm.idleTimeout())); err != nil {
		log.Printf("[REDIS] Failed to schedule idle check for %s: %v", id, err)
	}
}

// lookup returns the live session, restoring it from Redis when this node
// does not have it.
func (sm *SessionManager) lookup(id string) (*activeSession, error) {
	sm.mu.RLock()
	as, ok := sm.sessions[id]
	sm.mu.RUnlock()
	if ok {
		return as, nil
	}
	if sm.store == nil {
		return nil, ErrSessionNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := sm.store.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			log.Printf("[REDIS] Failed to load session %s: %v", id, err)
		}
		return nil, ErrSessionNotFound
	}
	createdAt := time.Now()
	if rec, err := sm.store.Record(ctx, id); err == nil && !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if as, ok := sm.sessions[id]; ok {
		return as, nil
	}
	if sm.config.MaxSessions > 0 && len(sm.sessions) >= sm.config.MaxSessions {
		return nil, ErrTooManySessions
	}
	s := RestoreSession(*snap, sm.catalog, sm.config.WinningScore)
	log.Printf("[SESSION] Restored session %s from Redis at tick %d", id, s.Tick())
	as = sm.startLocked(s, createdAt)
	go sm.armIdle(id)
	return as, nil
}

// Exists reports whether id names a live or restorable session.
func (sm *SessionManager) Exists(id string) bool {
	_, err := sm.lookup(id)
	return err == nil
}

// Exec runs fn on the session's runner goroutine and marks it active.
func (sm *SessionManager) Exec(id string, fn func(s *Session)) error {
	as, err := sm.lookup(id)
	if err != nil {
		return err
	}
	sm.Touch(id)
	if err := as.runner.Do(func() { fn(as.session) }); err != nil {
		return ErrSessionNotFound
	}
	return nil
}

// Snapshot returns the current state of a session.
func (sm *SessionManager) Snapshot(id string) (Snapshot, error) {
	var snap Snapshot
	err := sm.Exec(id, func(s *Session) { snap = s.Snapshot() })
	return snap, err
}

// Touch records client activity for idle expiry. With Redis the activity is
// shared so whichever node claims the idle check sees it.
func (sm *SessionManager) Touch(id string) {
	now := time.Now()
	share := false

	sm.mu.Lock()
	if as, ok := sm.sessions[id]; ok {
		as.lastActivity = now
		if sm.store != nil && now.Sub(as.lastShared) >= activitySyncInterval {
			as.lastShared = now
			share = true
		}
	}
	sm.mu.Unlock()

	if !share {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sm.store.MarkActive(ctx, id, now); err != nil {
		log.Printf("[REDIS] Failed to mark %s active: %v", id, err)
	}
}

// LastActivity returns when the session was last used.
func (sm *SessionManager) LastActivity(id string) (time.Time, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	as, ok := sm.sessions[id]
	if !ok {
		return time.Time{}, false
	}
	return as.lastActivity, true
}

// Remove stops the session and deletes any cached copy.
func (sm *SessionManager) Remove(id string) error {
	sm.mu.Lock()
	as, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if ok {
		as.runner.Stop()
	}
	if sm.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		existed, err := sm.store.Delete(ctx, id)
		if err != nil {
			log.Printf("[REDIS] Failed to delete session %s: %v", id, err)
		}
		ok = ok || existed
	}
	if !ok {
		return ErrSessionNotFound
	}
	log.Printf("[SESSION] Removed session %s", id)
	return nil
}

// Expire closes an idle session. The local runner, if any, is stopped after
// its listeners are told; other nodes hear about it on the events channel and
// the cached copy is dropped.
func (sm *SessionManager) Expire(id string) {
	tick, hosted := sm.expireLocal(id)
	if sm.store != nil {
		sm.publish(id, Event{Type: EventSessionExpired, Tick: tick})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if _, err := sm.store.Delete(ctx, id); err != nil {
			log.Printf("[REDIS] Failed to delete session %s: %v", id, err)
		}
		cancel()
	}
	log.Printf("[IDLE] Session %s expired (hosted here: %v)", id, hosted)
}

// ReleaseExpired stops the local copy of a session another node expired. It
// reports whether this node hosted it.
func (sm *SessionManager) ReleaseExpired(id string) bool {
	_, hosted := sm.expireLocal(id)
	if hosted {
		log.Printf("[SESSION] Released session %s expired elsewhere", id)
	}
	return hosted
}

// expireLocal sends a final frame with a session_expired event and stops the
// runner. It returns the last tick and whether the session was hosted here.
func (sm *SessionManager) expireLocal(id string) (uint64, bool) {
	sm.mu.Lock()
	as, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if !ok {
		return 0, false
	}

	expired := Event{Type: EventSessionExpired}
	as.runner.Do(func() {
		expired.Tick = as.session.Tick()
		if sink := sm.frameSink(); sink != nil {
			sink(id, as.session.Snapshot(), []Event{expired})
		}
	})
	as.runner.Stop()
	return expired.Tick, true
}

// Describe returns the summary and current snapshot of a session without
// counting as activity. A session not hosted here is read from the Redis cache
// rather than started.
func (sm *SessionManager) Describe(id string) (models.SessionRecord, Snapshot, error) {
	sm.mu.RLock()
	as, ok := sm.sessions[id]
	sm.mu.RUnlock()

	if ok {
		var snap Snapshot
		if err := as.runner.Do(func() { snap = as.session.Snapshot() }); err != nil {
			return models.SessionRecord{}, Snapshot{}, ErrSessionNotFound
		}
		sm.mu.RLock()
		rec := sessionRecord(snap, as.createdAt, as.lastActivity)
		sm.mu.RUnlock()
		return rec, snap, nil
	}
	if sm.store == nil {
		return models.SessionRecord{}, Snapshot{}, ErrSessionNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := sm.store.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			log.Printf("[REDIS] Failed to load session %s: %v", id, err)
		}
		return models.SessionRecord{}, Snapshot{}, ErrSessionNotFound
	}
	rec, err := sm.store.Record(ctx, id)
	if err != nil {
		fallback := sessionRecord(*snap, time.Time{}, time.Time{})
		rec = &fallback
	}
	return *rec, *snap, nil
}

// SweepIdle expires every session idle for longer than maxIdle and returns
// their IDs.
func (sm *SessionManager) SweepIdle(maxIdle time.Duration) []string {
	cutoff := time.Now().Add(-maxIdle)

	sm.mu.RLock()
	var idle []string
	for id, as := range sm.sessions {
		if as.lastActivity.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	sm.mu.RUnlock()

	for _, id := range idle {
		sm.Expire(id)
	}
	return idle
}

// Count returns the number of live sessions on this node.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Shutdown stops every runner. Cached snapshots stay in Redis so sessions can
// be resumed after a restart.
func (sm *SessionManager) Shutdown() {
	sm.cancel()

	sm.mu.Lock()
	runners := make([]*Runner, 0, len(sm.sessions))
	for id, as := range sm.sessions {
		runners = append(runners, as.runner)
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	for _, r := range runners {
		<-r.Done()
	}
	log.Printf("[SESSION] Stopped %d session(s)", len(runners))
}
