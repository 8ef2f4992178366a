package game

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/playmatatu/icepitch/internal/config"
	rkeys "github.com/playmatatu/icepitch/internal/redis"
	"github.com/vmihailenco/msgpack/v5"
)

func testConfig() *config.Config {
	return &config.Config{
		TickRateHz:         120,
		BroadcastHz:        60,
		WinningScore:       3,
		MaxSessions:        2,
		SessionIdleMinutes: 30,
	}
}

func TestSessionManagerLifecycle(t *testing.T) {
	sm := NewSessionManager(nil, nil, testConfig())
	defer sm.Shutdown()

	snap, err := sm.Create()
	if err != nil {
		t.Fatal(err)
	}
	if snap.SessionID == "" || snap.Turn != TeamA {
		t.Fatalf("snapshot = %+v", snap)
	}
	if sm.Count() != 1 || !sm.Exists(snap.SessionID) {
		t.Fatalf("count=%d exists=%v", sm.Count(), sm.Exists(snap.SessionID))
	}

	err = sm.Exec(snap.SessionID, func(s *Session) {
		s.SelectFormation(TeamA, "4-3-3")
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := sm.Snapshot(snap.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Formations[TeamA] != "4-3-3" {
		t.Errorf("formation = %s, want 4-3-3", got.Formations[TeamA])
	}

	if err := sm.Remove(snap.SessionID); err != nil {
		t.Fatal(err)
	}
	if err := sm.Exec(snap.SessionID, func(*Session) {}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Exec after remove err = %v, want ErrSessionNotFound", err)
	}
	if err := sm.Remove(snap.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Remove err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionManagerLimit(t *testing.T) {
	sm := NewSessionManager(nil, nil, testConfig())
	defer sm.Shutdown()

	for i := 0; i < 2; i++ {
		if _, err := sm.Create(); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := sm.Create(); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("err = %v, want ErrTooManySessions", err)
	}
}

func TestSessionManagerFramesAndIdleExpiry(t *testing.T) {
	sm := NewSessionManager(nil, nil, testConfig())
	defer sm.Shutdown()

	var (
		mu      sync.Mutex
		frames  int
		expired bool
	)
	sm.SetFrameSink(func(id string, snap Snapshot, events []Event) {
		mu.Lock()
		defer mu.Unlock()
		frames++
		for _, e := range events {
			if e.Type == EventSessionExpired {
				expired = true
			}
		}
	})

	snap, err := sm.Create()
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := frames
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no frame delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if ids := sm.SweepIdle(time.Hour); len(ids) != 0 {
		t.Errorf("fresh session swept: %v", ids)
	}
	ids := sm.SweepIdle(-time.Second)
	if len(ids) != 1 || ids[0] != snap.SessionID {
		t.Fatalf("swept %v, want [%s]", ids, snap.SessionID)
	}

	mu.Lock()
	defer mu.Unlock()
	if !expired {
		t.Error("expected a session_expired event")
	}
	if sm.Count() != 0 {
		t.Errorf("count = %d after expiry", sm.Count())
	}
}

func TestRestoreSessionFromSnapshot(t *testing.T) {
	s := NewSession("s_restore", nil, 3)
	s.SelectFormation(TeamB, "3-3-4")
	s.Match.Launch()
	s.World.Ball.Velocity = NewVec2(25, -12)
	RunSteps(s, 40)
	orig := s.Snapshot()

	data, err := msgpack.Marshal(&orig)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatal(err)
	}

	restored := RestoreSession(*decoded, DefaultFormations(), 3)
	if got := restored.Snapshot(); !reflect.DeepEqual(got, orig) {
		t.Errorf("restored snapshot differs:\n got %+v\nwant %+v", got, orig)
	}

	// Both continue identically.
	RunSteps(s, 200)
	RunSteps(restored, 200)
	if !reflect.DeepEqual(s.Snapshot(), restored.Snapshot()) {
		t.Error("restored session diverged from the original")
	}
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	if _, err := DecodeSnapshot([]byte{0xc1}); err == nil {
		t.Error("expected an error")
	}
}

// waitForCache polls the store until the cached snapshot of id satisfies ok.
func waitForCache(t *testing.T, st *SessionStore, id string, ok func(*Snapshot) bool) *Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := st.Load(context.Background(), id)
		if err == nil && (ok == nil || ok(snap)) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("session %s never reached the cache (last err %v)", id, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// expiryRecorder is a frame sink that notes session_expired events.
type expiryRecorder struct {
	mu      sync.Mutex
	expired map[string]bool
}

func (r *expiryRecorder) sink(id string, _ Snapshot, events []Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range events {
		if e.Type == EventSessionExpired {
			if r.expired == nil {
				r.expired = make(map[string]bool)
			}
			r.expired[id] = true
		}
	}
}

func (r *expiryRecorder) sawExpiry(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expired[id]
}

func TestSessionManagerRestoresFromRedis(t *testing.T) {
	st, mr := newTestStore(t)
	nodeA := NewSessionManager(nil, st, testConfig())
	defer nodeA.Shutdown()

	snap, err := nodeA.Create()
	if err != nil {
		t.Fatal(err)
	}
	id := snap.SessionID
	if err := nodeA.Exec(id, func(s *Session) { s.SelectFormation(TeamB, "3-3-4") }); err != nil {
		t.Fatal(err)
	}
	cached := waitForCache(t, st, id, func(s *Snapshot) bool { return s.Formations[TeamB] == "3-3-4" })

	nodeB := NewSessionManager(nil, storeOn(t, mr), testConfig())
	defer nodeB.Shutdown()

	// Describe answers from the cache without starting the session.
	rec, got, err := nodeB.Describe(id)
	if err != nil {
		t.Fatal(err)
	}
	if nodeB.Count() != 0 {
		t.Errorf("Describe started the session: count = %d", nodeB.Count())
	}
	if got.Formations[TeamB] != "3-3-4" || rec.SessionID != id || rec.CreatedAt.IsZero() {
		t.Errorf("describe = %+v / %+v", rec, got.Formations)
	}

	restored, err := nodeB.Snapshot(id)
	if err != nil {
		t.Fatal(err)
	}
	if nodeB.Count() != 1 {
		t.Errorf("count = %d after restore, want 1", nodeB.Count())
	}
	if restored.Formations[TeamB] != "3-3-4" || restored.Tick < cached.Tick {
		t.Errorf("restored formations=%v tick=%d, cached tick %d", restored.Formations, restored.Tick, cached.Tick)
	}

	if _, _, err := nodeB.Describe("s_unknown"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Describe unknown err = %v, want ErrSessionNotFound", err)
	}
}

func TestTouchSharesActivity(t *testing.T) {
	st, _ := newTestStore(t)
	sm := NewSessionManager(nil, st, testConfig())
	defer sm.Shutdown()

	snap, err := sm.Create()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)
	if err := st.MarkActive(ctx, snap.SessionID, old); err != nil {
		t.Fatal(err)
	}

	if err := sm.Exec(snap.SessionID, func(*Session) {}); err != nil {
		t.Fatal(err)
	}
	got, ok, err := st.LastActive(ctx, snap.SessionID)
	if err != nil || !ok || !got.After(old) {
		t.Errorf("shared activity = %s ok=%v err=%v, want after %s", got, ok, err, old)
	}
}

func TestProcessDueIdleRearmsSessionHostedElsewhere(t *testing.T) {
	st, mr := newTestStore(t)
	host := NewSessionManager(nil, st, testConfig())
	defer host.Shutdown()
	other := NewSessionManager(nil, storeOn(t, mr), testConfig())
	defer other.Shutdown()

	snap, err := host.Create()
	if err != nil {
		t.Fatal(err)
	}
	id := snap.SessionID
	ctx := context.Background()
	now := time.Now()
	if err := st.ScheduleIdleCheck(ctx, id, now.Add(-time.Second)); err != nil {
		t.Fatal(err)
	}

	other.processDueIdle(ctx, now)

	score, err := st.rdb.ZScore(ctx, rkeys.IdleSet, id).Result()
	if err != nil {
		t.Fatalf("idle check was dropped: %v", err)
	}
	if score <= float64(now.Unix()) {
		t.Errorf("re-armed at %v, want after %d", score, now.Unix())
	}
	if host.Count() != 1 {
		t.Errorf("host count = %d, want 1", host.Count())
	}
}

func TestProcessDueIdleExpiresSessionHostedElsewhere(t *testing.T) {
	st, mr := newTestStore(t)
	rec := &expiryRecorder{}
	host := NewSessionManager(nil, st, testConfig())
	host.SetFrameSink(rec.sink)
	defer host.Shutdown()
	other := NewSessionManager(nil, storeOn(t, mr), testConfig())
	defer other.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub := st.Subscribe(ctx)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	snap, err := host.Create()
	if err != nil {
		t.Fatal(err)
	}
	id := snap.SessionID
	waitForCache(t, st, id, nil)

	now := time.Now()
	st.MarkActive(ctx, id, now.Add(-2*time.Hour))
	st.ScheduleIdleCheck(ctx, id, now.Add(-time.Second))

	other.processDueIdle(ctx, now)

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	em := decodeEventMessage(t, msg.Payload)
	if em.SessionID != id || em.Event.Type != EventSessionExpired {
		t.Fatalf("published %+v, want session_expired for %s", em, id)
	}
	if _, err := st.Load(ctx, id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("cache Load err = %v, want ErrSessionNotFound", err)
	}

	// The host lets go when the notice reaches it.
	if !host.ReleaseExpired(id) {
		t.Fatal("host should still have held the session")
	}
	if host.Count() != 0 || !rec.sawExpiry(id) {
		t.Errorf("host count=%d expired=%v", host.Count(), rec.sawExpiry(id))
	}
	if host.ReleaseExpired(id) {
		t.Error("second release should report nothing hosted")
	}
}

func TestProcessDueIdleExpiresLocalSession(t *testing.T) {
	st, _ := newTestStore(t)
	cfg := testConfig()
	cfg.SessionIdleMinutes = 0
	rec := &expiryRecorder{}
	sm := NewSessionManager(nil, st, cfg)
	sm.SetFrameSink(rec.sink)
	defer sm.Shutdown()

	snap, err := sm.Create()
	if err != nil {
		t.Fatal(err)
	}
	waitForCache(t, st, snap.SessionID, nil)

	sm.processDueIdle(context.Background(), time.Now().Add(time.Second))

	if sm.Count() != 0 || !rec.sawExpiry(snap.SessionID) {
		t.Errorf("count=%d expired=%v", sm.Count(), rec.sawExpiry(snap.SessionID))
	}
	if _, err := st.Load(context.Background(), snap.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("cache Load err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionEventsPublishedInOrder(t *testing.T) {
	st, _ := newTestStore(t)
	sm := NewSessionManager(nil, st, testConfig())
	defer sm.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub := st.Subscribe(ctx)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	snap, err := sm.Create()
	if err != nil {
		t.Fatal(err)
	}
	id := snap.SessionID

	// A shot into the side line raises per-frame events that stay local.
	sm.Exec(id, func(s *Session) {
		s.Match.Launch()
		s.World.Ball.Position = NewVec2(40, 1)
		s.World.Ball.Velocity = NewVec2(0, -60)
	})
	time.Sleep(100 * time.Millisecond)
	sm.Exec(id, func(s *Session) { s.SelectFormation(TeamA, "4-3-3") })
	sm.Exec(id, func(s *Session) { s.ResetMatch() })

	want := []EventType{EventFormationChanged, EventMatchReset}
	for i, wt := range want {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if em := decodeEventMessage(t, msg.Payload); em.Event.Type != wt || em.SessionID != id {
			t.Errorf("message %d = %+v, want %s", i, em, wt)
		}
	}
	if msg, err := sub.ReceiveTimeout(ctx, 200*time.Millisecond); err == nil {
		t.Errorf("unexpected extra message %v", msg)
	}
}
