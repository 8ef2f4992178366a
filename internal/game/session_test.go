package game

import (
	"reflect"
	"testing"
)

func eventTypes(events []Event) []EventType {
	types := make([]EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func hasEvent(events []Event, t EventType) bool {
	for _, e := range events {
		if e.Type == t {
			return true
		}
	}
	return false
}

// runUntilRest advances until the ball is no longer in flight.
func runUntilRest(t *testing.T, s *Session, limit int) []Event {
	t.Helper()
	var events []Event
	for i := 0; i < limit; i++ {
		events = append(events, s.Advance(TickDT)...)
		if !s.Match.BallMoving() {
			return events
		}
	}
	t.Fatalf("ball still moving after %d ticks", limit)
	return nil
}

func TestNewSessionKickoff(t *testing.T) {
	s := NewSession("s1", nil, 0)
	snap := s.Snapshot()

	if snap.Ball.Position != NewVec2(52.5, 34) || !snap.Ball.Velocity.IsZero() {
		t.Errorf("ball = %+v, want centered at rest", snap.Ball)
	}
	if snap.Turn != TeamA || snap.Phase != PhaseIdle || snap.GameOver {
		t.Errorf("turn=%s phase=%s over=%v", snap.Turn, snap.Phase, snap.GameOver)
	}
	if len(snap.Players) != 2*FormationSize {
		t.Errorf("players = %d, want %d", len(snap.Players), 2*FormationSize)
	}
	if snap.Formations[TeamA] != DefaultFormation || snap.Formations[TeamB] != DefaultFormation {
		t.Errorf("formations = %v", snap.Formations)
	}
}

func TestSessionLaunchFromCenterPassesTurn(t *testing.T) {
	s := NewSession("s1", nil, 3)

	if !s.GestureStart(NewVec2(52.5, 34)) {
		t.Fatal("gesture on the ball should start a drag")
	}
	s.GestureMove(NewVec2(52.5, 34+130/DragSensitivity))
	if !s.GestureEnd() {
		t.Fatal("expected a launch")
	}
	if v := s.World.Ball.Speed(); v < MaxPower-1e-6 || v > MaxPower+1e-6 {
		t.Fatalf("launch speed = %f, want %f", v, MaxPower)
	}
	if s.GestureStart(s.World.Ball.Position) {
		t.Error("cannot aim while the ball is moving")
	}

	events := runUntilRest(t, s, 5000)

	if !hasEvent(events, EventLaunch) || !hasEvent(events, EventWallHit) || !hasEvent(events, EventBallStopped) {
		t.Errorf("events = %v", eventTypes(events))
	}
	if s.Match.Turn != TeamB {
		t.Errorf("turn = %s, want B", s.Match.Turn)
	}
	if s.Match.Score[TeamA] != 0 || s.Match.Score[TeamB] != 0 {
		t.Errorf("score = %v, want 0-0", s.Match.Score)
	}
	if !s.World.Ball.Velocity.IsZero() {
		t.Errorf("velocity = %v, want zero", s.World.Ball.Velocity)
	}
}

func TestSessionGoalRecentersBall(t *testing.T) {
	s := NewSession("s1", nil, 3)
	s.Match.Launch()
	s.World.Ball.Position = NewVec2(0.1, 34)
	s.World.Ball.Velocity = NewVec2(-30, 0)

	events := s.Advance(TickDT)

	if got := eventTypes(events); !reflect.DeepEqual(got, []EventType{EventGoalScored, EventTurnChanged}) {
		t.Fatalf("events = %v", got)
	}
	if events[0].Team != TeamB || events[0].Score[TeamB] != 1 {
		t.Errorf("goal event = %+v", events[0])
	}
	if s.Match.Turn != TeamA {
		t.Errorf("turn = %s, want A (conceding side)", s.Match.Turn)
	}
	if s.World.Ball.Position != NewVec2(52.5, 34) || !s.World.Ball.Velocity.IsZero() {
		t.Errorf("ball = %+v, want centered at rest", s.World.Ball)
	}
}

func TestSessionMatchOver(t *testing.T) {
	s := NewSession("s1", nil, 3)
	s.Match.Score[TeamB] = 2
	s.Match.Launch()
	s.World.Ball.Position = NewVec2(0.1, 34)
	s.World.Ball.Velocity = NewVec2(-30, 0)

	events := s.Advance(TickDT)

	if !hasEvent(events, EventMatchOver) {
		t.Fatalf("events = %v, want match_over", eventTypes(events))
	}
	if !s.Match.GameOver() || s.Match.Winner != TeamB || s.Match.Score[TeamB] != 3 {
		t.Errorf("match = %+v", s.Match)
	}

	tick := s.Tick()
	if ev := s.Advance(TickDT); len(ev) != 0 || s.Tick() != tick {
		t.Error("a finished match must not advance")
	}
	if s.GestureStart(s.World.Ball.Position) {
		t.Error("launch input must be ignored after the match is over")
	}
	if !s.World.Ball.Velocity.IsZero() {
		t.Error("ball should be at rest after the final goal")
	}
}

func TestSessionWeakReleaseKeepsTurn(t *testing.T) {
	s := NewSession("s1", nil, 3)
	s.GestureStart(NewVec2(52.5, 34))
	s.GestureMove(NewVec2(52.4, 34))

	if s.GestureEnd() {
		t.Fatal("weak release should not launch")
	}
	if s.Match.Phase != PhaseIdle || s.Match.Turn != TeamA || !s.World.Ball.Velocity.IsZero() {
		t.Errorf("phase=%s turn=%s vel=%v", s.Match.Phase, s.Match.Turn, s.World.Ball.Velocity)
	}
}

func TestSessionResetTwiceIsSameAsOnce(t *testing.T) {
	s := NewSession("s1", nil, 3)
	s.Match.Launch()
	s.World.Ball.Velocity = NewVec2(40, 10)
	RunSteps(s, 30)

	s.ResetMatch()
	once := s.Snapshot()
	s.ResetMatch()
	twice := s.Snapshot()

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("reset is not idempotent:\n%+v\n%+v", once, twice)
	}
	if once.Score[TeamA] != 0 || once.Score[TeamB] != 0 || once.Turn != TeamA || once.BallMoving {
		t.Errorf("after reset: %+v", once)
	}
}

func TestSessionSelectFormation(t *testing.T) {
	s := NewSession("s1", nil, 3)

	if err := s.SelectFormation(Team("X"), "4-3-3"); err != ErrInvalidTeam {
		t.Errorf("err = %v, want ErrInvalidTeam", err)
	}
	if err := s.SelectFormation(TeamB, "4-3-3"); err != nil {
		t.Fatal(err)
	}

	events := s.Advance(TickDT)
	if len(events) != 1 || events[0].Type != EventFormationChanged || events[0].Formation != "4-3-3" {
		t.Errorf("events = %+v", events)
	}

	want := DefaultFormations().Layout("4-3-3", TeamB)
	var got []Player
	for _, p := range s.World.Players {
		if p.Team == TeamB {
			got = append(got, p)
		}
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("side B players do not match the 4-3-3 layout")
	}
}

func TestSessionPointerToPitch(t *testing.T) {
	s := NewSession("s1", nil, 3)
	s.Resize(FitViewport(1130, 2000, DefaultViewportMargin))

	p := s.PointerToPitch(525, 340)
	if p != NewVec2(52.5, 34) {
		t.Errorf("PointerToPitch = %v, want (52.5,34)", p)
	}
}

func TestSessionBusReceivesEvents(t *testing.T) {
	s := NewSession("s1", nil, 3)
	var launches, all int
	s.Bus.Subscribe(EventLaunch, func(Event) { launches++ })
	s.Bus.SubscribeAll(func(Event) { all++ })

	s.GestureStart(NewVec2(52.5, 34))
	s.GestureMove(NewVec2(52.5, 40))
	s.GestureEnd()

	if launches != 1 || all != 1 {
		t.Errorf("launches=%d all=%d, want 1 and 1", launches, all)
	}
}

func TestSessionBallNearScoreboard(t *testing.T) {
	s := NewSession("s1", nil, 3)
	if s.Snapshot().BallNearScoreboard {
		t.Error("center spot is not near the scoreboard")
	}
	s.World.Ball.Position = NewVec2(60, 5)
	if !s.Snapshot().BallNearScoreboard {
		t.Error("ball at (60,5) should be near the scoreboard")
	}
}

func TestSessionIsDeterministic(t *testing.T) {
	play := func() Snapshot {
		s := NewSession("det", nil, 3)
		s.SelectFormation(TeamB, "4-3-3")
		shots := []Vec2{{X: 45, Y: 30}, {X: 58, Y: 41}, {X: 50, Y: 20}, {X: 60, Y: 36}}
		for _, pull := range shots {
			ball := s.World.Ball.Position
			s.GestureStart(ball)
			s.GestureMove(pull)
			s.GestureEnd()
			for i := 0; i < 3000 && s.Match.BallMoving(); i++ {
				s.Advance(TickDT)
			}
		}
		return s.Snapshot()
	}

	a, b := play(), play()
	if !reflect.DeepEqual(a, b) {
		t.Errorf("same inputs produced different states:\n%+v\n%+v", a, b)
	}
}
