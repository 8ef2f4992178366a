package game

import "math"

// Snapshot is a read-only copy of everything the renderer draws in a frame.
type Snapshot struct {
	SessionID          string          `json:"session_id" msgpack:"session_id"`
	Tick               uint64          `json:"tick" msgpack:"tick"`
	Ball               Ball            `json:"ball" msgpack:"ball"`
	Players            []Player        `json:"players" msgpack:"players"`
	Score              map[Team]int    `json:"score" msgpack:"score"`
	Turn               Team            `json:"turn" msgpack:"turn"`
	Phase              Phase           `json:"phase" msgpack:"phase"`
	BallMoving         bool            `json:"ball_moving" msgpack:"ball_moving"`
	GameOver           bool            `json:"game_over" msgpack:"game_over"`
	Winner             Team            `json:"winner,omitempty" msgpack:"winner,omitempty"`
	WinningScore       int             `json:"winning_score" msgpack:"winning_score"`
	Formations         map[Team]string `json:"formations" msgpack:"formations"`
	Drag               *Drag           `json:"drag,omitempty" msgpack:"drag,omitempty"`
	BallNearScoreboard bool            `json:"ball_near_scoreboard" msgpack:"ball_near_scoreboard"`
	Viewport           Viewport        `json:"viewport" msgpack:"viewport"`
}

// Session is the simulation context for one match: entity store, match state,
// input controller and event bus. It is not safe for concurrent use; a Runner
// serialises access to it.
type Session struct {
	ID       string
	World    *World
	Match    *Match
	Input    *InputController
	Bus      *Bus
	Viewport Viewport

	tick    uint64
	pending []Event
}

// NewSession creates a session at kickoff.
func NewSession(id string, catalog *FormationCatalog, winningScore int) *Session {
	return &Session{
		ID:       id,
		World:    NewWorld(catalog),
		Match:    NewMatch(winningScore),
		Input:    &InputController{},
		Bus:      NewBus(),
		Viewport: IdentityViewport(),
	}
}

func (s *Session) emit(e Event) {
	e.Tick = s.tick
	s.pending = append(s.pending, e)
	s.Bus.Publish(e)
}

func (s *Session) scoreCopy() map[Team]int {
	return map[Team]int{TeamA: s.Match.Score[TeamA], TeamB: s.Match.Score[TeamB]}
}

// Advance runs one physics tick and applies its outcome to the match. It
// returns every event emitted since the previous call, including those from
// gestures and commands issued in between.
func (s *Session) Advance(dt float64) []Event {
	if !s.Match.GameOver() {
		s.tick++
		s.step(dt)
	}
	events := s.pending
	s.pending = nil
	return events
}

func (s *Session) step(dt float64) {
	ball := &s.World.Ball
	r := Tick(ball, s.World.Players, dt)

	if r.WallHit {
		s.emit(Event{Type: EventWallHit, Speed: ball.Speed()})
	}
	if r.PlayerHit {
		s.emit(Event{Type: EventPlayerHit, Speed: ball.Speed()})
	}

	switch {
	case r.GoalScored != nil:
		s.scoreGoal(*r.GoalScored)
	case r.BallStopped:
		turn, err := s.Match.BallStopped()
		if err != nil {
			return
		}
		s.emit(Event{Type: EventBallStopped})
		s.emit(Event{Type: EventTurnChanged, Team: turn})
	}
}

func (s *Session) scoreGoal(scorer Team) {
	over, err := s.Match.GoalScored(scorer)
	if err != nil {
		// Not in flight; the ball only needs to come back.
		s.World.CenterBall()
		return
	}

	s.emit(Event{Type: EventGoalScored, Team: scorer, Score: s.scoreCopy()})
	if over {
		s.World.Ball.Velocity = Vec2{}
		s.Input.Cancel()
		s.emit(Event{Type: EventMatchOver, Team: scorer, Score: s.scoreCopy()})
		return
	}

	s.World.CenterBall()
	s.emit(Event{Type: EventTurnChanged, Team: s.Match.Turn})
}

// GestureStart begins aiming if the pointer is on the ball and it is at rest.
func (s *Session) GestureStart(p Vec2) bool {
	return s.Input.GestureStart(p, s.World.Ball, s.Match.Phase)
}

func (s *Session) GestureMove(p Vec2) {
	s.Input.GestureMove(p)
}

// GestureEnd releases the drag. A strong enough pull launches the ball and
// returns true.
func (s *Session) GestureEnd() bool {
	impulse, ok := s.Input.GestureEnd()
	if !ok {
		return false
	}
	if err := s.Match.Launch(); err != nil {
		return false
	}
	s.World.Ball.Velocity = impulse
	s.emit(Event{Type: EventLaunch, Team: s.Match.Turn, Speed: impulse.Magnitude()})
	return true
}

// PointerToPitch converts a canvas pixel position to pitch meters using the
// session viewport.
func (s *Session) PointerToPitch(px, py float64) Vec2 {
	return s.Viewport.ToMeters(NewVec2(px, py))
}

// Resize adopts a new viewport and re-creates the players.
func (s *Session) Resize(vp Viewport) {
	s.Viewport = vp
	s.World.LayoutPlayers()
}

// SelectFormation changes one side's formation and re-creates all players.
// Unknown names leave that side without players; callers validate against the
// catalog first.
func (s *Session) SelectFormation(team Team, name string) error {
	if !team.Valid() {
		return ErrInvalidTeam
	}
	s.World.SetFormation(team, name)
	s.emit(Event{Type: EventFormationChanged, Team: team, Formation: name})
	return nil
}

// ResetMatch restores kickoff: 0-0, side A to play, ball centered, players
// re-laid out. Calling it twice in a row yields the same state.
func (s *Session) ResetMatch() {
	s.Input.Cancel()
	s.Match.Reset()
	s.World.CenterBall()
	s.World.LayoutPlayers()
	s.emit(Event{Type: EventMatchReset, Team: s.Match.Turn, Score: s.scoreCopy()})
}

// Tick returns the number of physics ticks run so far.
func (s *Session) Tick() uint64 {
	return s.tick
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	players := make([]Player, len(s.World.Players))
	copy(players, s.World.Players)
	formations := map[Team]string{
		TeamA: s.World.Formations[TeamA],
		TeamB: s.World.Formations[TeamB],
	}
	ball := s.World.Ball

	return Snapshot{
		SessionID:          s.ID,
		Tick:               s.tick,
		Ball:               ball,
		Players:            players,
		Score:              s.scoreCopy(),
		Turn:               s.Match.Turn,
		Phase:              s.Match.Phase,
		BallMoving:         s.Match.BallMoving(),
		GameOver:           s.Match.GameOver(),
		Winner:             s.Match.Winner,
		WinningScore:       s.Match.WinningScore,
		Formations:         formations,
		Drag:               s.Input.ActiveDrag(),
		BallNearScoreboard: ball.Position.Y < ScoreboardZoneY && math.Abs(ball.Position.X-PitchWidth/2) < ScoreboardZoneHalf,
		Viewport:           s.Viewport,
	}
}
