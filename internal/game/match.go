package game

import "errors"

// Phase is the match state-machine phase. The active team is Match.Turn.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseBallInFlight Phase = "ball_in_flight"
	PhaseGoalScored   Phase = "goal_scored" // transient, resolved within the same tick
	PhaseMatchOver    Phase = "match_over"
)

var (
	ErrBallMoving  = errors.New("ball is already in flight")
	ErrMatchOver   = errors.New("match is over")
	ErrNotInFlight = errors.New("ball is not in flight")
)

// Match owns score, turn and the game-over state.
type Match struct {
	Score        map[Team]int
	Turn         Team
	Phase        Phase
	Winner       Team
	WinningScore int
}

// NewMatch returns a match at kickoff: 0-0, side A to play.
func NewMatch(winningScore int) *Match {
	if winningScore <= 0 {
		winningScore = DefaultWinScore
	}
	m := &Match{WinningScore: winningScore}
	m.Reset()
	return m
}

// Reset returns the match to Idle(A) with zero scores.
func (m *Match) Reset() {
	m.Score = map[Team]int{TeamA: 0, TeamB: 0}
	m.Turn = TeamA
	m.Phase = PhaseIdle
	m.Winner = ""
}

// BallMoving is true from a launch until the ball stops or a goal is scored.
func (m *Match) BallMoving() bool {
	return m.Phase == PhaseBallInFlight
}

func (m *Match) GameOver() bool {
	return m.Phase == PhaseMatchOver
}

// Launch moves Idle(T) to BallInFlight(T).
func (m *Match) Launch() error {
	switch m.Phase {
	case PhaseMatchOver:
		return ErrMatchOver
	case PhaseBallInFlight:
		return ErrBallMoving
	}
	m.Phase = PhaseBallInFlight
	return nil
}

// BallStopped passes the turn to the other side after a shot that did not
// score. It returns the team now on turn.
func (m *Match) BallStopped() (Team, error) {
	if m.Phase != PhaseBallInFlight {
		return m.Turn, ErrNotInFlight
	}
	m.Turn = m.Turn.Opponent()
	m.Phase = PhaseIdle
	return m.Turn, nil
}

// GoalScored credits scorer. It reports whether the goal ended the match;
// otherwise the conceding side is on turn and the caller must re-center the
// ball.
func (m *Match) GoalScored(scorer Team) (bool, error) {
	if m.Phase != PhaseBallInFlight {
		return false, ErrNotInFlight
	}
	if !scorer.Valid() {
		return false, ErrInvalidTeam
	}

	m.Phase = PhaseGoalScored
	m.Score[scorer]++

	if m.Score[scorer] >= m.WinningScore {
		m.Phase = PhaseMatchOver
		m.Winner = scorer
		return true, nil
	}

	m.Turn = scorer.Opponent()
	m.Phase = PhaseIdle
	return false, nil
}

// Restore sets score and turn from a saved snapshot. A score at or above the
// winning score restores a finished match.
func (m *Match) Restore(scoreA, scoreB int, turn Team) error {
	if !turn.Valid() {
		return ErrInvalidTeam
	}
	m.Reset()
	m.Score[TeamA] = scoreA
	m.Score[TeamB] = scoreB
	m.Turn = turn
	switch {
	case scoreA >= m.WinningScore:
		m.Phase, m.Winner = PhaseMatchOver, TeamA
	case scoreB >= m.WinningScore:
		m.Phase, m.Winner = PhaseMatchOver, TeamB
	}
	return nil
}
