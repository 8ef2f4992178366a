package game

import "math"

// TickResult reports what happened to the ball during one tick. GoalScored is
// the scoring team, nil when no goal was scored.
type TickResult struct {
	WallHit     bool  `json:"wall_hit"`
	PlayerHit   bool  `json:"player_hit"`
	GoalScored  *Team `json:"goal_scored,omitempty"`
	BallStopped bool  `json:"ball_stopped"`
}

// Tick advances the ball by one fixed step of dt seconds and resolves goals,
// wall bounces and player contacts. It never touches score or turn.
//
// The goal check uses the post-integration position, so a fast ball can be
// judged past the line without a swept test. Player contacts are resolved one
// at a time in slice order and overlaps created by a push-out are not
// re-checked within the same tick.
func Tick(ball *Ball, players []Player, dt float64) TickResult {
	var r TickResult
	wasMoving := !ball.Velocity.IsZero()

	ball.Position = ball.Position.Plus(ball.Velocity.Times(dt))
	ball.Velocity = ball.Velocity.Times(Friction)

	speed := ball.Speed()
	if wasMoving && (speed < StopThreshold || math.IsNaN(speed)) {
		ball.Velocity = Vec2{}
		r.BallStopped = true
	}

	if scorer, ok := resolveEndLines(ball, &r); ok {
		r.GoalScored = &scorer
		return r
	}
	resolveSideLines(ball, &r)
	resolvePlayerContacts(ball, players, wasMoving, &r)

	return r
}

// inGoalMouth reports whether y lies within the goal band of an end line.
func inGoalMouth(y float64) bool {
	lo, hi := GoalBand()
	return y >= lo && y <= hi
}

// resolveEndLines handles the left and right boundaries. A crossing inside the
// goal band scores for the side attacking that goal.
func resolveEndLines(ball *Ball, r *TickResult) (Team, bool) {
	switch {
	case ball.Position.X < 0:
		if inGoalMouth(ball.Position.Y) {
			return TeamB, true
		}
		ball.Position.X = 0
		ball.Velocity.X = -ball.Velocity.X * WallBounce
		r.WallHit = true
	case ball.Position.X > PitchWidth:
		if inGoalMouth(ball.Position.Y) {
			return TeamA, true
		}
		ball.Position.X = PitchWidth
		ball.Velocity.X = -ball.Velocity.X * WallBounce
		r.WallHit = true
	}
	return "", false
}

// resolveSideLines handles the top and bottom boundaries, which always bounce.
func resolveSideLines(ball *Ball, r *TickResult) {
	switch {
	case ball.Position.Y < 0:
		ball.Position.Y = 0
		ball.Velocity.Y = -ball.Velocity.Y * WallBounce
		r.WallHit = true
	case ball.Position.Y > PitchHeight:
		ball.Position.Y = PitchHeight
		ball.Velocity.Y = -ball.Velocity.Y * WallBounce
		r.WallHit = true
	}
}

func resolvePlayerContacts(ball *Ball, players []Player, wasMoving bool, r *TickResult) {
	for i := range players {
		p := &players[i]
		d := ball.Position.Minus(p.Position)
		dist := d.Magnitude()
		minDist := ball.Radius + p.Radius
		if dist >= minDist {
			continue
		}

		// Concentric discs have no contact normal; the ball stops where it is.
		// A ball already resting there is not a new contact.
		if dist == 0 {
			if wasMoving {
				r.PlayerHit = true
				if !ball.Velocity.IsZero() {
					ball.Velocity = Vec2{}
					r.BallStopped = true
				}
			}
			continue
		}

		r.PlayerHit = true
		n := d.Times(1 / dist)
		ball.Position = ball.Position.Plus(n.Times(minDist - dist))
		ball.Velocity = ball.Velocity.Reflect(n).Times(PlayerRestitution)
	}
}
