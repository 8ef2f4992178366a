package game

// Pitch and physics constants. These are part of the wire contract with the
// renderer and must stay in sync with the client-side drawing code.

const (
	PitchWidth  = 105.0 // meters
	PitchHeight = 68.0
	GoalWidth   = 10.0

	PlayerRadius = 1.5
	BallRadius   = 0.8

	Friction           = 0.994 // per tick velocity multiplier
	WallBounce         = 0.8
	PlayerRestitution  = 0.8
	StopThreshold      = 1.5 // m/s
	MaxPower           = 120.0
	DragSensitivity    = 1.5
	LaunchThreshold    = 0.5
	HitRadiusFactor    = 5.0 // gesture hit-test radius in ball radii
	DefaultWinScore    = 3
	TickDT             = 1.0 / 60.0
	FormationSize      = 11
	DefaultFormation   = "4-4-2"
	ScoreboardZoneY    = 15.0
	ScoreboardZoneHalf = 20.0
)

// GoalBand returns the closed y-interval of a goal mouth on either end line.
func GoalBand() (lo, hi float64) {
	return (PitchHeight - GoalWidth) / 2, (PitchHeight + GoalWidth) / 2
}
