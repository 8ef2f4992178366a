package game

import "errors"

// Team identifies one side of the pitch. A defends the left goal.
type Team string

const (
	TeamA Team = "A"
	TeamB Team = "B"
)

var ErrInvalidTeam = errors.New("invalid team")

// Opponent returns the other side.
func (t Team) Opponent() Team {
	if t == TeamA {
		return TeamB
	}
	return TeamA
}

func (t Team) Valid() bool {
	return t == TeamA || t == TeamB
}

// ParseTeam accepts the wire names "A" and "B".
func ParseTeam(s string) (Team, error) {
	t := Team(s)
	if !t.Valid() {
		return "", ErrInvalidTeam
	}
	return t, nil
}

// Ball is the shared puck.
type Ball struct {
	Position Vec2    `json:"position" msgpack:"position"`
	Velocity Vec2    `json:"velocity" msgpack:"velocity"`
	Radius   float64 `json:"radius" msgpack:"radius"`
}

// Speed returns the magnitude of the ball's velocity.
func (b *Ball) Speed() float64 {
	return b.Velocity.Magnitude()
}

// Player is a stationary disc placed by a formation.
type Player struct {
	Slot     int     `json:"slot" msgpack:"slot"`
	Team     Team    `json:"team" msgpack:"team"`
	Position Vec2    `json:"position" msgpack:"position"`
	Radius   float64 `json:"radius" msgpack:"radius"`
}

// World is the entity store: the ball, the players and the formation chosen
// for each side.
type World struct {
	Ball       Ball
	Players    []Player
	Formations map[Team]string
	catalog    *FormationCatalog
}

// NewWorld builds a world with the ball centered and both sides in the
// default formation.
func NewWorld(catalog *FormationCatalog) *World {
	if catalog == nil {
		catalog = DefaultFormations()
	}
	w := &World{
		Formations: map[Team]string{TeamA: DefaultFormation, TeamB: DefaultFormation},
		catalog:    catalog,
	}
	w.CenterBall()
	w.LayoutPlayers()
	return w
}

// CenterBall puts the ball on the center spot at rest.
func (w *World) CenterBall() {
	w.Ball = Ball{
		Position: NewVec2(PitchWidth/2, PitchHeight/2),
		Radius:   BallRadius,
	}
}

// SetFormation records the formation for one side and rebuilds the player
// list. The name is not checked here; see FormationCatalog.Layout.
func (w *World) SetFormation(team Team, name string) {
	w.Formations[team] = name
	w.LayoutPlayers()
}

// LayoutPlayers recreates every player from the current formations, side A
// first.
func (w *World) LayoutPlayers() {
	players := make([]Player, 0, 2*FormationSize)
	players = append(players, w.catalog.Layout(w.Formations[TeamA], TeamA)...)
	players = append(players, w.catalog.Layout(w.Formations[TeamB], TeamB)...)
	w.Players = players
}
