package game

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Formation is a named layout of FormationSize relative positions for one
// team. Coordinates are in [0,1]: x is the fraction of the team's own half
// measured from its goal line, y the fraction of the pitch height. The first
// entry is the goalkeeper.
type Formation struct {
	Name      string `json:"name" toml:"name"`
	Positions []Vec2 `json:"positions" toml:"-"`
}

var builtinFormations = []Formation{
	{Name: "4-4-2", Positions: []Vec2{
		{0.05, 0.5},
		{0.2, 0.2}, {0.2, 0.4}, {0.2, 0.6}, {0.2, 0.8},
		{0.45, 0.15}, {0.45, 0.38}, {0.45, 0.62}, {0.45, 0.85},
		{0.7, 0.35}, {0.7, 0.65},
	}},
	{Name: "4-3-3", Positions: []Vec2{
		{0.05, 0.5},
		{0.2, 0.2}, {0.2, 0.4}, {0.2, 0.6}, {0.2, 0.8},
		{0.45, 0.3}, {0.45, 0.5}, {0.45, 0.7},
		{0.7, 0.2}, {0.7, 0.5}, {0.7, 0.8},
	}},
	{Name: "4-2-3-1", Positions: []Vec2{
		{0.05, 0.5},
		{0.2, 0.2}, {0.2, 0.4}, {0.2, 0.6}, {0.2, 0.8},
		{0.35, 0.35}, {0.35, 0.65},
		{0.55, 0.2}, {0.55, 0.5}, {0.55, 0.8},
		{0.75, 0.5},
	}},
	{Name: "3-3-4", Positions: []Vec2{
		{0.05, 0.5},
		{0.2, 0.3}, {0.2, 0.5}, {0.2, 0.7},
		{0.45, 0.2}, {0.45, 0.5}, {0.45, 0.8},
		{0.7, 0.2}, {0.7, 0.4}, {0.7, 0.6}, {0.7, 0.8},
	}},
}

// Validate checks the slot count, coordinate range and goalkeeper placement.
func (f Formation) Validate() error {
	if f.Name == "" {
		return errors.New("formation name is empty")
	}
	if len(f.Positions) != FormationSize {
		return fmt.Errorf("formation %s: want %d positions, got %d", f.Name, FormationSize, len(f.Positions))
	}
	for i, p := range f.Positions {
		if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
			return fmt.Errorf("formation %s: slot %d out of range (%.3f, %.3f)", f.Name, i, p.X, p.Y)
		}
		if kickoffDistance(p) < BallRadius+PlayerRadius {
			return fmt.Errorf("formation %s: slot %d overlaps the kickoff spot", f.Name, i)
		}
	}
	keeper := f.Positions[0]
	for i, p := range f.Positions[1:] {
		if p.X <= keeper.X {
			return fmt.Errorf("formation %s: slot %d is level with or behind the goalkeeper", f.Name, i+1)
		}
	}
	return nil
}

// kickoffDistance is how far a relative slot lands from the pitch center once
// laid out. Both sides mirror onto the same distance.
func kickoffDistance(rel Vec2) float64 {
	return math.Hypot((1-rel.X)*PitchWidth/2, (rel.Y-0.5)*PitchHeight)
}

// FormationCatalog is the lookup table of known formations. It is filled at
// startup and read-only while sessions run.
type FormationCatalog struct {
	formations map[string]Formation
	mu         sync.RWMutex
}

// NewFormationCatalog returns an empty catalog.
func NewFormationCatalog() *FormationCatalog {
	return &FormationCatalog{formations: make(map[string]Formation)}
}

// DefaultFormations returns a catalog holding the built-in formations.
func DefaultFormations() *FormationCatalog {
	c := NewFormationCatalog()
	for _, f := range builtinFormations {
		c.formations[f.Name] = f
	}
	return c
}

// Add validates f and stores it, replacing any formation with the same name.
func (c *FormationCatalog) Add(f Formation) error {
	if err := f.Validate(); err != nil {
		return err
	}
	positions := make([]Vec2, len(f.Positions))
	copy(positions, f.Positions)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.formations[f.Name] = Formation{Name: f.Name, Positions: positions}
	return nil
}

func (c *FormationCatalog) Get(name string) (Formation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.formations[name]
	return f, ok
}

func (c *FormationCatalog) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Names returns the formation names in sorted order.
func (c *FormationCatalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.formations))
	for name := range c.formations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every formation sorted by name.
func (c *FormationCatalog) All() []Formation {
	names := c.Names()
	out := make([]Formation, 0, len(names))
	for _, name := range names {
		f, _ := c.Get(name)
		out = append(out, f)
	}
	return out
}

// Layout places the named formation on the given side of the pitch. Side A
// defends the left goal, side B mirrors it onto the right half. An unknown
// name yields no players.
func (c *FormationCatalog) Layout(name string, team Team) []Player {
	f, ok := c.Get(name)
	if !ok {
		return nil
	}

	half := PitchWidth / 2
	players := make([]Player, 0, len(f.Positions))
	for i, rel := range f.Positions {
		x := rel.X * half
		if team == TeamB {
			x = PitchWidth - rel.X*half
		}
		players = append(players, Player{
			Slot:     i,
			Team:     team,
			Position: NewVec2(x, rel.Y*PitchHeight),
			Radius:   PlayerRadius,
		})
	}
	return players
}
