package models

import "time"

// FormationSlot is one row of the formations table: a single player position
// of a named formation. Slot 0 is the goalkeeper.
type FormationSlot struct {
	Name      string    `db:"name" json:"name"`
	Slot      int       `db:"slot" json:"slot"`
	X         float64   `db:"x" json:"x"`
	Y         float64   `db:"y" json:"y"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SessionRecord is the cached summary of a session kept in Redis alongside the
// binary snapshot, used for listings and idle bookkeeping.
type SessionRecord struct {
	SessionID    string    `json:"session_id" msgpack:"session_id"`
	Status       string    `json:"status" msgpack:"status"`
	ScoreA       int       `json:"score_a" msgpack:"score_a"`
	ScoreB       int       `json:"score_b" msgpack:"score_b"`
	CreatedAt    time.Time `json:"created_at" msgpack:"created_at"`
	LastActivity time.Time `json:"last_activity" msgpack:"last_activity"`
}
