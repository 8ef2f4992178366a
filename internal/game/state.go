package game

// SessionStatus is the lifecycle state of a hosted session.
type SessionStatus string

const (
	StatusActive SessionStatus = "ACTIVE"
	StatusClosed SessionStatus = "CLOSED"
)
