package session

import "time"

// State is the payment state of a live session. Expired sessions are not
// represented: they are removed from the registry.
type State int

const (
	StateCreated State = iota
	StatePaid
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePaid:
		return "paid"
	default:
		return "unknown"
	}
}

// GameSession is one pay-gated opportunity to play.
type GameSession struct {
	ID        string     `json:"id"`
	State     State      `json:"state"`
	CreatedAt time.Time  `json:"createdAt"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
	Payer     string     `json:"payer,omitempty"`
}

func (s *GameSession) clone() GameSession {
	c := *s
	if s.PaidAt != nil {
		paidAt := *s.PaidAt
		c.PaidAt = &paidAt
	}
	return c
}
