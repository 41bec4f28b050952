package model

import "time"

// Event is a programme item participants can join and be checked into.
// EndsAt is optional; an event without an end closes at the end of its
// start day for scanner purposes (see service.PhaseOf).
type Event struct {
	ID        uint64     `json:"id"`
	Title     string     `json:"title"`
	StartsAt  time.Time  `json:"starts_at"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"-"`
	UpdatedAt time.Time  `json:"-"`
}

// EventJoin records that a participant opted into an event.  It is distinct
// from attendance, which is only created by a successful scan.
type EventJoin struct {
	ParticipantID uint64    `json:"participant_id"`
	EventID       uint64    `json:"event_id"`
	JoinedAt      time.Time `json:"joined_at"`
}
