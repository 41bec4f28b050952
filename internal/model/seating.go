package model

import "time"

// SeatingTable is a finite-capacity table belonging to an event.  Occupied
// is not a column; repositories fill it with the current assignment count
// when loading a table.
type SeatingTable struct {
	ID          uint64    `json:"id"`
	EventID     uint64    `json:"event_id"`
	TableNumber uint32    `json:"table_number"`
	Capacity    uint32    `json:"capacity"`
	Occupied    uint32    `json:"occupied"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// Available returns the number of free seats, never negative.
func (t SeatingTable) Available() uint32 {
	if t.Occupied >= t.Capacity {
		return 0
	}
	return t.Capacity - t.Occupied
}

// SeatAssignment places one participant on one numbered seat.  A
// participant holds at most one seat across all tables.
type SeatAssignment struct {
	ID            uint64    `json:"id"`
	TableID       uint64    `json:"table_id"`
	ParticipantID uint64    `json:"participant_id"`
	SeatNumber    uint32    `json:"seat_number"`
	AssignedAt    time.Time `json:"assigned_at"`
}
