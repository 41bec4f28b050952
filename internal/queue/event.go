// Package queue defines the notification messages exchanged over the
// broker and the consumer that turns them into participant-facing texts.
package queue

import "time"

// Queue names.  Both queues are durable and use the default exchange with
// the queue name as routing key.
const (
	QueueParticipantRegistered = "participant.registered"
	QueueAssignmentCreated     = "assignment.created"
)

// Assignment kinds carried by AssignmentCreatedEvent.
const (
	AssignmentSeat    = "seat"
	AssignmentVehicle = "vehicle"
)

// ParticipantRegisteredEvent is published after a participant row is
// committed.  CredentialPayload is the sealed verification token, ready to
// be rendered as a QR code; the raw token never leaves the registry.
type ParticipantRegisteredEvent struct {
	ParticipantID     uint64    `json:"participant_id"`
	DisplayID         string    `json:"display_id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone,omitempty"`
	CredentialPayload string    `json:"credential_payload"`
	RegisteredAt      time.Time `json:"registered_at"`
}

// AssignmentCreatedEvent is published once per participant placed at a
// table or in a vehicle.  Only the fields matching Kind are set.
type AssignmentCreatedEvent struct {
	Kind           string     `json:"kind"`
	ParticipantID  uint64     `json:"participant_id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone,omitempty"`
	TableNumber    uint32     `json:"table_number,omitempty"`
	SeatNumber     uint32     `json:"seat_number,omitempty"`
	VehicleLabel   string     `json:"vehicle_label,omitempty"`
	PickupLocation string     `json:"pickup_location,omitempty"`
	PickupAt       *time.Time `json:"pickup_at,omitempty"`
	AssignedAt     time.Time  `json:"assigned_at"`
}
