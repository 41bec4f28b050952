// Package service implements the participant registry, the check-in
// verifier and the capacity assignment engine on top of the repository
// stores.
package service

import (
	"errors"
	"fmt"
)

// Kind classifies the expected, user-facing failures of the services.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindIneligible Kind = "ineligible"
	KindCapacity   Kind = "capacity_exceeded"
	// KindConflict means concurrent writes kept colliding; the request can
	// be repeated as is.
	KindConflict Kind = "conflict"
)

// Error is an expected outcome the caller renders to the user.  Fields is
// set for validation and capacity errors and maps a request field to its
// message.  Anything that is not an *Error is an internal failure.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

// Messages shown verbatim by the scanner and admin screens.
const (
	MsgEventNotFound     = "Selected event not found"
	MsgCodeNotFound      = "Invalid QR code or participant ID"
	MsgInactive          = "Participant is inactive"
	MsgNotJoined         = "Participant is not registered for the selected event"
	MsgNotEnoughSeats    = "Not enough available seats for this table"
	MsgNotEnoughVehicle  = "Not enough available seats in this vehicle"
	MsgAttendanceOK      = "Attendance recorded"
	MsgAlreadyCheckedIn  = "Participant already checked in"
	MsgParticipantAbsent = "Participant not found"
	MsgEventClosed       = "This event is closed"
	MsgAssignConflict    = "Assignments changed while saving, please try again"
)

func notFound(msg string) *Error   { return &Error{Kind: KindNotFound, Message: msg} }
func ineligible(msg string) *Error { return &Error{Kind: KindIneligible, Message: msg} }

func conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

func invalid(field, msg string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: map[string]string{field: msg}}
}

func capacityExceeded(field, msg string) *Error {
	return &Error{Kind: KindCapacity, Message: msg, Fields: map[string]string{field: msg}}
}

// KindOf returns the Kind of err, or "" when err is not a service error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
