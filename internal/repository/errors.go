// Package repository holds the MySQL-backed stores.  Sentinel errors let
// the service layer and handlers tell apart missing rows, uniqueness
// violations and plain driver failures without inspecting SQL text.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrConflict is returned when a guarded update matched no row because the
// row changed state in the meantime.
var ErrConflict = errors.New("conflict")

var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrEventNotFound       = errors.New("event not found")
	ErrTableNotFound       = errors.New("seating table not found")
	ErrVehicleNotFound     = errors.New("vehicle not found")
	ErrAssignmentNotFound  = errors.New("assignment not found")
	ErrAttendanceNotFound  = errors.New("attendance record not found")
)

// Uniqueness violations, one per constraint the services react to.
var (
	ErrEmailExists       = errors.New("email already exists")
	ErrDisplayIDTaken    = errors.New("display id already taken")
	ErrTokenTaken        = errors.New("verification token already taken")
	ErrTableNumberTaken  = errors.New("table number already used for this event")
	ErrVehicleLabelTaken = errors.New("vehicle label already exists")
	ErrAlreadySeated     = errors.New("participant already holds a seat")
	ErrDuplicate         = errors.New("duplicate entry")
)

const (
	mysqlDupEntry     = 1062
	mysqlNoReferenced = 1452
)

// duplicateKey reports whether err is a MySQL duplicate-entry error and, if
// so, the name of the violated unique key without its table prefix.
func duplicateKey(err error) (string, bool) {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDupEntry {
		return "", false
	}
	// Duplicate entry 'x' for key 'participants.uq_participants_email'
	msg := me.Message
	i := strings.LastIndex(msg, "for key '")
	if i < 0 {
		return "", true
	}
	key := strings.TrimSuffix(msg[i+len("for key '"):], "'")
	if dot := strings.LastIndex(key, "."); dot >= 0 {
		key = key[dot+1:]
	}
	return key, true
}

// mapDuplicate translates a duplicate-key error into the sentinel
// registered for that key, ErrDuplicate for unknown keys, or returns err
// unchanged when it is not a duplicate at all.
func mapDuplicate(err error, byKey map[string]error) error {
	key, ok := duplicateKey(err)
	if !ok {
		return err
	}
	if s, found := byKey[key]; found {
		return s
	}
	return ErrDuplicate
}

// isMissingParent reports a foreign key failure on insert (MySQL 1452).
func isMissingParent(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlNoReferenced
}
