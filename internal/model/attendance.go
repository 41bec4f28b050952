package model

import "time"

// AttendanceScanned is the status of every attendance row; rows are only
// written by a successful scan.
const AttendanceScanned = "scanned"

// AttendanceRecord is the single row per (participant, event) proving that
// the participant was physically present.  ScannedAt is written at most
// once and never overwritten by a repeat scan.
type AttendanceRecord struct {
	ID            uint64     `json:"id"`
	ParticipantID uint64     `json:"participant_id"`
	EventID       uint64     `json:"event_id"`
	Status        string     `json:"status"`
	ScannedAt     *time.Time `json:"scanned_at,omitempty"`
}

// AttendanceRow is one line of the per-event attendance report.
type AttendanceRow struct {
	ParticipantID uint64     `json:"participant_id"`
	DisplayID     string     `json:"display_id"`
	Name          string     `json:"name"`
	Organization  string     `json:"organization"`
	ScannedAt     *time.Time `json:"scanned_at,omitempty"`
}
