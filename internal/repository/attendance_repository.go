package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/conference-checkin/internal/model"
)

// AttendanceRepo records scans.  The (participant_id, event_id) unique key
// is the only arbiter of "first scan": Record never reads before writing.
type AttendanceRepo struct {
	db *sql.DB
}

// NewAttendanceRepo returns an AttendanceRepo bound to db.
func NewAttendanceRepo(db *sql.DB) *AttendanceRepo { return &AttendanceRepo{db: db} }

// Record marks the participant as scanned for the event at now.  created
// is true only for the call that inserted the row; every other call,
// including concurrent duplicates, gets the stored row back untouched.
func (r *AttendanceRepo) Record(ctx context.Context, participantID, eventID uint64, now time.Time) (*model.AttendanceRecord, bool, error) {
	now = now.UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO attendance_records (participant_id, event_id, status, scanned_at)
		 VALUES (?,?,?,?) ON DUPLICATE KEY UPDATE id = id`,
		participantID, eventID, model.AttendanceScanned, now)
	if err != nil {
		return nil, false, fmt.Errorf("insert attendance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	rec, err := r.Get(ctx, participantID, eventID)
	if err != nil {
		return nil, false, err
	}
	return rec, n == 1, nil
}

// Get returns the attendance row for the pair or ErrAttendanceNotFound.
func (r *AttendanceRepo) Get(ctx context.Context, participantID, eventID uint64) (*model.AttendanceRecord, error) {
	var (
		rec     model.AttendanceRecord
		scanned sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, participant_id, event_id, status, scanned_at FROM attendance_records
		 WHERE participant_id=? AND event_id=? LIMIT 1`, participantID, eventID).
		Scan(&rec.ID, &rec.ParticipantID, &rec.EventID, &rec.Status, &scanned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttendanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load attendance: %w", err)
	}
	if scanned.Valid {
		t := scanned.Time
		rec.ScannedAt = &t
	}
	return &rec, nil
}

// ListByEvent returns the scanned participants of an event, earliest first.
func (r *AttendanceRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.AttendanceRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.display_id, p.name, p.organization, a.scanned_at
		 FROM attendance_records a
		 JOIN participants p ON p.id = a.participant_id
		 WHERE a.event_id = ? AND a.scanned_at IS NOT NULL
		 ORDER BY a.scanned_at, p.id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()
	out := make([]model.AttendanceRow, 0)
	for rows.Next() {
		var (
			row     model.AttendanceRow
			scanned sql.NullTime
		)
		if err := rows.Scan(&row.ParticipantID, &row.DisplayID, &row.Name, &row.Organization, &scanned); err != nil {
			return nil, err
		}
		if scanned.Valid {
			t := scanned.Time
			row.ScannedAt = &t
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
