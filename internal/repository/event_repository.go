package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/conference-checkin/internal/model"
)

// EventRepo stores events and the participants' opt-in joins.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns an EventRepo bound to db.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = "e.id, e.title, e.starts_at, e.ends_at, e.is_active, e.created_at, e.updated_at"

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		ev   model.Event
		ends sql.NullTime
	)
	if err := row.Scan(&ev.ID, &ev.Title, &ev.StartsAt, &ends, &ev.IsActive, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return nil, err
	}
	if ends.Valid {
		t := ends.Time
		ev.EndsAt = &t
	}
	return &ev, nil
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	defer rows.Close()
	out := make([]model.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// Create inserts ev and sets its ID.
func (r *EventRepo) Create(ctx context.Context, ev *model.Event) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO events (title, starts_at, ends_at, is_active) VALUES (?,?,?,?)",
		ev.Title, ev.StartsAt.UTC(), utcPtr(ev.EndsAt), ev.IsActive)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ev.ID = uint64(id)
	now := time.Now().UTC()
	ev.CreatedAt, ev.UpdatedAt = now, now
	return nil
}

// Update replaces title, window and active flag.
func (r *EventRepo) Update(ctx context.Context, ev *model.Event) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE events SET title=?, starts_at=?, ends_at=?, is_active=? WHERE id=?",
		ev.Title, ev.StartsAt.UTC(), utcPtr(ev.EndsAt), ev.IsActive, ev.ID)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, ev.ID); err != nil {
			return err
		}
	}
	return nil
}

// GetByID returns ErrEventNotFound when no event has the id.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	ev, err := scanEvent(r.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events e WHERE e.id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return ev, err
}

// List returns events ordered by start time, then id.
func (r *EventRepo) List(ctx context.Context, activeOnly bool) ([]model.Event, error) {
	q := "SELECT " + eventColumns + " FROM events e"
	if activeOnly {
		q += " WHERE e.is_active = 1"
	}
	q += " ORDER BY e.starts_at, e.id"
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return scanEvents(rows)
}

// Join records that the participant opted into the event.  It reports
// false without error when the join already existed.
func (r *EventRepo) Join(ctx context.Context, participantID, eventID uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO event_joins (participant_id, event_id) VALUES (?,?) ON DUPLICATE KEY UPDATE id = id",
		participantID, eventID)
	if err != nil {
		if isMissingParent(err) {
			return false, ErrEventNotFound
		}
		return false, fmt.Errorf("join event: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Leave removes a join; false when there was nothing to remove.
func (r *EventRepo) Leave(ctx context.Context, participantID, eventID uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM event_joins WHERE participant_id=? AND event_id=?", participantID, eventID)
	if err != nil {
		return false, fmt.Errorf("leave event: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// HasJoined reports whether an EventJoin exists for the pair.
func (r *EventRepo) HasJoined(ctx context.Context, participantID, eventID uint64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM event_joins WHERE participant_id=? AND event_id=? LIMIT 1",
		participantID, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check join: %w", err)
	}
	return true, nil
}

// ListJoined returns every event the participant joined, sorted by start.
func (r *EventRepo) ListJoined(ctx context.Context, participantID uint64) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+eventColumns+` FROM events e
		 JOIN event_joins j ON j.event_id = e.id
		 WHERE j.participant_id = ?
		 ORDER BY e.starts_at, e.id`, participantID)
	if err != nil {
		return nil, fmt.Errorf("list joined events: %w", err)
	}
	return scanEvents(rows)
}

// CountJoined returns the number of participants who joined the event.
func (r *EventRepo) CountJoined(ctx context.Context, eventID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM event_joins WHERE event_id=?", eventID).Scan(&n)
	return n, err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
