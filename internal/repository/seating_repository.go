package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/conference-checkin/internal/model"
)

// SeatingTx is the set of statements a seat assignment runs while holding
// the row lock on its table.
type SeatingTx interface {
	// LockTable locks the table row (SELECT ... FOR UPDATE) and returns it
	// with Occupied filled in.
	LockTable(ctx context.Context, tableID uint64) (*model.SeatingTable, error)
	// SeatedParticipants returns which of ids already hold a seat anywhere.
	SeatedParticipants(ctx context.Context, ids []uint64) (map[uint64]bool, error)
	MaxSeatNumber(ctx context.Context, tableID uint64) (uint32, error)
	// InsertAssignments writes all rows in one statement.  A participant
	// seated concurrently surfaces as ErrAlreadySeated.
	InsertAssignments(ctx context.Context, rows []model.SeatAssignment) error
	UpdateTable(ctx context.Context, t *model.SeatingTable) error
}

// SeatingRepo stores seating tables and seat assignments.
type SeatingRepo struct {
	db *sql.DB
}

// NewSeatingRepo returns a SeatingRepo bound to db.
func NewSeatingRepo(db *sql.DB) *SeatingRepo { return &SeatingRepo{db: db} }

var seatingKeys = map[string]error{
	"uq_seating_tables_event_number":  ErrTableNumberTaken,
	"uq_seat_assignments_participant": ErrAlreadySeated,
	"uq_seat_assignments_table_seat":  ErrConflict,
}

const tableSelect = `SELECT t.id, t.event_id, t.table_number, t.capacity, t.created_at, t.updated_at,
	(SELECT COUNT(*) FROM seat_assignments a WHERE a.table_id = t.id) AS occupied
	FROM seating_tables t`

func scanTable(row rowScanner) (*model.SeatingTable, error) {
	var t model.SeatingTable
	if err := row.Scan(&t.ID, &t.EventID, &t.TableNumber, &t.Capacity, &t.CreatedAt, &t.UpdatedAt, &t.Occupied); err != nil {
		return nil, err
	}
	return &t, nil
}

// InTx runs fn with a SeatingTx bound to a fresh transaction.
func (r *SeatingRepo) InTx(ctx context.Context, fn func(SeatingTx) error) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&seatingTx{tx: tx})
	})
}

// CreateTable inserts t.  ErrTableNumberTaken when the number is already
// used within the event, ErrEventNotFound when the event is missing.
func (r *SeatingRepo) CreateTable(ctx context.Context, t *model.SeatingTable) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO seating_tables (event_id, table_number, capacity) VALUES (?,?,?)",
		t.EventID, t.TableNumber, t.Capacity)
	if err != nil {
		if isMissingParent(err) {
			return ErrEventNotFound
		}
		if mapped := mapDuplicate(err, seatingKeys); mapped != err {
			return mapped
		}
		return fmt.Errorf("insert table: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	return nil
}

// GetTable returns the table with its current occupancy.
func (r *SeatingRepo) GetTable(ctx context.Context, id uint64) (*model.SeatingTable, error) {
	t, err := scanTable(r.db.QueryRowContext(ctx, tableSelect+" WHERE t.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTableNotFound
	}
	return t, err
}

// ListTables returns the tables of an event ordered by table number.
func (r *SeatingRepo) ListTables(ctx context.Context, eventID uint64) ([]model.SeatingTable, error) {
	rows, err := r.db.QueryContext(ctx, tableSelect+" WHERE t.event_id = ? ORDER BY t.table_number", eventID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	out := make([]model.SeatingTable, 0)
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// TableAssignments lists the seats taken at a table in seat order.
func (r *SeatingRepo) TableAssignments(ctx context.Context, tableID uint64) ([]model.SeatAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, table_id, participant_id, seat_number, assigned_at
		 FROM seat_assignments WHERE table_id = ? ORDER BY seat_number`, tableID)
	if err != nil {
		return nil, fmt.Errorf("list seat assignments: %w", err)
	}
	defer rows.Close()
	out := make([]model.SeatAssignment, 0)
	for rows.Next() {
		var a model.SeatAssignment
		if err := rows.Scan(&a.ID, &a.TableID, &a.ParticipantID, &a.SeatNumber, &a.AssignedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Unseat removes the participant's seat, if any.
func (r *SeatingRepo) Unseat(ctx context.Context, participantID uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM seat_assignments WHERE participant_id = ?", participantID)
	if err != nil {
		return false, fmt.Errorf("unseat: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type seatingTx struct {
	tx *sql.Tx
}

func (s *seatingTx) LockTable(ctx context.Context, tableID uint64) (*model.SeatingTable, error) {
	var t model.SeatingTable
	err := s.tx.QueryRowContext(ctx,
		`SELECT id, event_id, table_number, capacity, created_at, updated_at
		 FROM seating_tables WHERE id = ? FOR UPDATE`, tableID).
		Scan(&t.ID, &t.EventID, &t.TableNumber, &t.Capacity, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTableNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock table: %w", err)
	}
	if err := s.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM seat_assignments WHERE table_id = ?", tableID).Scan(&t.Occupied); err != nil {
		return nil, fmt.Errorf("count seats: %w", err)
	}
	return &t, nil
}

func (s *seatingTx) SeatedParticipants(ctx context.Context, ids []uint64) (map[uint64]bool, error) {
	seated := make(map[uint64]bool)
	if len(ids) == 0 {
		return seated, nil
	}
	rows, err := s.tx.QueryContext(ctx,
		"SELECT participant_id FROM seat_assignments WHERE participant_id IN ("+placeholders(len(ids))+")",
		uint64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("seated participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		seated[id] = true
	}
	return seated, rows.Err()
}

func (s *seatingTx) MaxSeatNumber(ctx context.Context, tableID uint64) (uint32, error) {
	var n uint32
	err := s.tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seat_number), 0) FROM seat_assignments WHERE table_id = ?", tableID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max seat: %w", err)
	}
	return n, nil
}

func (s *seatingTx) InsertAssignments(ctx context.Context, rows []model.SeatAssignment) error {
	if len(rows) == 0 {
		return nil
	}
	query := "INSERT INTO seat_assignments (table_id, participant_id, seat_number, assigned_at) VALUES "
	args := make([]any, 0, len(rows)*4)
	for i, a := range rows {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, a.TableID, a.ParticipantID, a.SeatNumber, a.AssignedAt.UTC())
	}
	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		if mapped := mapDuplicate(err, seatingKeys); mapped != err {
			return mapped
		}
		return fmt.Errorf("insert seats: %w", err)
	}
	first, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert seats: %w", err)
	}
	// InnoDB hands a multi-row insert consecutive ids starting at first.
	for i := range rows {
		rows[i].ID = uint64(first) + uint64(i)
	}
	return nil
}

func (s *seatingTx) UpdateTable(ctx context.Context, t *model.SeatingTable) error {
	_, err := s.tx.ExecContext(ctx,
		"UPDATE seating_tables SET table_number = ?, capacity = ? WHERE id = ?",
		t.TableNumber, t.Capacity, t.ID)
	if err != nil {
		if mapped := mapDuplicate(err, seatingKeys); mapped != err {
			return mapped
		}
		return fmt.Errorf("update table: %w", err)
	}
	return nil
}
